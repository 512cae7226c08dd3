package systems

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/platform"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

// Prefix selects the search roots of a URI.
type Prefix int

const (
	PrefixSelf Prefix = iota
	PrefixCommon
	PrefixGame
	PrefixMod
	PrefixUser
	PrefixEngine
)

var prefixNames = map[string]Prefix{
	"":       PrefixSelf,
	"self":   PrefixSelf,
	"common": PrefixCommon,
	"game":   PrefixGame,
	"mod":    PrefixMod,
	"user":   PrefixUser,
	"engine": PrefixEngine,
}

// PathResolver maps URIs such as "common:textures/stone" onto files under the
// main directory, the user directory and the active mods.
type PathResolver struct {
	mainDir string
	userDir string
	gameDir string
	mods    *ModRegistry
}

// NewPathResolver makes mainDir and userDir absolute so resolved paths match
// the names reported by the file watcher.
func NewPathResolver(mainDir, userDir, gameDir string, mods *ModRegistry) *PathResolver {
	return &PathResolver{
		mainDir: absDir(mainDir),
		userDir: absDir(userDir),
		gameDir: gameDir,
		mods:    mods,
	}
}

func absDir(dir string) string {
	if dir == "" {
		return ""
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// SplitURI separates the prefix from the relative path. A URI without a colon
// uses the self prefix.
func SplitURI(uri string) (Prefix, string, error) {
	i := strings.IndexByte(uri, ':')
	if i < 0 {
		return PrefixSelf, uri, nil
	}
	p, ok := prefixNames[uri[:i]]
	if !ok {
		return PrefixSelf, "", fmt.Errorf("%q: %w", uri[:i], core.ErrUnrecognizedPrefix)
	}
	return p, uri[i+1:], nil
}

// CleanRelative resolves "." and ".." segments. Climbing above the start
// returns ErrOutOfBounds.
func CleanRelative(rel string) (string, error) {
	segs := make([]string, 0, 8)
	start := 0
	for i := 0; i <= len(rel); i++ {
		if i < len(rel) && !platform.IsPathSeparator(rel[i]) {
			continue
		}
		seg := rel[start:i]
		start = i + 1
		switch seg {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return "", fmt.Errorf("%s: %w", rel, core.ErrOutOfBounds)
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
	}
	return strings.Join(segs, "/"), nil
}

// Resolve returns the first existing file for uri, trying each search root
// and, within a root, each of the type's extensions in order.
func (pr *PathResolver) Resolve(uri string, rt resources.ResourceType) (string, string, error) {
	if !rt.Valid() {
		return "", "", fmt.Errorf("resolve %s: invalid resource type %d", uri, int(rt))
	}
	prefix, rel, err := SplitURI(uri)
	if err != nil {
		return "", "", err
	}
	rel, err = CleanRelative(rel)
	if err != nil {
		core.LogError("%s reaches out of bounds", uri)
		return "", "", err
	}
	if rel == "" {
		return "", "", fmt.Errorf("%q: empty path: %w", uri, core.ErrNotFound)
	}

	for _, root := range pr.roots(prefix) {
		base := platform.Join(root, rel)
		for _, ext := range resources.Extensions[rt] {
			candidate := base + ext
			switch platform.Classify(candidate) {
			case platform.FileKindFile:
				return candidate, ext, nil
			case platform.FileKindSpecial:
				core.LogWarn("%s is not a regular file", candidate)
				return candidate, ext, nil
			}
		}
	}
	return "", "", fmt.Errorf("%s %s: %w", rt, uri, core.ErrNotFound)
}

// roots lists the search directories of a prefix, highest priority first. The
// mod list is a snapshot, so no lock is held while probing files.
func (pr *PathResolver) roots(prefix Prefix) []string {
	var mods []string
	if pr.mods != nil && (prefix == PrefixSelf || prefix == PrefixCommon || prefix == PrefixEngine || prefix == PrefixGame) {
		mods = pr.mods.ActiveModPaths()
	}
	var sub []string
	switch prefix {
	case PrefixSelf:
		sub = []string{"games", pr.gameDir}
	case PrefixCommon:
		sub = []string{"common"}
	case PrefixEngine:
		sub = []string{"engine"}
	case PrefixGame:
		sub = []string{"games"}
	case PrefixMod:
		return nonEmpty(joinIf(pr.userDir, "mods"), joinIf(pr.mainDir, "mods"))
	case PrefixUser:
		return nonEmpty(pr.userDir)
	}
	out := make([]string, 0, len(mods)+1)
	for _, m := range mods {
		out = append(out, platform.Join(m, sub...))
	}
	return append(out, platform.Join(pr.mainDir, sub...))
}

func joinIf(root string, rest ...string) string {
	if root == "" {
		return ""
	}
	return platform.Join(root, rest...)
}

func nonEmpty(dirs ...string) []string {
	out := dirs[:0]
	for _, d := range dirs {
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
