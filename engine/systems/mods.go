package systems

import (
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/platform"
)

// ModRegistry holds the ordered list of active mod roots. Earlier roots
// shadow later ones during resolution.
type ModRegistry struct {
	mu      sync.RWMutex
	mainDir string
	userDir string
	names   []string
	paths   []string
}

func NewModRegistry(mainDir, userDir string) *ModRegistry {
	return &ModRegistry{
		mainDir: absDir(mainDir),
		userDir: absDir(userDir),
	}
}

// SetActiveMods replaces the active mods. Each name is looked up under
// <user>/mods and then <main>/mods; every existing directory is added, user
// first. Unknown or malformed names are skipped with a warning. An empty list
// clears the registry.
func (mr *ModRegistry) SetActiveMods(names []string) {
	var (
		resolved []string
		paths    []string
	)
	for _, name := range names {
		if !validModName(name) {
			core.LogWarn("Invalid mod name '%s'", name)
			continue
		}
		found := false
		for _, root := range []string{mr.userDir, mr.mainDir} {
			if root == "" {
				continue
			}
			dir := platform.Join(root, "mods", name)
			if platform.Classify(dir) == platform.FileKindDirectory {
				paths = append(paths, dir)
				found = true
			}
		}
		if !found {
			core.LogWarn("Could not find mod '%s'", name)
			continue
		}
		resolved = append(resolved, name)
	}

	mr.mu.Lock()
	mr.names = resolved
	mr.paths = paths
	mr.mu.Unlock()

	if len(resolved) > 0 {
		core.LogInfo("Active mods: %s", strings.Join(resolved, ", "))
	}
}

// ActiveModPaths returns a copy of the active mod roots in priority order.
func (mr *ModRegistry) ActiveModPaths() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make([]string, len(mr.paths))
	copy(out, mr.paths)
	return out
}

// ActiveMods returns the names that resolved, in request order.
func (mr *ModRegistry) ActiveMods() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make([]string, len(mr.names))
	copy(out, mr.names)
	return out
}

func validModName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for i := 0; i < len(name); i++ {
		if platform.IsPathSeparator(name[i]) {
			return false
		}
	}
	return true
}
