package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// FileKind classifies what a path points at.
type FileKind int

const (
	FileKindNotExist FileKind = iota
	FileKindFile
	FileKindDirectory
	// FileKindSpecial is anything that exists but is neither a regular file nor
	// a directory: devices, pipes, sockets.
	FileKindSpecial
)

func (k FileKind) String() string {
	switch k {
	case FileKindFile:
		return "file"
	case FileKindDirectory:
		return "directory"
	case FileKindSpecial:
		return "special"
	default:
		return "not-exist"
	}
}

// Classify stats path, following symlinks.
func Classify(path string) FileKind {
	info, err := os.Stat(path)
	if err != nil {
		return FileKindNotExist
	}
	mode := info.Mode()
	switch {
	case mode.IsRegular():
		return FileKindFile
	case mode.IsDir():
		return FileKindDirectory
	default:
		return FileKindSpecial
	}
}

// IsPathSeparator accepts both the native separator and a forward slash.
func IsPathSeparator(c byte) bool {
	return c == '/' || c == '\\' || c == os.PathSeparator
}

// RelativePath collapses separators: leading separators are dropped, runs of
// separators become one native separator, a trailing separator is dropped.
func RelativePath(s string) string {
	return replaceSeparators(s, false)
}

// NormalizePath is RelativePath except that an absolute path keeps its leading
// separator.
func NormalizePath(s string) string {
	return replaceSeparators(s, true)
}

func replaceSeparators(s string, keepRoot bool) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	if keepRoot && len(s) > 0 && s[0] == '/' && os.PathSeparator == '/' {
		b.WriteByte('/')
		i = 1
	}
	for i < len(s) && IsPathSeparator(s[i]) {
		i++
	}
	sep := false
	for ; i < len(s); i++ {
		c := s[i]
		if IsPathSeparator(c) {
			sep = true
			continue
		}
		if sep {
			b.WriteByte(os.PathSeparator)
			sep = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Join builds a path from parts, normalizing each one. The first part keeps an
// absolute root, the others are treated as relative.
func Join(first string, rest ...string) string {
	var b strings.Builder
	b.WriteString(NormalizePath(first))
	for _, r := range rest {
		r = RelativePath(r)
		if r == "" {
			continue
		}
		if b.Len() > 0 && !IsPathSeparator(b.String()[b.Len()-1]) {
			b.WriteByte(os.PathSeparator)
		}
		b.WriteString(r)
	}
	return b.String()
}

// DirEntry is one result of List.
type DirEntry struct {
	Name    string
	Kind    FileKind
	Symlink bool
}

// List returns the entries of dir, skipping "." and "..". With absolute set,
// Name holds dir joined with the entry name instead of the bare name.
func List(dir string, absolute bool) ([]DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		kind := Classify(full)
		if kind == FileKindNotExist {
			// dangling symlink or raced removal
			continue
		}
		name := e.Name()
		if absolute {
			name = full
		}
		out = append(out, DirEntry{
			Name:    name,
			Kind:    kind,
			Symlink: e.Type()&os.ModeSymlink != 0,
		})
	}
	return out, nil
}
