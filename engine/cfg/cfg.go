// Package cfg implements the key/value store behind config, material and
// definition resources. Variables live in named sections; the empty section
// name is the global section.
package cfg

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/platform"
)

type variable struct {
	name    string
	namecrc uint32
	data    string
}

type section struct {
	name    string
	namecrc uint32
	vars    []variable
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	changed  bool
	closed   bool
	sections []*section
}

// New returns an empty store holding only the global section.
func New() *Store {
	return &Store{
		sections: []*section{{name: "", namecrc: crc32.ChecksumIEEE(nil)}},
	}
}

// Open parses the file at path.
func Open(path string) (*Store, error) {
	switch platform.Classify(path) {
	case platform.FileKindNotExist:
		return nil, fmt.Errorf("cannot open config %s: %w", path, core.ErrNotFound)
	case platform.FileKindDirectory:
		return nil, fmt.Errorf("cannot open config %s: is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	core.LogDebug("Reading config %s...", path)
	return Parse(f)
}

// Parse reads a store from r.
func Parse(r io.Reader) (*Store, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s := New()
	p := &parser{src: sanitize(raw)}
	p.run(s)
	s.changed = false
	return s, nil
}

func (s *Store) findSection(name string) *section {
	crc := crc32.ChecksumIEEE([]byte(name))
	for _, sect := range s.sections {
		if sect.namecrc == crc && sect.name == name {
			return sect
		}
	}
	return nil
}

func (sect *section) find(name string) int {
	crc := crc32.ChecksumIEEE([]byte(name))
	for i := range sect.vars {
		if sect.vars[i].namecrc == crc && sect.vars[i].name == name {
			return i
		}
	}
	return -1
}

// set assumes the lock is held (or the store is not shared yet).
func (s *Store) set(sectName, key, value string, overwrite bool) bool {
	sect := s.findSection(sectName)
	if sect == nil {
		sect = &section{name: sectName, namecrc: crc32.ChecksumIEEE([]byte(sectName))}
		s.sections = append(s.sections, sect)
	}
	if i := sect.find(key); i >= 0 {
		if !overwrite || sect.vars[i].data == value {
			return false
		}
		sect.vars[i].data = value
		s.changed = true
		return true
	}
	sect.vars = append(sect.vars, variable{
		name:    key,
		namecrc: crc32.ChecksumIEEE([]byte(key)),
		data:    value,
	})
	s.changed = true
	return true
}

// Get returns the value of key in section. Use "" for the global section.
func (s *Store) Get(sectName, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false
	}
	sect := s.findSection(sectName)
	if sect == nil {
		return "", false
	}
	if i := sect.find(key); i >= 0 {
		return sect.vars[i].data, true
	}
	return "", false
}

// Set stores value under section/key. An existing value is only replaced when
// overwrite is set. It reports whether the store was modified.
func (s *Store) Set(sectName, key, value string, overwrite bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.set(sectName, key, value, overwrite)
}

// Delete removes section/key and reports whether it existed.
func (s *Store) Delete(sectName, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sect := s.findSection(sectName)
	if sect == nil {
		return false
	}
	i := sect.find(key)
	if i < 0 {
		return false
	}
	sect.vars = append(sect.vars[:i], sect.vars[i+1:]...)
	s.changed = true
	return true
}

type entry struct {
	section, key, value string
}

func (s *Store) snapshot() []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entry
	for _, sect := range s.sections {
		for _, v := range sect.vars {
			out = append(out, entry{sect.name, v.name, v.data})
		}
	}
	return out
}

// Merge copies every variable of from into s. Existing keys are kept unless
// overwrite is set. It reports whether s was modified.
func (s *Store) Merge(from *Store, overwrite bool) bool {
	entries := from.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	modified := false
	for _, e := range entries {
		if s.set(e.section, e.key, e.value, overwrite) {
			modified = true
		}
	}
	return modified
}

// MergeFile parses path and merges it into s.
func (s *Store) MergeFile(path string, overwrite bool) (bool, error) {
	from, err := Open(path)
	if err != nil {
		return false, err
	}
	defer from.Close()
	return s.Merge(from, overwrite), nil
}

// Sections lists section names in definition order, global first.
func (s *Store) Sections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sections))
	for _, sect := range s.sections {
		out = append(out, sect.name)
	}
	return out
}

// Keys lists the keys of a section in definition order.
func (s *Store) Keys(sectName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sect := s.findSection(sectName)
	if sect == nil {
		return nil
	}
	out := make([]string, 0, len(sect.vars))
	for _, v := range sect.vars {
		out = append(out, v.name)
	}
	return out
}

// Changed reports whether the store was modified since it was read or written.
func (s *Store) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// MarkChanged flags the store for the next write-back.
func (s *Store) MarkChanged() {
	s.mu.Lock()
	s.changed = true
	s.mu.Unlock()
}

// Write serializes the store in a form Parse reads back.
func (s *Store) Write(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(w)
	first := true
	for _, sect := range s.sections {
		if sect.name == "" && len(sect.vars) == 0 {
			continue
		}
		if sect.name != "" {
			if !first {
				bw.WriteByte('\n')
			}
			fmt.Fprintf(bw, "[%s]\n", quote(sect.name, "]", false))
		}
		for _, v := range sect.vars {
			fmt.Fprintf(bw, "%s = %s\n", quote(v.name, "=", true), quote(v.data, "", false))
		}
		first = false
	}
	return bw.Flush()
}

// WriteFile writes the store to path and clears the changed flag.
func (s *Store) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.mu.Lock()
	s.changed = false
	s.mu.Unlock()
	return nil
}

// Close drops every variable. Later lookups find nothing.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = nil
	s.closed = true
}

// quote wraps v in quotes when Parse would not read it back verbatim. A bare
// key starting with '[' would parse as a section header.
func quote(v, special string, key bool) string {
	needs := v == "" && special == "" ||
		key && strings.HasPrefix(v, "[") ||
		strings.ContainsAny(v, "#\"\\\n\t"+special) ||
		strings.TrimSpace(v) != v
	if !needs {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < ' ' || c == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
