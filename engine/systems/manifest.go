package systems

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

// ManifestEntry is one resource of a preload group.
type ManifestEntry struct {
	Type    string `yaml:"type"`
	URI     string `yaml:"uri"`
	Quality string `yaml:"quality,omitempty"`
	Alpha   bool   `yaml:"alpha,omitempty"`
}

// Manifest lists named groups of resources that are loaded and released
// together, e.g. everything a menu screen needs:
//
//	groups:
//	  menu:
//	    - type: texture
//	      uri: common:ui/logo
//	      quality: medium
//	    - type: sound
//	      uri: ui/click
type Manifest struct {
	Groups map[string][]ManifestEntry `yaml:"groups"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	for name, entries := range m.Groups {
		for i, e := range entries {
			if _, _, err := e.request(); err != nil {
				return nil, fmt.Errorf("group %s entry %d: %w", name, i, err)
			}
		}
	}
	return &m, nil
}

// GroupNames returns the group names sorted.
func (m *Manifest) GroupNames() []string {
	names := make([]string, 0, len(m.Groups))
	for name := range m.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e ManifestEntry) request() (resources.ResourceType, interface{}, error) {
	rt, err := resources.ParseResourceType(e.Type)
	if err != nil {
		return 0, nil, err
	}
	if e.URI == "" {
		return 0, nil, fmt.Errorf("%s entry without uri", rt)
	}
	q, err := resources.ParseQuality(e.Quality)
	if err != nil {
		return 0, nil, err
	}
	switch rt {
	case resources.ResourceTypeTexture:
		return rt, resources.TextureOptions{NeedsAlpha: e.Alpha, Quality: q}, nil
	case resources.ResourceTypeMaterial:
		return rt, resources.MaterialOptions{Quality: q}, nil
	case resources.ResourceTypeModel:
		return rt, resources.ModelOptions{Quality: q}, nil
	}
	if e.Quality != "" || e.Alpha {
		return 0, nil, fmt.Errorf("%s %s does not take quality or alpha", rt, e.URI)
	}
	return rt, nil, nil
}

// LoadGroup loads every entry of a group. If one fails, the handles already
// loaded are released and the error is returned.
func (m *Manifest) LoadGroup(rs *ResourceSystem, name string) ([]resources.Handle, error) {
	entries, ok := m.Groups[name]
	if !ok {
		return nil, fmt.Errorf("preload group %s: %w", name, core.ErrNotFound)
	}
	handles := make([]resources.Handle, 0, len(entries))
	for _, e := range entries {
		rt, params, err := e.request()
		if err == nil {
			var h resources.Handle
			h, err = rs.Load(rt, e.URI, params)
			if err == nil {
				handles = append(handles, h)
				continue
			}
		}
		ReleaseGroup(rs, handles)
		return nil, fmt.Errorf("preload group %s: %w", name, err)
	}
	core.LogDebug("Preloaded group %s (%d resources)", name, len(handles))
	return handles, nil
}

// LoadGroupAsync loads a group with one job per entry and calls done once all
// of them finished. On failure done receives the first error and no handles.
// Completion is also announced as an EVENT_CODE_GROUP_LOADED event.
func (m *Manifest) LoadGroupAsync(js *JobSystem, rs *ResourceSystem, name string, done func([]resources.Handle, error)) error {
	entries, ok := m.Groups[name]
	if !ok {
		return fmt.Errorf("preload group %s: %w", name, core.ErrNotFound)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		handles  = make([]resources.Handle, len(entries))
	)
	for i, e := range entries {
		wg.Add(1)
		job := JobTask{
			Run: func() error {
				rt, params, err := e.request()
				if err == nil {
					handles[i], err = rs.Load(rt, e.URI, params)
				}
				return err
			},
			OnComplete: wg.Done,
			OnFailure: func(err error) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				wg.Done()
			},
		}
		if err := js.Submit(job); err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	}

	go func() {
		wg.Wait()
		if firstErr != nil {
			ReleaseGroup(rs, handles)
			handles = nil
			firstErr = fmt.Errorf("preload group %s: %w", name, firstErr)
		}
		core.EventFire(core.EventContext{
			Type: core.EVENT_CODE_GROUP_LOADED,
			Data: &core.GroupLoadedEvent{Name: name, Resources: len(handles), Err: firstErr},
		})
		done(handles, firstErr)
	}()
	return nil
}

// ReleaseGroup releases every valid handle in handles.
func ReleaseGroup(rs *ResourceSystem, handles []resources.Handle) {
	for _, h := range handles {
		if h.IsValid() {
			rs.Release(h)
		}
	}
}
