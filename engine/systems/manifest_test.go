package systems

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

const testManifest = `
groups:
  level:
    - type: model
      uri: models/crate
      quality: medium
    - type: texture
      uri: textures/glass
      alpha: true
    - type: map
      uri: maps/e1m1
  broken:
    - type: map
      uri: maps/e1m1
    - type: texture
      uri: textures/missing
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "level"}, m.GroupNames())
	assert.Equal(t, ManifestEntry{Type: "texture", URI: "textures/glass", Alpha: true}, m.Groups["level"][1])

	bad := []string{
		"groups: [",
		"groups:\n  g:\n    - type: spaceship\n      uri: x\n",
		"groups:\n  g:\n    - type: texture\n",
		"groups:\n  g:\n    - type: sound\n      uri: x\n      quality: low\n",
		"groups:\n  g:\n    - type: map\n      uri: x\n      alpha: true\n",
		"groups:\n  g:\n    - type: texture\n      uri: x\n      quality: ultra\n",
	}
	for _, src := range bad {
		_, err := ParseManifest([]byte(src))
		assert.Error(t, err, src)
	}
}

func TestLoadManifestFile(t *testing.T) {
	dir := t.TempDir()
	path := writeAt(t, dir, "preload.yaml", []byte(testManifest))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Groups["level"], 3)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadGroup(t *testing.T) {
	rs := newResourceSystem(t, gameTree(t))
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	handles, err := m.LoadGroup(rs, "level")
	require.NoError(t, err)
	require.Len(t, handles, 3)
	assert.Equal(t, resources.ResourceTypeModel, handles[0].Type)
	model, ok := rs.Model(handles[0])
	require.True(t, ok)
	assert.Equal(t, resources.QualityMedium, model.Options.Quality)
	tex, ok := rs.Texture(handles[1])
	require.True(t, ok)
	assert.Equal(t, 4, tex.Channels)

	ReleaseGroup(rs, handles)
	for rt, n := range rs.Stats().Live {
		assert.Zero(t, n, resources.ResourceType(rt).String())
	}

	_, err = m.LoadGroup(rs, "broken")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 0, rs.Stats().Live[resources.ResourceTypeMap])

	_, err = m.LoadGroup(rs, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

type groupResult struct {
	handles []resources.Handle
	err     error
}

func TestLoadGroupAsync(t *testing.T) {
	rs := newResourceSystem(t, gameTree(t))
	js, err := NewJobSystem(2, 8)
	require.NoError(t, err)
	defer js.Shutdown()

	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	results := make(chan groupResult, 1)
	done := func(h []resources.Handle, err error) { results <- groupResult{h, err} }

	require.NoError(t, m.LoadGroupAsync(js, rs, "level", done))
	select {
	case r := <-results:
		require.NoError(t, r.err)
		require.Len(t, r.handles, 3)
		for _, h := range r.handles {
			assert.True(t, h.IsValid())
		}
		ReleaseGroup(rs, r.handles)
	case <-time.After(5 * time.Second):
		t.Fatal("level group did not finish")
	}

	require.NoError(t, m.LoadGroupAsync(js, rs, "broken", done))
	select {
	case r := <-results:
		assert.ErrorIs(t, r.err, core.ErrNotFound)
		assert.Nil(t, r.handles)
	case <-time.After(5 * time.Second):
		t.Fatal("broken group did not finish")
	}
	for rt, n := range rs.Stats().Live {
		assert.Zero(t, n, resources.ResourceType(rt).String())
	}

	assert.ErrorIs(t, m.LoadGroupAsync(js, rs, "nope", done), core.ErrNotFound)
}
