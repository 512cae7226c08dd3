package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rc/engine/config"
	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

func write(t *testing.T, root, rel, data string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func settingsFor(main string) *config.Settings {
	s := config.Default()
	s.Paths.Main = main
	return s
}

func TestEngineLifecycle(t *testing.T) {
	main := t.TempDir()
	mapPath := write(t, main, "games/main/maps/e1m1.pmf", "map")
	write(t, main, "games/main/scripts/boot.pgs", "print 1")
	manifest := write(t, t.TempDir(), "preload.yaml", `
groups:
  boot:
    - type: game_script
      uri: scripts/boot
  level:
    - type: map
      uri: maps/e1m1
`)

	settings := settingsFor(main)
	settings.Resources.Watch = true
	changed := make(chan *core.ResourceChangedEvent, 16)
	e, err := New(&ApplicationConfig{
		Name:              "test",
		Settings:          settings,
		Manifest:          manifest,
		Groups:            []string{"level"},
		OnResourceChanged: func(ev *core.ResourceChangedEvent) { changed <- ev },
	})
	require.NoError(t, err)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	assert.Error(t, e.Run())

	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.Error(t, e.Initialize())

	level, ok := e.Group("level")
	require.True(t, ok)
	require.Len(t, level, 1)
	_, ok = e.Group("boot")
	assert.False(t, ok)

	rs := e.Systems().Resources()
	assert.Equal(t, 1, rs.Refs(level[0]))

	ran := make(chan error, 1)
	go func() { ran <- e.Run() }()
	require.Eventually(t, func() bool { return e.Stage() == EngineStageRunning }, time.Second, time.Millisecond)

	write(t, main, "games/main/maps/e1m1.pmf", "new map")
	select {
	case ev := <-changed:
		assert.Equal(t, mapPath, ev.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}
	assert.True(t, rs.IsStale(level[0]))

	e.Quit()
	select {
	case err := <-ran:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShuttingDown, e.Stage())
	assert.Equal(t, 0, rs.Stats().Live[resources.ResourceTypeMap])
	assert.NoError(t, e.Shutdown())
}

func TestEngineBadManifest(t *testing.T) {
	main := t.TempDir()
	manifest := write(t, t.TempDir(), "preload.yaml", `
groups:
  level:
    - type: map
      uri: maps/missing
`)
	e, err := New(&ApplicationConfig{Settings: settingsFor(main), Manifest: manifest})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Initialize(), core.ErrNotFound)
	require.NoError(t, e.Shutdown())

	// the event system was released, so a new engine can start
	e, err = New(&ApplicationConfig{Settings: settingsFor(main)})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	e.Quit()
	assert.NoError(t, e.Run())
	require.NoError(t, e.Shutdown())
}

func TestNewEngineErrors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	s := config.Default()
	s.Paths.Game = ""
	_, err = New(&ApplicationConfig{Settings: s})
	assert.Error(t, err)
}
