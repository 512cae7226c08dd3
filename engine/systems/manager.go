package systems

import (
	"github.com/spaghettifunk/anima-rc/engine/config"
	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources/loaders"
)

// SystemManager owns the resource subsystem of one engine instance.
type SystemManager struct {
	modRegistry    *ModRegistry
	pathResolver   *PathResolver
	resourceSystem *ResourceSystem
	jobSystem      *JobSystem
	watcher        *ResourceWatcher
}

func NewSystemManager(settings *config.Settings) (*SystemManager, error) {
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.Log.Level != "" {
		if err := core.SetLogLevel(settings.Log.Level); err != nil {
			return nil, err
		}
	}

	paths := settings.Paths
	mr := NewModRegistry(paths.Main, paths.User)
	mr.SetActiveMods(settings.Resources.Mods)

	pr := NewPathResolver(paths.Main, paths.User, paths.Game, mr)
	rs, err := NewResourceSystem(&ResourceSystemConfig{
		Resolver: pr,
		Loaders: loaders.Defaults(loaders.Options{
			DecodeWholeSound: settings.Sound.DecodeWhole,
		}),
	})
	if err != nil {
		return nil, err
	}

	js, err := NewJobSystem(settings.Resources.Workers, 64)
	if err != nil {
		return nil, err
	}

	sm := &SystemManager{
		modRegistry:    mr,
		pathResolver:   pr,
		resourceSystem: rs,
		jobSystem:      js,
	}

	if settings.Resources.Watch {
		w, err := NewResourceWatcher(rs)
		if err != nil {
			sm.Shutdown()
			return nil, err
		}
		sm.watcher = w
		for _, dir := range []string{pr.mainDir, pr.userDir} {
			if dir == "" {
				continue
			}
			if err := w.AddRecursive(dir); err != nil {
				core.LogWarn("Cannot watch %s: %s", dir, err)
			}
		}
	}

	return sm, nil
}

func (sm *SystemManager) Mods() *ModRegistry {
	return sm.modRegistry
}

func (sm *SystemManager) Resolver() *PathResolver {
	return sm.pathResolver
}

func (sm *SystemManager) Resources() *ResourceSystem {
	return sm.resourceSystem
}

func (sm *SystemManager) Jobs() *JobSystem {
	return sm.jobSystem
}

// Watcher is nil unless resources.watch is set.
func (sm *SystemManager) Watcher() *ResourceWatcher {
	return sm.watcher
}

// Shutdown stops background work before tearing the cache down.
func (sm *SystemManager) Shutdown() error {
	if sm.watcher != nil {
		if err := sm.watcher.Close(); err != nil {
			return err
		}
	}
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.resourceSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
