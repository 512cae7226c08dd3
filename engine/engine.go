package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
	"github.com/spaghettifunk/anima-rc/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Engine ties the resource subsystem to the event loop: it preloads the
// configured groups, forwards file changes to the application and runs until
// it is asked to quit.
type Engine struct {
	mu            sync.Mutex
	currentStage  Stage
	config        *ApplicationConfig
	systemManager *systems.SystemManager
	clock         *core.Clock
	groups        map[string][]resources.Handle

	quit     chan struct{}
	quitOnce sync.Once
}

func New(cfg *ApplicationConfig) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("failed to create the engine because the application config is nil")
	}
	sm, err := systems.NewSystemManager(cfg.Settings)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	return &Engine{
		currentStage:  EngineStageUninitialized,
		config:        cfg,
		systemManager: sm,
		clock:         core.NewClock(),
		groups:        make(map[string][]resources.Handle),
		quit:          make(chan struct{}),
	}, nil
}

func (e *Engine) Initialize() error {
	if e.Stage() != EngineStageUninitialized {
		return fmt.Errorf("cannot initialize an engine that is %s", e.Stage())
	}
	e.setStage(EngineStageInitializing)

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESOURCE_CHANGED, e.onResourceChanged)
	core.EventRegister(core.EVENT_CODE_GROUP_LOADED, e.onEvent)

	if e.config.Manifest != "" {
		if err := e.preload(); err != nil {
			return err
		}
	}

	e.setStage(EngineStageInitialized)
	return nil
}

func (e *Engine) preload() error {
	m, err := systems.LoadManifest(e.config.Manifest)
	if err != nil {
		return err
	}
	groups := e.config.Groups
	if len(groups) == 0 {
		groups = m.GroupNames()
	}

	rs := e.systemManager.Resources()
	for _, g := range groups {
		handles, err := m.LoadGroup(rs, g)
		if err != nil {
			e.releaseGroups()
			return err
		}
		e.mu.Lock()
		e.groups[g] = handles
		e.mu.Unlock()
		core.LogInfo("Preloaded group %s (%d resources)", g, len(handles))
	}
	return nil
}

// Run dispatches events until Quit is called.
func (e *Engine) Run() error {
	if e.Stage() != EngineStageInitialized {
		return fmt.Errorf("cannot run an engine that is %s", e.Stage())
	}
	e.setStage(EngineStageRunning)

	e.clock.Start()
	go core.ProcessEvents()

	<-e.quit

	e.clock.Update()
	core.LogInfo("%s ran for %.1fs", e.name(), e.clock.Elapsed())
	return nil
}

// Quit asks Run to return. It is safe to call from any goroutine, and before
// Run.
func (e *Engine) Quit() {
	if !core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT}) {
		e.stop()
	}
}

func (e *Engine) stop() {
	e.quitOnce.Do(func() { close(e.quit) })
}

func (e *Engine) Shutdown() error {
	if e.Stage() == EngineStageShuttingDown {
		return nil
	}
	e.setStage(EngineStageShuttingDown)
	e.stop()

	e.releaseGroups()
	if err := core.EventSystemShutdown(); err != nil {
		return err
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	return nil
}

func (e *Engine) releaseGroups() {
	e.mu.Lock()
	groups := e.groups
	e.groups = make(map[string][]resources.Handle)
	e.mu.Unlock()

	for _, handles := range groups {
		systems.ReleaseGroup(e.systemManager.Resources(), handles)
	}
}

func (e *Engine) Systems() *systems.SystemManager {
	return e.systemManager
}

// Group returns the handles of a preloaded group.
func (e *Engine) Group(name string) ([]resources.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.groups[name]
	return h, ok
}

func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStage
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	e.currentStage = s
	e.mu.Unlock()
}

func (e *Engine) name() string {
	if e.config.Name == "" {
		return "engine"
	}
	return e.config.Name
}

func (e *Engine) onEvent(context core.EventContext) {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.stop()
	case core.EVENT_CODE_GROUP_LOADED:
		ev, ok := context.Data.(*core.GroupLoadedEvent)
		if !ok {
			core.LogError("wrong event associated with the event type `%d`", context.Type)
			return
		}
		if ev.Err != nil {
			core.LogWarn("Group %s failed: %s", ev.Name, ev.Err)
		} else {
			core.LogDebug("Group %s loaded (%d resources)", ev.Name, ev.Resources)
		}
	}
}

func (e *Engine) onResourceChanged(context core.EventContext) {
	ev, ok := context.Data.(*core.ResourceChangedEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	if e.config.OnResourceChanged != nil {
		e.config.OnResourceChanged(ev)
	}
}
