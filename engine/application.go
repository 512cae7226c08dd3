package engine

import (
	"github.com/spaghettifunk/anima-rc/engine/config"
	"github.com/spaghettifunk/anima-rc/engine/core"
)

type ApplicationConfig struct {
	// The application name used in log output.
	Name string
	// Engine settings. nil uses config.Default().
	Settings *config.Settings
	// Optional preload manifest, loaded during Initialize.
	Manifest string
	// Manifest groups to hold for the lifetime of the engine. Empty means all.
	Groups []string
	// Called from the event loop for every watched file change, if set.
	OnResourceChanged func(ev *core.ResourceChangedEvent)
}
