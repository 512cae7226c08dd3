// Package config holds the engine settings read at start-up.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-rc/engine/platform"
)

type Paths struct {
	// Main is the installation root. It must contain games/<Game>.
	Main string `toml:"main"`
	// User is the per-user writable root. Optional.
	User string `toml:"user"`
	// Game is the active game directory name under games/.
	Game string `toml:"game"`
}

type Resources struct {
	Mods  []string `toml:"mods"`
	Watch bool     `toml:"watch"`
	// Workers is the size of the background load pool.
	Workers int `toml:"workers"`
}

type Sound struct {
	DecodeWhole bool `toml:"decode_whole"`
}

type Log struct {
	Level string `toml:"level"`
}

// Settings is the engine settings file, e.g.:
//
//	[paths]
//	main = "/opt/game"
//	user = "~/.game"
//	game = "main"
//
//	[resources]
//	mods = ["hd-textures"]
//	watch = true
//
//	[sound]
//	decode_whole = true
type Settings struct {
	Paths     Paths     `toml:"paths"`
	Resources Resources `toml:"resources"`
	Sound     Sound     `toml:"sound"`
	Log       Log       `toml:"log"`
}

func Default() *Settings {
	return &Settings{
		Paths: Paths{
			Main: ".",
			Game: "main",
		},
		Resources: Resources{
			Workers: 2,
		},
		Sound: Sound{
			DecodeWhole: true,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads a TOML settings file on top of Default.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	s := Default()
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Validate() error {
	var errs []error
	if s.Paths.Main == "" {
		errs = append(errs, errors.New("paths.main is required"))
	} else if platform.Classify(s.Paths.Main) != platform.FileKindDirectory {
		errs = append(errs, fmt.Errorf("paths.main %q is not a directory", s.Paths.Main))
	}
	if s.Paths.Game == "" {
		errs = append(errs, errors.New("paths.game is required"))
	}
	if s.Paths.User != "" && platform.Classify(s.Paths.User) == platform.FileKindFile {
		errs = append(errs, fmt.Errorf("paths.user %q is a file", s.Paths.User))
	}
	if s.Resources.Workers < 1 {
		errs = append(errs, fmt.Errorf("resources.workers must be at least 1, got %d", s.Resources.Workers))
	}
	return errors.Join(errs...)
}

// Marshal encodes the settings back to TOML.
func (s *Settings) Marshal() ([]byte, error) {
	return toml.Marshal(s)
}
