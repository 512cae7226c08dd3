package loaders

import (
	"errors"
	"unicode/utf8"

	"github.com/spaghettifunk/anima-rc/engine/cfg"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

type ConfigLoader struct {
	noOptions
}

func (cl *ConfigLoader) Load(req *Request) (resources.Payload, error) {
	store, err := cfg.Open(req.Path)
	if err != nil {
		return nil, err
	}
	return &resources.Config{Store: store}, nil
}

func (cl *ConfigLoader) Unload(p resources.Payload, deps Dependencies) {
	if c, ok := p.(*resources.Config); ok && c.Store != nil {
		c.Store.Close()
	}
}

// DefinitionLoader reads entity, prop and player model definitions. They use
// the config store format.
type DefinitionLoader struct {
	noOptions
}

func (dl *DefinitionLoader) Load(req *Request) (resources.Payload, error) {
	store, err := cfg.Open(req.Path)
	if err != nil {
		return nil, err
	}
	return &resources.Definition{Store: store}, nil
}

func (dl *DefinitionLoader) Unload(p resources.Payload, deps Dependencies) {
	if d, ok := p.(*resources.Definition); ok && d.Store != nil {
		d.Store.Close()
	}
}

// ScriptLoader reads console and game scripts as UTF-8 text.
type ScriptLoader struct {
	noOptions
}

func (sl *ScriptLoader) Load(req *Request) (resources.Payload, error) {
	data, err := readFile(req.Path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, errors.New("script is not valid UTF-8")
	}
	return &resources.Script{Text: string(data)}, nil
}

func (sl *ScriptLoader) Unload(p resources.Payload, deps Dependencies) {}

// MapLoader keeps map files as opaque bytes.
type MapLoader struct {
	noOptions
}

func (ml *MapLoader) Load(req *Request) (resources.Payload, error) {
	data, err := readFile(req.Path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("map file is empty")
	}
	return &resources.Map{Data: data}, nil
}

func (ml *MapLoader) Unload(p resources.Payload, deps Dependencies) {}
