package loaders

import (
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/anima-rc/engine/resources"
)

// Dependencies is the part of the cache a loader may call back into while
// decoding. Loads made through it are ordinary cache loads: the loader owns the
// returned handles and gives them back in Unload.
type Dependencies interface {
	Load(rt resources.ResourceType, uri string, params interface{}) (resources.Handle, error)
	Release(h resources.Handle)
	Resolve(uri string, rt resources.ResourceType) (path string, ext string, err error)
}

/** @brief Everything a loader needs to decode one entry. */
type Request struct {
	/** @brief The URI as requested. */
	URI string
	/** @brief The resolved file path. */
	Path string
	/** @brief The extension that matched, possibly empty. */
	Ext string
	/** @brief Normalized options, as returned by the loader's Params. */
	Params interface{}
	Deps   Dependencies
}

/** @brief The interface every registered loader implements. */
type ResourceLoader interface {
	// Params validates caller options and returns the normalized value stored
	// with the entry. nil selects the defaults.
	Params(params interface{}) (interface{}, error)
	Load(req *Request) (resources.Payload, error)
	// Unload frees the payload and releases any dependency handles it holds.
	Unload(p resources.Payload, deps Dependencies)
	// Matches reports whether an entry stored with options stored can serve a
	// request for options requested.
	Matches(stored, requested interface{}, p resources.Payload) bool
}

// Options configures the default loader set.
type Options struct {
	// DecodeWholeSound decodes sounds to PCM at load time.
	DecodeWholeSound bool
}

// Defaults returns one loader per resource type.
func Defaults(opts Options) map[resources.ResourceType]ResourceLoader {
	script := &ScriptLoader{}
	def := &DefinitionLoader{}
	return map[resources.ResourceType]ResourceLoader{
		resources.ResourceTypeConfig:        &ConfigLoader{},
		resources.ResourceTypeConsoleScript: script,
		resources.ResourceTypeEntity:        def,
		resources.ResourceTypeGameScript:    script,
		resources.ResourceTypeMap:           &MapLoader{},
		resources.ResourceTypeMaterial:      &MaterialLoader{},
		resources.ResourceTypeModel:         &ModelLoader{},
		resources.ResourceTypePlayerModel:   def,
		resources.ResourceTypeProp:          def,
		resources.ResourceTypeSound:         &SoundLoader{DecodeWhole: opts.DecodeWholeSound},
		resources.ResourceTypeTexture:       &TextureLoader{},
	}
}

// noOptions is embedded by loaders whose entries take no options.
type noOptions struct{}

func (noOptions) Params(params interface{}) (interface{}, error) {
	if params != nil {
		return nil, fmt.Errorf("unexpected load options %T", params)
	}
	return nil, nil
}

func (noOptions) Matches(stored, requested interface{}, p resources.Payload) bool {
	return true
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}
