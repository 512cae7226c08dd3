package systems

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rc/engine/math"
	"github.com/spaghettifunk/anima-rc/engine/resources"
	"github.com/spaghettifunk/anima-rc/engine/resources/loaders"
)

func writeAt(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func touch(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		writeAt(t, root, rel, []byte("x = 1\n"))
	}
}

func mkdirs(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755))
	}
}

func pngBytes(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func modelBytes(t *testing.T, materials ...string) []byte {
	t.Helper()
	parts := make([]loaders.ModelPart, 0, len(materials))
	for _, m := range materials {
		parts = append(parts, loaders.ModelPart{
			Material: m,
			Vertices: []math.Vertex3D{
				{Position: math.Vec3{X: 0}},
				{Position: math.Vec3{X: 1}},
				{Position: math.Vec3{Y: 1}},
			},
			Indices: []uint32{0, 1, 2},
		})
	}
	var buf bytes.Buffer
	require.NoError(t, loaders.EncodeModel(&buf, parts, false))
	return buf.Bytes()
}

// gameTree lays out a main directory with one game, "main", holding a model
// that uses a material that uses a texture.
func gameTree(t *testing.T) string {
	t.Helper()
	main := t.TempDir()
	writeAt(t, main, "games/main/textures/wall.png", pngBytes(t, 8, 8, 255))
	writeAt(t, main, "games/main/textures/glass.png", pngBytes(t, 4, 4, 128))
	writeAt(t, main, "games/main/materials/wall.txt", []byte("texture = textures/wall\ncolor = 0.5, 0.5, 0.5\n"))
	writeAt(t, main, "games/main/models/crate.p3m", modelBytes(t, "materials/wall"))
	writeAt(t, main, "games/main/maps/e1m1.pmf", []byte("map"))
	return main
}

func newResourceSystem(t *testing.T, main string) *ResourceSystem {
	t.Helper()
	rs, err := NewResourceSystem(&ResourceSystemConfig{
		Resolver: NewPathResolver(main, "", "main", nil),
		Loaders:  loaders.Defaults(loaders.Options{DecodeWholeSound: true}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { rs.Shutdown() })
	return rs
}

// stubLoader stands in for the map loader. With gate set, Load blocks until
// the gate is closed.
type stubLoader struct {
	gate    chan struct{}
	fail    error
	panics  bool
	loads   atomic.Int32
	unloads atomic.Int32
}

func (sl *stubLoader) Params(params interface{}) (interface{}, error) {
	return params, nil
}

func (sl *stubLoader) Load(req *loaders.Request) (resources.Payload, error) {
	sl.loads.Add(1)
	if sl.gate != nil {
		<-sl.gate
	}
	if sl.panics {
		panic("decoder exploded")
	}
	if sl.fail != nil {
		return nil, sl.fail
	}
	return &resources.Map{Data: []byte(req.URI)}, nil
}

func (sl *stubLoader) Unload(p resources.Payload, deps loaders.Dependencies) {
	sl.unloads.Add(1)
}

func (sl *stubLoader) Matches(stored, requested interface{}, p resources.Payload) bool {
	return true
}

func newStubSystem(t *testing.T, main string, sl *stubLoader) *ResourceSystem {
	t.Helper()
	rs, err := NewResourceSystem(&ResourceSystemConfig{
		Resolver: NewPathResolver(main, "", "main", nil),
		Loaders:  map[resources.ResourceType]loaders.ResourceLoader{resources.ResourceTypeMap: sl},
	})
	require.NoError(t, err)
	t.Cleanup(func() { rs.Shutdown() })
	return rs
}
