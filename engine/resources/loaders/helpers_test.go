package loaders

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

type loadCall struct {
	Type   resources.ResourceType
	URI    string
	Params interface{}
}

// fakeDeps records dependency traffic instead of going through a cache.
type fakeDeps struct {
	mu       sync.Mutex
	owner    uuid.UUID
	next     uint32
	paths    map[string]string
	fail     map[string]error
	loads    []loadCall
	released []resources.Handle
}

func newFakeDeps() *fakeDeps {
	return &fakeDeps{
		owner: uuid.New(),
		paths: map[string]string{},
		fail:  map[string]error{},
	}
}

func (d *fakeDeps) Load(rt resources.ResourceType, uri string, params interface{}) (resources.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.fail[uri]; ok {
		return resources.Handle{}, err
	}
	d.next++
	d.loads = append(d.loads, loadCall{rt, uri, params})
	return resources.Handle{Type: rt, Index: d.next, Owner: d.owner}, nil
}

func (d *fakeDeps) Release(h resources.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = append(d.released, h)
}

func (d *fakeDeps) Resolve(uri string, rt resources.ResourceType) (string, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.paths[uri]; ok {
		return p, ".txt", nil
	}
	return "", "", fmt.Errorf("%s: %w", uri, core.ErrNotFound)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func grayImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func rgbaImage(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: alpha})
		}
	}
	return img
}

// wavFile builds a canonical PCM RIFF/WAVE file.
func wavFile(format, channels uint16, rate uint32, bits uint16, samples []byte) []byte {
	block := channels * ((bits + 7) / 8)
	b := []byte("RIFF")
	b = binary.LittleEndian.AppendUint32(b, uint32(36+len(samples)))
	b = append(b, "WAVEfmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, format)
	b = binary.LittleEndian.AppendUint16(b, channels)
	b = binary.LittleEndian.AppendUint32(b, rate)
	b = binary.LittleEndian.AppendUint32(b, rate*uint32(block))
	b = binary.LittleEndian.AppendUint16(b, block)
	b = binary.LittleEndian.AppendUint16(b, bits)
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(samples)))
	return append(b, samples...)
}
