package systems

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
	"github.com/spaghettifunk/anima-rc/engine/resources/loaders"
)

func TestLoadSharesEntries(t *testing.T) {
	rs := newResourceSystem(t, gameTree(t))

	a, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", nil)
	require.NoError(t, err)
	b, err := rs.Load(resources.ResourceTypeTexture, "self:textures/./wall", resources.TextureOptions{})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, rs.ID(), a.Owner)
	assert.Equal(t, 2, rs.Refs(a))

	tex, ok := rs.Texture(a)
	require.True(t, ok)
	assert.Equal(t, 8, tex.Width)
	_, ok = rs.Material(a)
	assert.False(t, ok)

	s := rs.Stats()
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, 1, s.Live[resources.ResourceTypeTexture])

	rs.Release(a)
	assert.Equal(t, 1, rs.Refs(b))
	rs.Release(b)
	_, ok = rs.Get(b)
	assert.False(t, ok)
	assert.Equal(t, 0, rs.Stats().Live[resources.ResourceTypeTexture])
}

func TestHandleGeneration(t *testing.T) {
	rs := newResourceSystem(t, gameTree(t))

	old, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", nil)
	require.NoError(t, err)
	rs.Release(old)

	fresh, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", nil)
	require.NoError(t, err)
	assert.Equal(t, old.Index, fresh.Index)
	assert.Equal(t, old.Generation+1, fresh.Generation)

	_, ok := rs.Get(old)
	assert.False(t, ok)
	assert.ErrorIs(t, rs.Grab(old), core.ErrInvalidHandle)
	assert.Equal(t, 0, rs.Refs(old))

	// releasing a stale handle leaves the live entry alone
	rs.Release(old)
	assert.Equal(t, 1, rs.Refs(fresh))
}

func TestGrab(t *testing.T) {
	rs := newResourceSystem(t, gameTree(t))

	h, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	require.NoError(t, err)
	require.NoError(t, rs.Grab(h))
	assert.Equal(t, 2, rs.Refs(h))

	rs.Release(h)
	m, ok := rs.MapData(h)
	require.True(t, ok)
	assert.Equal(t, []byte("map"), m.Data)

	assert.ErrorIs(t, rs.Grab(resources.Handle{}), core.ErrInvalidHandle)
}

func TestTextureOptionsSplitEntries(t *testing.T) {
	rs := newResourceSystem(t, gameTree(t))

	plain, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", nil)
	require.NoError(t, err)
	medium, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", resources.TextureOptions{Quality: resources.QualityMedium})
	require.NoError(t, err)
	alpha, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", resources.TextureOptions{NeedsAlpha: true})
	require.NoError(t, err)

	assert.NotEqual(t, plain, medium)
	assert.NotEqual(t, plain, alpha)
	assert.Equal(t, 3, rs.Stats().Live[resources.ResourceTypeTexture])

	tex, _ := rs.Texture(medium)
	assert.Equal(t, 4, tex.Width)
	tex, _ = rs.Texture(alpha)
	assert.Equal(t, 4, tex.Channels)

	// the alpha entry serves later alpha requests
	again, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", resources.TextureOptions{NeedsAlpha: true})
	require.NoError(t, err)
	assert.Equal(t, alpha, again)

	// a translucent image already has 4 channels
	glass, err := rs.Load(resources.ResourceTypeTexture, "textures/glass", nil)
	require.NoError(t, err)
	glassAlpha, err := rs.Load(resources.ResourceTypeTexture, "textures/glass", resources.TextureOptions{NeedsAlpha: true})
	require.NoError(t, err)
	assert.Equal(t, glass, glassAlpha)
}

func TestDependencyCascade(t *testing.T) {
	rs := newResourceSystem(t, gameTree(t))

	model, err := rs.Load(resources.ResourceTypeModel, "models/crate", nil)
	require.NoError(t, err)

	m, ok := rs.Model(model)
	require.True(t, ok)
	require.Equal(t, 1, m.Parts())
	mat, ok := rs.Material(m.Materials[0])
	require.True(t, ok)
	assert.Equal(t, float32(0.5), mat.Color.X)
	require.True(t, mat.Texture.IsValid())

	tex, err := rs.Load(resources.ResourceTypeTexture, "textures/wall", nil)
	require.NoError(t, err)
	assert.Equal(t, mat.Texture, tex)
	assert.Equal(t, 2, rs.Refs(tex))

	s := rs.Stats()
	assert.Equal(t, 1, s.Live[resources.ResourceTypeModel])
	assert.Equal(t, 1, s.Live[resources.ResourceTypeMaterial])
	assert.Equal(t, 1, s.Live[resources.ResourceTypeTexture])

	rs.Release(model)
	s = rs.Stats()
	assert.Equal(t, 0, s.Live[resources.ResourceTypeModel])
	assert.Equal(t, 0, s.Live[resources.ResourceTypeMaterial])
	assert.Equal(t, 1, s.Live[resources.ResourceTypeTexture])
	assert.Equal(t, 1, rs.Refs(tex))

	rs.Release(tex)
	assert.Equal(t, 0, rs.Stats().Live[resources.ResourceTypeTexture])
}

func TestLoadErrors(t *testing.T) {
	main := gameTree(t)
	writeAt(t, main, "games/main/textures/broken.png", []byte("not a png"))
	writeAt(t, main, "games/main/models/orphan.p3m", modelBytes(t, "materials/wall", "materials/missing"))
	rs := newResourceSystem(t, main)

	_, err := rs.Load(resources.ResourceTypeTexture, "textures/none", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = rs.Load(resources.ResourceTypeTexture, "textures/broken", nil)
	assert.ErrorIs(t, err, core.ErrDecodeFailure)
	assert.ErrorContains(t, err, "textures/broken")

	// a model whose second material is missing gives back the first one
	_, err = rs.Load(resources.ResourceTypeModel, "models/orphan", nil)
	assert.ErrorIs(t, err, core.ErrDecodeFailure)
	assert.ErrorIs(t, err, core.ErrNotFound)

	s := rs.Stats()
	assert.Equal(t, uint64(2), s.DecodeFailures)
	assert.Equal(t, 0, s.Pending)
	for rt, n := range s.Live {
		assert.Zero(t, n, resources.ResourceType(rt).String())
	}

	_, err = rs.Load(resources.ResourceTypeTexture, "textures/wall", "high")
	assert.Error(t, err)
	_, err = rs.Load(resources.ResourceTypeCount, "textures/wall", nil)
	assert.Error(t, err)

	// fixed on disk: the failed load left nothing behind
	writeAt(t, main, "games/main/textures/broken.png", pngBytes(t, 2, 2, 255))
	h, err := rs.Load(resources.ResourceTypeTexture, "textures/broken", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Refs(h))
}

func TestLoaderRegistration(t *testing.T) {
	main := gameTree(t)
	rs, err := NewResourceSystem(&ResourceSystemConfig{Resolver: NewPathResolver(main, "", "main", nil)})
	require.NoError(t, err)
	defer rs.Shutdown()

	_, err = rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	assert.ErrorIs(t, err, core.ErrNoLoader)

	require.NoError(t, rs.RegisterLoader(resources.ResourceTypeMap, &loaders.MapLoader{}))
	assert.Error(t, rs.RegisterLoader(resources.ResourceTypeMap, &loaders.MapLoader{}))
	assert.Error(t, rs.RegisterLoader(resources.ResourceTypeCount, &loaders.MapLoader{}))
	assert.Error(t, rs.RegisterLoader(resources.ResourceTypeSound, nil))

	_, err = rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	assert.NoError(t, err)

	_, err = NewResourceSystem(&ResourceSystemConfig{})
	assert.Error(t, err)
}

func TestForeignHandle(t *testing.T) {
	main := gameTree(t)
	a := newResourceSystem(t, main)
	b := newResourceSystem(t, main)

	h, err := a.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	require.NoError(t, err)
	hb, err := b.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	require.NoError(t, err)
	require.Equal(t, h.Index, hb.Index)

	_, ok := b.Get(h)
	assert.False(t, ok)
	assert.ErrorIs(t, b.Grab(h), core.ErrInvalidHandle)
	b.Release(h)
	assert.Equal(t, 1, b.Refs(hb))
}

func TestConcurrentLoadsDecodeOnce(t *testing.T) {
	sl := &stubLoader{gate: make(chan struct{})}
	rs := newStubSystem(t, gameTree(t), sl)

	const n = 8
	var wg sync.WaitGroup
	handles := make([]resources.Handle, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], errs[i] = rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
		}()
	}

	assert.Eventually(t, func() bool { return sl.loads.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, rs.Stats().Pending)
	close(sl.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, handles[0], handles[i])
	}
	assert.Equal(t, int32(1), sl.loads.Load())
	assert.Equal(t, n, rs.Refs(handles[0]))
	assert.Equal(t, 0, rs.Stats().Pending)
}

func TestConcurrentHitsAndReleases(t *testing.T) {
	sl := &stubLoader{}
	rs := newStubSystem(t, gameTree(t), sl)

	held, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				h, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
				if !assert.NoError(t, err) {
					return
				}
				rs.Release(h)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rs.Refs(held))
	assert.Equal(t, int32(1), sl.loads.Load())
	assert.Equal(t, uint64(16*500), rs.Stats().Hits)
}

func TestWaitersSeeDecodeFailure(t *testing.T) {
	sl := &stubLoader{gate: make(chan struct{}), fail: errors.New("corrupt")}
	rs := newStubSystem(t, gameTree(t), sl)

	first := make(chan error, 1)
	go func() {
		_, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
		first <- err
	}()
	require.Eventually(t, func() bool { return sl.loads.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
		second <- err
	}()
	require.Eventually(t, func() bool { return rs.Stats().Waits == 1 }, time.Second, time.Millisecond)
	close(sl.gate)

	assert.ErrorIs(t, <-first, core.ErrDecodeFailure)
	assert.ErrorIs(t, <-second, core.ErrDecodeFailure)
	assert.Equal(t, int32(1), sl.loads.Load())
}

func TestLoaderPanic(t *testing.T) {
	sl := &stubLoader{panics: true}
	rs := newStubSystem(t, gameTree(t), sl)

	_, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	assert.ErrorIs(t, err, core.ErrDecodeFailure)
	assert.ErrorContains(t, err, "decoder exploded")
	assert.Equal(t, 0, rs.Stats().Live[resources.ResourceTypeMap])
}

func TestMarkStale(t *testing.T) {
	main := gameTree(t)
	sl := &stubLoader{}
	rs := newStubSystem(t, main, sl)

	old, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	require.NoError(t, err)
	hdr, ok := rs.Header(old)
	require.True(t, ok)

	assert.Equal(t, 0, rs.MarkStale(hdr.Path+".other"))
	assert.Equal(t, 1, rs.MarkStale(hdr.Path))
	assert.True(t, rs.IsStale(old))
	assert.Equal(t, 0, rs.MarkStale(hdr.Path))

	fresh, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)
	assert.False(t, rs.IsStale(fresh))
	assert.Equal(t, int32(2), sl.loads.Load())

	_, ok = rs.Get(old)
	assert.True(t, ok)
	rs.Release(old)
	assert.Equal(t, int32(1), sl.unloads.Load())
}

func TestShutdown(t *testing.T) {
	sl := &stubLoader{}
	rs := newStubSystem(t, gameTree(t), sl)

	h, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	require.NoError(t, err)
	require.NoError(t, rs.Grab(h))

	require.NoError(t, rs.Shutdown())
	assert.Equal(t, int32(1), sl.unloads.Load())

	_, err = rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
	assert.ErrorIs(t, err, core.ErrSystemClosed)
	assert.ErrorIs(t, rs.Grab(h), core.ErrSystemClosed)
	rs.Release(h)
	assert.Equal(t, int32(1), sl.unloads.Load())
	assert.NoError(t, rs.Shutdown())
}

func TestShutdownDuringDecode(t *testing.T) {
	sl := &stubLoader{gate: make(chan struct{})}
	rs := newStubSystem(t, gameTree(t), sl)

	result := make(chan error, 1)
	go func() {
		_, err := rs.Load(resources.ResourceTypeMap, "maps/e1m1", nil)
		result <- err
	}()
	require.Eventually(t, func() bool { return sl.loads.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, rs.Shutdown())
	close(sl.gate)

	assert.ErrorIs(t, <-result, core.ErrSystemClosed)
	assert.Equal(t, int32(1), sl.unloads.Load())
}

func TestResolveThroughSystem(t *testing.T) {
	main := gameTree(t)
	rs := newResourceSystem(t, main)

	path, ext, err := rs.Resolve("models/crate", resources.ResourceTypeModel)
	require.NoError(t, err)
	assert.Equal(t, ".p3m", ext)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
