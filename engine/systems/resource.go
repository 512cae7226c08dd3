package systems

import (
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rc/engine/containers"
	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
	"github.com/spaghettifunk/anima-rc/engine/resources/loaders"
)

/** @brief The configuration for the resource system */
type ResourceSystemConfig struct {
	/** @brief Resolves URIs to files. Required. */
	Resolver *PathResolver
	/** @brief Loaders registered at creation. More can be added with RegisterLoader. */
	Loaders map[resources.ResourceType]loaders.ResourceLoader
}

type entry struct {
	header  resources.Header
	params  interface{}
	payload resources.Payload
	loader  loaders.ResourceLoader
	uri     string

	// pending is set while the entry is reserved but not decoded yet. ready is
	// closed once it is committed or rolled back; err holds the rollback cause.
	pending bool
	ready   chan struct{}
	err     error

	// stale entries are no longer handed out by Load.
	stale bool
}

// ResourceSystem is the reference counted resource cache. Every decodable
// type has its own group of slots; an entry is identified by resolved path
// and compatible load options.
type ResourceSystem struct {
	id       uuid.UUID
	resolver *PathResolver
	metrics  *core.Metrics

	mu      sync.Mutex
	closed  bool
	groups  [resources.ResourceTypeCount]*containers.SlotArray[entry]
	loaders [resources.ResourceTypeCount]loaders.ResourceLoader
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	core.MetricsSnapshot
	Live    [resources.ResourceTypeCount]int
	Pending int
}

func NewResourceSystem(config *ResourceSystemConfig) (*ResourceSystem, error) {
	if config == nil || config.Resolver == nil {
		return nil, errors.New("failed to run NewResourceSystem because config.Resolver is nil")
	}
	rs := &ResourceSystem{
		id:       uuid.New(),
		resolver: config.Resolver,
		metrics:  core.NewMetrics(),
	}
	for t := resources.ResourceType(0); t < resources.ResourceTypeCount; t++ {
		rs.groups[t] = containers.NewSlotArray[entry](resources.InitialGroupCapacity[t])
	}
	for t, l := range config.Loaders {
		if err := rs.RegisterLoader(t, l); err != nil {
			return nil, err
		}
	}

	core.LogInfo("Resource system %s initialized.", rs.id)
	return rs, nil
}

// ID is stamped into every handle the system issues.
func (rs *ResourceSystem) ID() uuid.UUID {
	return rs.id
}

func (rs *ResourceSystem) RegisterLoader(rt resources.ResourceType, loader loaders.ResourceLoader) error {
	if !rt.Valid() {
		return fmt.Errorf("cannot register loader for invalid type %d", int(rt))
	}
	if loader == nil {
		return fmt.Errorf("cannot register nil loader for %s", rt)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.loaders[rt] != nil {
		return fmt.Errorf("loader of type %s already exists and will not be registered", rt)
	}
	rs.loaders[rt] = loader
	core.LogDebug("Loader for %s registered.", rt)
	return nil
}

// Resolve forwards to the path resolver.
func (rs *ResourceSystem) Resolve(uri string, rt resources.ResourceType) (string, string, error) {
	return rs.resolver.Resolve(uri, rt)
}

// Load returns a handle to the entry for uri, decoding it on a miss. params
// are the type's options value (or nil for the defaults). Concurrent loads of
// the same identity decode once; the others wait and share the result.
func (rs *ResourceSystem) Load(rt resources.ResourceType, uri string, params interface{}) (resources.Handle, error) {
	if !rt.Valid() {
		return resources.Handle{}, fmt.Errorf("load %s: invalid resource type %d", uri, int(rt))
	}
	rs.mu.Lock()
	loader := rs.loaders[rt]
	rs.mu.Unlock()
	if loader == nil {
		return resources.Handle{}, fmt.Errorf("load %s %s: %w", rt, uri, core.ErrNoLoader)
	}
	opts, err := loader.Params(params)
	if err != nil {
		return resources.Handle{}, fmt.Errorf("load %s %s: %w", rt, uri, err)
	}

	path, ext, err := rs.resolver.Resolve(uri, rt)
	if err != nil {
		return resources.Handle{}, err
	}
	crc := crc32.ChecksumIEEE([]byte(path))

	var e *entry
	for {
		rs.mu.Lock()
		if rs.closed {
			rs.mu.Unlock()
			return resources.Handle{}, core.ErrSystemClosed
		}
		found := rs.find(rt, path, crc, loader, opts)
		if found == nil {
			e = rs.reserve(rt, path, crc, uri, loader, opts)
			rs.mu.Unlock()
			break
		}
		if !found.pending {
			found.header.Refs++
			refs := found.header.Refs
			h := rs.handle(found)
			rs.mu.Unlock()
			rs.metrics.Hit()
			core.LogDebug("Cache hit %s %s (refs=%d)", rt, uri, refs)
			return h, nil
		}
		ready := found.ready
		rs.mu.Unlock()

		rs.metrics.Wait()
		<-ready
		if found.err != nil {
			return resources.Handle{}, found.err
		}
	}

	rs.metrics.Miss()
	core.LogDebug("Cache miss %s %s, decoding %s", rt, uri, path)

	clock := core.NewClock()
	clock.Start()
	payload, derr := rs.decode(loader, &loaders.Request{
		URI:    uri,
		Path:   path,
		Ext:    ext,
		Params: opts,
		Deps:   rs,
	})

	rs.mu.Lock()
	if derr == nil && rs.closed {
		derr = core.ErrSystemClosed
		defer loader.Unload(payload, rs)
	}
	if derr != nil {
		if errors.Is(derr, core.ErrSystemClosed) {
			e.err = derr
		} else {
			e.err = fmt.Errorf("%w: %s %s: %w", core.ErrDecodeFailure, rt, uri, derr)
		}
		rs.groups[rt].Release(e.header.Index)
		close(e.ready)
		rs.mu.Unlock()

		rs.metrics.Failure()
		core.LogWarn("Failed to load %s %s: %s", rt, uri, derr)
		return resources.Handle{}, e.err
	}
	e.payload = payload
	e.pending = false
	h := rs.handle(e)
	close(e.ready)
	rs.mu.Unlock()

	clock.Update()
	rs.metrics.Decoded(clock.Elapsed())
	return h, nil
}

func (rs *ResourceSystem) decode(loader loaders.ResourceLoader, req *loaders.Request) (p resources.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("loader panicked: %v", r)
		}
	}()
	p, err = loader.Load(req)
	if err == nil && p == nil {
		err = errors.New("loader returned no payload")
	}
	return p, err
}

// find returns the compatible live or pending entry for path. rs.mu is held.
func (rs *ResourceSystem) find(rt resources.ResourceType, path string, crc uint32, loader loaders.ResourceLoader, opts interface{}) *entry {
	var found *entry
	rs.groups[rt].Each(func(_ uint32, e *entry) bool {
		if e.stale || e.header.PathHash != crc || e.header.Path != path {
			return true
		}
		if !loader.Matches(e.params, opts, e.payload) {
			return true
		}
		found = e
		return false
	})
	return found
}

// reserve claims a slot for a pending entry. rs.mu is held.
func (rs *ResourceSystem) reserve(rt resources.ResourceType, path string, crc uint32, uri string, loader loaders.ResourceLoader, opts interface{}) *entry {
	e := &entry{
		header: resources.Header{
			Type:     rt,
			Path:     path,
			PathHash: crc,
			Refs:     1,
		},
		params:  opts,
		loader:  loader,
		uri:     uri,
		pending: true,
		ready:   make(chan struct{}),
	}
	e.header.Index, e.header.Generation = rs.groups[rt].Acquire(e)
	return e
}

func (rs *ResourceSystem) handle(e *entry) resources.Handle {
	return resources.Handle{
		Type:       e.header.Type,
		Index:      e.header.Index,
		Generation: e.header.Generation,
		Owner:      rs.id,
	}
}

// lookup returns the committed entry of h. rs.mu is held.
func (rs *ResourceSystem) lookup(h resources.Handle) (*entry, error) {
	if !h.IsValid() {
		return nil, core.ErrInvalidHandle
	}
	if h.Owner != rs.id {
		return nil, fmt.Errorf("%w: %s issued by %s", core.ErrInvalidHandle, h, h.Owner)
	}
	if !h.Type.Valid() {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidHandle, h)
	}
	e, ok := rs.groups[h.Type].At(h.Index, h.Generation)
	if !ok || e.pending {
		return nil, fmt.Errorf("%w: %s is stale", core.ErrInvalidHandle, h)
	}
	return e, nil
}

// Release drops one reference. The last release destroys the entry and
// releases whatever it depends on.
func (rs *ResourceSystem) Release(h resources.Handle) {
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return
	}
	e, err := rs.lookup(h)
	if err != nil {
		rs.mu.Unlock()
		core.LogWarn("Release: %s", err)
		return
	}
	e.header.Refs--
	if e.header.Refs > 0 {
		rs.mu.Unlock()
		return
	}
	rs.groups[h.Type].Release(h.Index)
	rs.mu.Unlock()

	core.LogDebug("Destroying %s %s", h.Type, e.uri)
	e.loader.Unload(e.payload, rs)
}

// Grab adds a reference to a live handle.
func (rs *ResourceSystem) Grab(h resources.Handle) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return core.ErrSystemClosed
	}
	e, err := rs.lookup(h)
	if err != nil {
		return err
	}
	e.header.Refs++
	return nil
}

func (rs *ResourceSystem) Get(h resources.Handle) (resources.Payload, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, err := rs.lookup(h)
	if err != nil {
		return nil, false
	}
	return e.payload, true
}

func (rs *ResourceSystem) Header(h resources.Handle) (resources.Header, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, err := rs.lookup(h)
	if err != nil {
		return resources.Header{}, false
	}
	return e.header, true
}

// Refs returns the reference count of h, or 0 for a stale handle.
func (rs *ResourceSystem) Refs(h resources.Handle) int {
	hdr, ok := rs.Header(h)
	if !ok {
		return 0
	}
	return hdr.Refs
}

// MarkStale flags every entry decoded from path so later loads decode the file
// again. Existing handles keep the old payload. It returns the number of
// entries flagged.
func (rs *ResourceSystem) MarkStale(path string) int {
	crc := crc32.ChecksumIEEE([]byte(path))
	n := 0
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, g := range rs.groups {
		g.Each(func(_ uint32, e *entry) bool {
			if !e.pending && !e.stale && e.header.PathHash == crc && e.header.Path == path {
				e.stale = true
				n++
			}
			return true
		})
	}
	return n
}

// IsStale reports whether h refers to an entry whose file changed on disk.
func (rs *ResourceSystem) IsStale(h resources.Handle) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, err := rs.lookup(h)
	return err == nil && e.stale
}

func (rs *ResourceSystem) Stats() Stats {
	s := Stats{MetricsSnapshot: rs.metrics.Snapshot()}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for t, g := range rs.groups {
		g.Each(func(_ uint32, e *entry) bool {
			if e.pending {
				s.Pending++
			} else {
				s.Live[t]++
			}
			return true
		})
	}
	return s
}

// Shutdown destroys every entry regardless of its reference count. Loads
// still decoding are discarded when they finish.
func (rs *ResourceSystem) Shutdown() error {
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return nil
	}
	rs.closed = true
	var drained []*entry
	for _, g := range rs.groups {
		g.Each(func(i uint32, e *entry) bool {
			if !e.pending {
				drained = append(drained, e)
				g.Release(i)
			}
			return true
		})
	}
	rs.mu.Unlock()

	for _, e := range drained {
		e.loader.Unload(e.payload, rs)
	}
	core.LogInfo("Resource system %s shut down, %d entries released.", rs.id, len(drained))
	return nil
}

func (rs *ResourceSystem) Texture(h resources.Handle) (*resources.Texture, bool) {
	return payloadAs[*resources.Texture](rs, h)
}

func (rs *ResourceSystem) Material(h resources.Handle) (*resources.Material, bool) {
	return payloadAs[*resources.Material](rs, h)
}

func (rs *ResourceSystem) Model(h resources.Handle) (*resources.Model, bool) {
	return payloadAs[*resources.Model](rs, h)
}

func (rs *ResourceSystem) Sound(h resources.Handle) (*resources.Sound, bool) {
	return payloadAs[*resources.Sound](rs, h)
}

func (rs *ResourceSystem) Config(h resources.Handle) (*resources.Config, bool) {
	return payloadAs[*resources.Config](rs, h)
}

func (rs *ResourceSystem) Script(h resources.Handle) (*resources.Script, bool) {
	return payloadAs[*resources.Script](rs, h)
}

func (rs *ResourceSystem) Definition(h resources.Handle) (*resources.Definition, bool) {
	return payloadAs[*resources.Definition](rs, h)
}

func (rs *ResourceSystem) MapData(h resources.Handle) (*resources.Map, bool) {
	return payloadAs[*resources.Map](rs, h)
}

func payloadAs[T resources.Payload](rs *ResourceSystem, h resources.Handle) (T, bool) {
	var zero T
	p, ok := rs.Get(h)
	if !ok {
		return zero, false
	}
	v, ok := p.(T)
	return v, ok
}
