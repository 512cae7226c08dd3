package systems

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-rc/engine/core"
)

// ResourceWatcher watches resource directories and flags cache entries stale
// when their file is written, replaced or removed. Changed paths are published
// on Changes and as EVENT_CODE_RESOURCE_CHANGED events.
type ResourceWatcher struct {
	rs       *ResourceSystem
	fsnotify *fsnotify.Watcher

	mutex    sync.Mutex
	isClosed bool
	done     chan struct{}
	stopped  chan struct{}
	changes  chan string
}

func NewResourceWatcher(rs *ResourceSystem) (*ResourceWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	rw := &ResourceWatcher{
		rs:       rs,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		changes:  make(chan string, 64),
	}
	go rw.start()
	return rw, nil
}

// Changes delivers the paths of changed files. Paths are dropped when nobody
// keeps up with the channel.
func (rw *ResourceWatcher) Changes() <-chan string {
	return rw.changes
}

// AddRecursive starts watching the named directory and all sub-directories.
func (rw *ResourceWatcher) AddRecursive(name string) error {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()
	if rw.isClosed {
		return errors.New("resource watcher already closed")
	}
	return rw.watchRecursive(name)
}

func (rw *ResourceWatcher) Close() error {
	rw.mutex.Lock()
	if rw.isClosed {
		rw.mutex.Unlock()
		return nil
	}
	rw.isClosed = true
	close(rw.done)
	rw.mutex.Unlock()

	<-rw.stopped
	return nil
}

func (rw *ResourceWatcher) start() {
	defer close(rw.stopped)
	for {
		select {
		case e, ok := <-rw.fsnotify.Events:
			if !ok {
				return
			}
			rw.handleEvent(e)

		case err, ok := <-rw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("Resource watcher: %s", err)

		case <-rw.done:
			rw.fsnotify.Close()
			close(rw.changes)
			return
		}
	}
}

func (rw *ResourceWatcher) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			rw.mutex.Lock()
			if !rw.isClosed {
				rw.watchRecursive(e.Name)
			}
			rw.mutex.Unlock()
			return
		}
	}
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	path := filepath.Clean(e.Name)
	n := rw.rs.MarkStale(path)
	if n > 0 {
		core.LogInfo("%s changed, %d cached entries marked stale", path, n)
	}
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESOURCE_CHANGED,
		Data: &core.ResourceChangedEvent{Path: path, Stale: n},
	})
	select {
	case rw.changes <- path:
	default:
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (rw *ResourceWatcher) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return rw.fsnotify.Add(walkPath)
		}
		return nil
	})
}
