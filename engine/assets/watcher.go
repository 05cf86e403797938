package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// ChangeFunc is called from the watcher goroutine for every created or
// written asset file.
type ChangeFunc func(path string, kind metadata.ResourceType)

// Watcher reports changes to asset files below a directory, including
// directories created after it started.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	onChange ChangeFunc

	mutex    sync.Mutex
	isClosed bool
	done     chan struct{}
	stopped  chan struct{}
}

func NewWatcher(root string, onChange ChangeFunc) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsnotify: fsWatch,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if err := w.watchRecursive(root); err != nil {
		fsWatch.Close()
		return nil, err
	}
	go w.start()
	return w, nil
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return errors.New("asset watcher already closed")
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	<-w.stopped
	return nil
}

func (w *Watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			w.handleEvent(e)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Remove != 0 {
		// the path may not have been a watched directory
		_ = w.fsnotify.Remove(e.Name)
		return
	}
	if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
		return
	}

	s, err := os.Stat(e.Name)
	if err != nil {
		return
	}
	if s.IsDir() {
		if e.Has(fsnotify.Create) {
			if err := w.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch `%s`: %s", e.Name, err)
			}
		}
		return
	}

	kind := metadata.ResourceTypeOf(e.Name)
	if kind == metadata.ResourceTypeNone {
		return
	}
	core.LogDebug("asset changed: %s (%s)", e.Name, kind)
	if w.onChange != nil {
		w.onChange(e.Name, kind)
	}
}

// watchRecursive adds path and every directory below it.
func (w *Watcher) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		return nil
	})
}
