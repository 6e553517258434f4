package goal

import (
	"net/url"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
)

// WatchingLoader caches lookups of another loader and drops the cache
// whenever a file in the watched directories is created, removed or
// renamed. Interactive goals use it so repeated require calls stay cheap
// while edits on disk are still picked up.
type WatchingLoader struct {
	loader  script.ResourceLoader
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	mu    sync.RWMutex
	cache map[string]*url.URL

	closeOnce sync.Once
	closeCh   chan struct{}
	done      chan struct{}
	// onInvalidate runs after each cache flush.
	onInvalidate func()
}

// NewWatchingLoader wraps loader and watches dirs. Directories that do not
// exist are skipped.
func NewWatchingLoader(loader script.ResourceLoader, logger *logging.Logger, dirs ...string) (*WatchingLoader, error) {
	return newWatchingLoader(loader, logger, nil, dirs...)
}

func newWatchingLoader(loader script.ResourceLoader, logger *logging.Logger, onInvalidate func(), dirs ...string) (*WatchingLoader, error) {
	if loader == nil {
		return nil, &script.ConfigError{Op: "watching loader", Msg: "resource loader is nil", Err: script.ErrNilArgument}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &WatchingLoader{
		loader:  loader,
		watcher: fsw,
		logger:  logging.OrNull(logger).WithComponent("watch"),
		cache:   make(map[string]*url.URL),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),

		onInvalidate: onInvalidate,
	}

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if err := fsw.Add(abs); err != nil {
			w.logger.Debug("not watching %s: %v", abs, err)
			continue
		}
		w.logger.Debug("watching %s", abs)
	}

	go w.processLoop()
	return w, nil
}

// LoadResource implements script.ResourceLoader. Misses are cached too;
// errors are not.
func (w *WatchingLoader) LoadResource(name string) (*url.URL, error) {
	w.mu.RLock()
	u, ok := w.cache[name]
	w.mu.RUnlock()
	if ok {
		return u, nil
	}

	u, err := w.loader.LoadResource(name)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.cache[name] = u
	w.mu.Unlock()
	return u, nil
}

// Invalidate drops every cached lookup.
func (w *WatchingLoader) Invalidate() {
	w.mu.Lock()
	w.cache = make(map[string]*url.URL)
	w.mu.Unlock()

	if w.onInvalidate != nil {
		w.onInvalidate()
	}
}

// WatchedPaths returns the directories being watched.
func (w *WatchingLoader) WatchedPaths() []string {
	return w.watcher.WatchList()
}

// Close stops watching. It is idempotent.
func (w *WatchingLoader) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		<-w.done
		err = w.watcher.Close()
	})
	return err
}

func (w *WatchingLoader) processLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Content edits do not change where a module lives
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				w.logger.Debug("%s changed, dropping cached lookups", ev.Name)
				w.Invalidate()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error: %v", err)
		}
	}
}
