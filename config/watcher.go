package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ocguard/ocguard/common"
)

// Watcher watches the configuration file and notifies handlers when it
// changes. The config is reloaded fresh on each change so handlers never
// receive stale data; a reload that fails validation is dropped and the
// previous config stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration

	mu       sync.Mutex
	handlers []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string) *Watcher {
	return &Watcher{
		path:     path,
		debounce: time.Second,
		done:     make(chan struct{}),
	}
}

// OnReload registers a handler called with the freshly loaded config
// after each successful reload.
func (w *Watcher) OnReload(handler func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching. Editors replace files rather than rewriting them
// in place, so the parent directory is watched and events are filtered by
// name.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return common.WrapError(err, "failed to create file watcher")
	}
	w.watcher = fw

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return common.WrapError(err, "failed to watch config directory")
	}

	go w.loop()
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce bursts of events from a single save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			common.LogWarn("Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.path)
	if err != nil {
		common.LogWarn("Config reload failed, keeping previous settings: %v", err)
		return
	}

	common.LogInfo("Configuration reloaded from %s", w.path)

	w.mu.Lock()
	handlers := make([]func(*Config), len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, handler := range handlers {
		handler(cfg)
	}
}
