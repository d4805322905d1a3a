package taxonomy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"openmatch/internal/logging"
)

// Watcher hot-reloads a registry when its user table file changes on disk.
// Editors produce bursts of write events, so changes are debounced: the
// reload fires only after the file has been quiet for debounceDur.
type Watcher struct {
	mu       sync.Mutex
	registry *Registry
	path     string

	watcher     *fsnotify.Watcher
	debounceMap map[string]time.Time
	debounceDur time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	stats WatcherStats
}

// WatcherStats counts watcher activity since Start.
type WatcherStats struct {
	EventsSeen    int
	Reloads       int
	ReloadErrors  int
	LastReload    time.Time
	LastError     string
	LastErrorTime time.Time
}

// NewWatcher builds a watcher for the registry's user table file.
func NewWatcher(registry *Registry, path string) *Watcher {
	return &Watcher{
		registry:    registry,
		path:        path,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins watching the table file's directory. Non-blocking; the
// watch loop runs until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("taxonomy watcher already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: editors that replace-on-save
	// (rename + create) would otherwise drop the watch.
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.watcher = fw
	w.running = true

	go w.run(ctx)

	logging.Taxonomy("watching table file: %s", w.path)
	return nil
}

// Stop halts the watch loop and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if w.watcher != nil {
		w.watcher.Close()
	}
}

// Stats returns a copy of the watcher counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.TaxonomyWarn("watcher error: %v", err)
		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	w.stats.EventsSeen++
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()

	logging.TaxonomyDebug("table file event: %s %s", event.Op, event.Name)
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	if err := w.registry.Reload(); err != nil {
		w.mu.Lock()
		w.stats.ReloadErrors++
		w.stats.LastError = err.Error()
		w.stats.LastErrorTime = now
		w.mu.Unlock()
		logging.TaxonomyWarn("reload failed, keeping previous table: %v", err)
		return
	}

	w.mu.Lock()
	w.stats.Reloads++
	w.stats.LastReload = now
	w.mu.Unlock()
}
