package catalog

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mcpm-sh/mcpm/pkg/logging"
)

// Watcher reloads a Catalog whenever servers.json or profiles_metadata.json
// change on disk, so a long-running aggregator process picks up edits made
// by a separate `mcpm catalog` invocation without a restart. This is a
//  addition, grounded on fsnotify as used across the example
// pack's config-reload paths; the original Python mcpm has no equivalent
// (CLI processes are short-lived and always read-then-exit).
type Watcher struct {
	cat     *Catalog
	fsw     *fsnotify.Watcher
	onEvent func()

	mu     sync.Mutex
	closed bool
}

// WatchCatalog starts watching cat's backing directory. onEvent, if
// non-nil, is invoked after every successful reload (e.g. to re-snapshot a
// Registry). Call Close to stop.
func WatchCatalog(cat *Catalog, onEvent func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(cat.dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{cat: cat, fsw: fsw, onEvent: onEvent}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if err := w.reload(); err != nil {
				logging.Error("catalog", err, "watcher reload failed for %s", ev.Name)
				continue
			}
			if w.onEvent != nil {
				w.onEvent()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("catalog", err, "watcher received fsnotify error")
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	base := filepath.Base(ev.Name)
	if base != serversFileName && base != profilesFileName {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() error {
	fresh, err := Open(w.cat.dir)
	if err != nil {
		return err
	}

	w.cat.mu.Lock()
	defer w.cat.mu.Unlock()
	w.cat.srv = fresh.srv
	w.cat.prof = fresh.prof
	return nil
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}
