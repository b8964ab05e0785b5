package tiles

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers cache maintenance when filesystem activity pushes the
// cache over its thresholds. Overlapping triggers are coalesced: a run in
// progress absorbs any events that arrive meanwhile.
type Watcher struct {
	dir              string
	triggerFileCount int
	limitBytes       int64
	maintain         func()

	running atomic.Bool
}

func NewWatcher(dir string, triggerFileCount, limitMB int, maintain func()) *Watcher {
	return &Watcher{
		dir:              dir,
		triggerFileCount: triggerFileCount,
		limitBytes:       int64(limitMB) * 1024 * 1024,
		maintain:         maintain,
	}
}

// Start watches the cache directory until the context ends.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				w.checkThresholds()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("tile watcher error", "error", err)
			}
		}
	}()
	return nil
}

// checkThresholds schedules one maintenance run when the cache exceeds the
// file count or byte thresholds. A no-op while a run is in flight.
func (w *Watcher) checkThresholds() {
	count, bytes, err := CacheStats(w.dir)
	if err != nil {
		slog.Warn("tile cache stat failed", "dir", w.dir, "error", err)
		return
	}
	over := (w.triggerFileCount > 0 && count >= w.triggerFileCount) ||
		(w.limitBytes > 0 && bytes >= w.limitBytes)
	if !over {
		return
	}
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer w.running.Store(false)
		slog.Info("tile maintenance triggered", "files", count, "bytes", bytes)
		w.maintain()
	}()
}
