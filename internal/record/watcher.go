package record

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Watcher polls the backing file's modification time and reloads the table
// when an external writer (e.g. a file sync) replaced it. Ticks run
// sequentially on one goroutine, so a slow reload never overlaps the next.
type Watcher struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
	onReload func(rows int)

	lastMod time.Time
}

// NewWatcher builds a watcher. onReload, if non-nil, fires after each
// successful reload with the new row count (metrics hook).
func NewWatcher(store *Store, interval time.Duration, logger *slog.Logger, onReload func(rows int)) *Watcher {
	return &Watcher{store: store, interval: interval, logger: logger, onReload: onReload}
}

// Run polls until ctx is cancelled. Tick errors are logged and never stop the
// next tick from being scheduled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	info, err := os.Stat(w.store.Path())
	if err != nil {
		w.logger.WarnContext(ctx, "watch tick: stat failed", "error", err)
		return
	}
	if !w.lastMod.IsZero() && info.ModTime().Equal(w.lastMod) {
		return
	}
	if err := w.store.Load(ctx); err != nil {
		w.logger.ErrorContext(ctx, "watch tick: reload failed", "error", err)
		return
	}
	w.lastMod = info.ModTime()
	if w.onReload != nil {
		w.onReload(w.store.Len())
	}
}
