// internal/app/system/workers/retention.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// RetentionSweeper is a background worker that deletes stored notifications
// older than the retention window.
type RetentionSweeper struct {
	store     notifications.Pruner
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewRetentionSweeper creates a retention worker.
//
// Parameters:
//   - store: the primary notification store
//   - logger: zap logger for logging
//   - interval: how often to sweep (e.g., 1 hour)
//   - retention: how old a record must be before it is deleted (e.g., 30 days)
func NewRetentionSweeper(store notifications.Pruner, logger *zap.Logger, interval, retention time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		store:     store,
		log:       logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *RetentionSweeper) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("notification retention worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *RetentionSweeper) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("notification retention worker stopped")
}

func (w *RetentionSweeper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep(context.Background())
		}
	}
}

// Sweep deletes expired records once and returns how many were removed.
func (w *RetentionSweeper) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Background())
	defer cancel()

	count, err := w.store.DeleteOlderThan(ctx, w.now().Add(-w.retention))
	if err != nil {
		w.log.Error("failed to prune notifications", zap.Error(err))
		return 0
	}

	if count > 0 {
		w.log.Info("pruned expired notifications", zap.Int("count", count))
	}
	return count
}
