// internal/app/system/workers/syncscheduler.go
package workers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Dispatcher delivers events to the agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev agent.Event) (agent.Result, error)
}

// SyncScheduler is a background worker that redeems background sync
// registrations. Each registered tag fires once per registration; registering
// a tag that is already pending is a no-op.
type SyncScheduler struct {
	agent    Dispatcher
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewSyncScheduler creates a sync scheduler.
//
// Parameters:
//   - a: the agent receiving SyncEvents
//   - logger: zap logger for logging
//   - interval: how often pending tags are redeemed (e.g., 30 seconds)
func NewSyncScheduler(a Dispatcher, logger *zap.Logger, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		agent:    a,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		pending:  make(map[string]struct{}),
	}
}

// Register queues tag for the next run.
func (w *SyncScheduler) Register(tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[tag] = struct{}{}
}

// Pending lists queued tags, sorted.
func (w *SyncScheduler) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	tags := make([]string, 0, len(w.pending))
	for t := range w.pending {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Start begins the background loop.
func (w *SyncScheduler) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("sync scheduler started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *SyncScheduler) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("sync scheduler stopped")
}

func (w *SyncScheduler) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce dispatches a SyncEvent for every pending tag and clears them.
func (w *SyncScheduler) RunOnce(ctx context.Context) int {
	w.mu.Lock()
	tags := make([]string, 0, len(w.pending))
	for t := range w.pending {
		tags = append(tags, t)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(tags)
	for _, tag := range tags {
		tctx, cancel := context.WithTimeout(ctx, timeouts.Background())
		_, err := w.agent.Dispatch(tctx, agent.SyncEvent{Tag: tag})
		cancel()
		if err != nil {
			w.log.Error("sync dispatch failed", zap.String("tag", tag), zap.Error(err))
			continue
		}
		w.log.Debug("sync tag redeemed", zap.String("tag", tag))
	}
	return len(tags)
}
