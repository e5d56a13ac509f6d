// internal/app/system/tasks/tasks.go
//
// Package tasks collects the asynchronous work an event handler starts into a
// joinable set. Each task carries a Policy:
//
//   - MustComplete tasks are part of the event's contract. Group.Wait blocks
//     until they finish and returns the first error.
//   - BestEffort tasks are detached from the event. They run on a context that
//     survives the caller's cancellation (bounded by the background timeout),
//     their errors are logged rather than returned, and only the Tracker waits
//     for them (for shutdown or tests).
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Policy says whether a task must finish before its event is considered handled.
type Policy int

const (
	// MustComplete tasks are awaited by Group.Wait.
	MustComplete Policy = iota
	// BestEffort tasks are not awaited by Group.Wait.
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case MustComplete:
		return "must-complete"
	case BestEffort:
		return "best-effort"
	default:
		return "unknown"
	}
}

// Tracker owns every best-effort task started by any Group it created.
type Tracker struct {
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewTracker creates a Tracker. timeout bounds each best-effort task; zero
// means no deadline.
func NewTracker(logger *zap.Logger, timeout time.Duration) *Tracker {
	return &Tracker{log: logger, timeout: timeout}
}

// Wait blocks until every best-effort task started so far has finished.
func (tr *Tracker) Wait() {
	tr.wg.Wait()
}

// WaitContext is Wait with a deadline. It reports whether all tasks finished.
func (tr *Tracker) WaitContext(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		tr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Group is the task set of one event.
type Group struct {
	tr   *Tracker
	ctx  context.Context
	must *errgroup.Group
	mctx context.Context
}

// NewGroup starts a task set for an event handled under ctx.
func (tr *Tracker) NewGroup(ctx context.Context) *Group {
	eg, mctx := errgroup.WithContext(ctx)
	return &Group{tr: tr, ctx: ctx, must: eg, mctx: mctx}
}

// Go starts fn under the given policy.
func (g *Group) Go(name string, p Policy, fn func(ctx context.Context) error) {
	if p == MustComplete {
		g.must.Go(func() error {
			return fn(g.mctx)
		})
		return
	}

	g.tr.wg.Add(1)
	go func() {
		defer g.tr.wg.Done()
		ctx := context.WithoutCancel(g.ctx)
		if g.tr.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.tr.timeout)
			defer cancel()
		}
		if err := fn(ctx); err != nil {
			g.tr.log.Debug("best-effort task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every MustComplete task has finished and returns the
// first error any of them returned.
func (g *Group) Wait() error {
	return g.must.Wait()
}
