package tasks_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"go.uber.org/zap"
)

func TestGroup_WaitJoinsMustComplete(t *testing.T) {
	tr := tasks.NewTracker(zap.NewNop(), time.Second)
	g := tr.NewGroup(context.Background())

	var done atomic.Int32
	for i := 0; i < 3; i++ {
		g.Go("work", tasks.MustComplete, func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if done.Load() != 3 {
		t.Errorf("expected 3 tasks done, got %d", done.Load())
	}
}

func TestGroup_WaitReturnsFirstError(t *testing.T) {
	tr := tasks.NewTracker(zap.NewNop(), time.Second)
	g := tr.NewGroup(context.Background())
	boom := errors.New("boom")

	g.Go("fails", tasks.MustComplete, func(ctx context.Context) error { return boom })
	g.Go("ok", tasks.MustComplete, func(ctx context.Context) error { return nil })

	if err := g.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestGroup_BestEffortNotAwaited(t *testing.T) {
	tr := tasks.NewTracker(zap.NewNop(), time.Second)
	g := tr.NewGroup(context.Background())

	release := make(chan struct{})
	var finished atomic.Bool
	g.Go("slow", tasks.BestEffort, func(ctx context.Context) error {
		<-release
		finished.Store(true)
		return errors.New("ignored")
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("best-effort error must not surface: %v", err)
	}
	if finished.Load() {
		t.Fatal("best-effort task should still be running")
	}

	close(release)
	tr.Wait()
	if !finished.Load() {
		t.Error("tracker should wait for the best-effort task")
	}
}

func TestGroup_BestEffortSurvivesCancellation(t *testing.T) {
	tr := tasks.NewTracker(zap.NewNop(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	g := tr.NewGroup(ctx)

	started := make(chan struct{})
	ctxErr := make(chan error, 1)
	g.Go("detached", tasks.BestEffort, func(tctx context.Context) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		ctxErr <- tctx.Err()
		return nil
	})

	<-started
	cancel()
	tr.Wait()

	select {
	case err := <-ctxErr:
		if err != nil {
			t.Errorf("best-effort context was canceled with its event: %v", err)
		}
	default:
		t.Fatal("best-effort task never finished")
	}
}

func TestTracker_WaitContext(t *testing.T) {
	tr := tasks.NewTracker(zap.NewNop(), 0)
	g := tr.NewGroup(context.Background())

	block := make(chan struct{})
	g.Go("blocked", tasks.BestEffort, func(ctx context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if tr.WaitContext(ctx) {
		t.Error("WaitContext should time out while a task is blocked")
	}
	close(block)
	if !tr.WaitContext(context.Background()) {
		t.Error("WaitContext should succeed once tasks finish")
	}
}
