package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type ctxKey struct{}

func TestWorkerPoolGoDetachesFromCaller(t *testing.T) {
	wp := NewWorkerPool(2, time.Second, nil)
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))

	started := make(chan struct{})
	var sawValue atomic.Bool
	var ran atomic.Bool
	wp.Go(ctx, "test", func(ctx context.Context) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		if ctx.Err() == nil {
			ran.Store(true)
		}
		sawValue.Store(ctx.Value(ctxKey{}) == "req-1")
		return nil
	})
	<-started
	cancel()

	if err := wp.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !ran.Load() {
		t.Fatal("task should not observe the caller's cancellation")
	}
	if !sawValue.Load() {
		t.Fatal("task should keep the caller's context values")
	}
}

func TestWorkerPoolGoRecoversPanics(t *testing.T) {
	wp := NewWorkerPool(1, 0, nil)
	wp.Go(context.Background(), "boom", func(context.Context) error { panic("boom") })
	wp.Go(context.Background(), "fail", func(context.Context) error { return errors.New("fail") })
	if err := wp.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	wp := NewWorkerPool(2, 0, nil)
	var active, peak atomic.Int32
	for i := 0; i < 8; i++ {
		wp.Go(context.Background(), "work", func(context.Context) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	if err := wp.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestParallelForEachReturnsError(t *testing.T) {
	err := ParallelForEach(context.Background(), []int{1, 2, 3}, func(i int) error {
		if i == 2 {
			return errors.New("two")
		}
		return nil
	}, 2)
	if err == nil || err.Error() != "two" {
		t.Fatalf("expected error 'two', got %v", err)
	}
}
