package concurrent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerPool bounds detached background work such as personality analysis.
type WorkerPool struct {
	maxWorkers int
	sem        chan struct{}
	wg         sync.WaitGroup
	timeout    time.Duration
	logger     *slog.Logger
}

// NewWorkerPool creates a new worker pool with the specified max workers.
// Each detached task gets at most timeout to run; zero means no limit.
func NewWorkerPool(maxWorkers int, timeout time.Duration, logger *slog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
		timeout:    timeout,
		logger:     logger.With("component", "worker_pool"),
	}
}

// Do executes a function with worker pool concurrency control
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// Go runs fn in the background, detached from ctx's cancellation but keeping
// its values. Errors and panics are logged; nothing is returned to the caller.
func (wp *WorkerPool) Go(ctx context.Context, name string, fn func(context.Context) error) {
	if wp == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				wp.logger.Error("background task panicked", "task", name, "panic", fmt.Sprint(r))
			}
		}()
		runCtx := detached
		if wp.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(detached, wp.timeout)
			defer cancel()
		}
		err := wp.Do(runCtx, func() error { return fn(runCtx) })
		if err != nil {
			wp.logger.Warn("background task failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until every task started with Go has returned or ctx is done.
func (wp *WorkerPool) Wait(ctx context.Context) error {
	if wp == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ParallelForEach executes a function on each item in parallel
func ParallelForEach[T any](ctx context.Context, items []T, fn func(T) error, maxConcurrency int) error {
	if len(items) == 0 {
		return nil
	}

	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)
	errChan := make(chan error, len(items))

	for _, item := range items {
		wg.Add(1)
		go func(val T) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
				if err := fn(val); err != nil {
					errChan <- err
				}
			}
		}(item)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}

	return nil
}
