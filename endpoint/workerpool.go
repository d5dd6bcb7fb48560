package endpoint

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WorkerPool runs the blocking driver calls of async-memory entities. It
// never blocks the caller: when every worker is busy, TryGo reports false and
// the caller polls again later.
type WorkerPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool of n workers. Workers see a context derived
// from ctx that is canceled by Close.
func NewWorkerPool(ctx context.Context, n int) *WorkerPool {
	if n <= 0 {
		n = 1
	}

	cctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		ctx:    cctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(n)),
	}
}

// TryGo runs fn on a free worker.
func (p *WorkerPool) TryGo(fn func(ctx context.Context)) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)

		fn(p.ctx)
	}()

	return true
}

// Close cancels running workers and waits for them.
func (p *WorkerPool) Close() {
	p.cancel()
	p.wg.Wait()
}

// future is a single-slot result holder written by one worker and read by
// the scheduler.
type future[T any] struct {
	ch chan T
}

func newFuture[T any]() *future[T] {
	return &future[T]{ch: make(chan T, 1)}
}

func (f *future[T]) set(v T) {
	f.ch <- v
}

func (f *future[T]) tryGet() (T, bool) {
	select {
	case v := <-f.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
