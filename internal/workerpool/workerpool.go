// Package workerpool implements the bounded, future-resolving worker
// pool spec §5 describes: "parallel-worker model... requests are queued
// and resolve via futures." A weighted semaphore bounds concurrency —
// the idiomatic Go substitute for a fixed-size thread pool — rather than
// hand-rolling a counting channel.
package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent work to size in-flight tasks (spec §6.4
// thread_pool_size). Queuing beyond that bound blocks the submitting
// goroutine until a slot frees up, rather than growing unbounded.
type Pool struct {
	sem *semaphore.Weighted
}

// New constructs a Pool with the given concurrency bound.
func New(size int64) *Pool {
	return &Pool{sem: semaphore.NewWeighted(size)}
}

// Future is the result handle spec §5 calls a future: "any request that
// awaits a future from another component may suspend the caller's
// future." Cancellation is explicit-only (spec §5) — the worker always
// finishes its item; Get just stops waiting on ctx cancellation without
// affecting the in-flight computation.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Get blocks until the task resolves or ctx is done, whichever comes
// first. A caller that stops waiting does not cancel the underlying
// task — it keeps running and simply has no one left to publish its
// result to (spec §5 "the worker still completes its current item but
// does not publish further state").
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues fn for execution once a pool slot is available and
// returns a Future for its result. A panic inside fn is recovered and
// turned into an error on the future rather than crashing the pool —
// the security core additionally reports LogicError-kind failures to
// its fault sink (spec §7: "also re-thrown from the worker so the
// process's supervisor can react").
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	future := newFuture[T]()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		var zero T
		future.resolve(zero, err)
		return future
	}

	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				future.resolve(zero, fmt.Errorf("workerpool: task panicked: %v", r))
			}
		}()

		v, err := fn(ctx)
		future.resolve(v, err)
	}()

	return future
}
