// Package promise provides a minimal single-settlement future, the Go
// shape of the external "promise" collaborator the dispatcher hands its
// settlement callback to. It carries no dispatcher-specific logic; the
// dispatcher only ever calls the Settle function it was given.
package promise

import (
	"context"
	"sync/atomic"
)

// Future is a read-only handle on a value that settles exactly once,
// from any goroutine, at an unknown future time.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Settle resolves or rejects the Future it was paired with by New. Only
// the first call has any effect; subsequent calls are silently ignored,
// matching task.Resolver's double-settle tolerance.
type Settle[T any] func(val T, err error)

// New returns a Future and the Settle function that completes it. The
// pair is typically handed straight to the dispatcher: Settle becomes
// the callback invoked once from the dispatcher's run-loop when the
// task's outcome is known.
func New[T any]() (*Future[T], Settle[T]) {
	f := &Future[T]{done: make(chan struct{})}
	var settled atomic.Bool
	settle := func(val T, err error) {
		if !settled.CompareAndSwap(false, true) {
			return
		}
		f.val, f.err = val, err
		close(f.done)
	}
	return f, settle
}

// Wait blocks until the Future settles or ctx is done, whichever comes
// first. A ctx cancellation does not settle the Future — it only ends
// the wait; the Future may still settle later and a subsequent Wait
// call will see it immediately.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the Future settles, for use in a
// select alongside other channels.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled value and error without blocking. It must
// only be called after Done() has been observed closed (or after Wait
// has returned successfully); calling it before settlement returns the
// zero value and a nil error, which is indistinguishable from a
// legitimately settled zero value — callers needing a blocking read
// should use Wait.
func (f *Future[T]) Result() (T, error) {
	return f.val, f.err
}
