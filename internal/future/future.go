// Package future provides a single-writer result cell used to hand a value
// (or a failure) from a background worker to one or more waiting callers.
package future

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Wait when the caller's timeout elapses before
// the future is resolved. The producer is not affected.
var ErrTimeout = errors.New("future: wait timed out")

// Future is pending until Resolve or Fail is called; the first call wins and
// later calls are ignored. Any number of goroutines may Wait on it.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve fulfils the future with v. It reports whether this call performed
// the transition.
func (f *Future[T]) Resolve(v T) bool {
	return f.complete(v, nil)
}

// Fail resolves the future with err. A nil err is replaced by a generic
// failure so that a failed future never looks fulfilled.
func (f *Future[T]) Fail(err error) bool {
	if err == nil {
		err = errors.New("future: failed without error")
	}
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		won = true
		close(f.done)
	})
	return won
}

// Done is closed once the future leaves the pending state.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the future has been fulfilled or failed.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves, ctx is done, or timeout elapses.
// A timeout <= 0 waits without a time bound.
func (f *Future[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer:
		// The result may have landed at the same instant.
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}
		return zero, ErrTimeout
	}
}
