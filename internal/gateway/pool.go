package gateway

import (
	"context"
	"sync"
	"time"
)

// Pool is the process-wide admission pool: a fixed number of slots, one per
// admitted connection.
type Pool struct {
	sem chan struct{}
}

// NewPool returns a pool with size slots. size <= 0 means one slot.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Slot is an acquired admission slot. Release is idempotent.
type Slot struct {
	pool *Pool
	once sync.Once
}

// Acquire waits up to timeout for a free slot. A non-positive timeout only
// tries once.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Slot, bool) {
	select {
	case p.sem <- struct{}{}:
		return &Slot{pool: p}, true
	default:
	}
	if timeout <= 0 {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		return &Slot{pool: p}, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() { <-s.pool.sem })
}

// InUse is the number of slots currently held.
func (p *Pool) InUse() int { return len(p.sem) }

// Cap is the pool size.
func (p *Pool) Cap() int { return cap(p.sem) }
