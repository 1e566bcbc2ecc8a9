package session

import "sync"

// Signal is a one-way, idempotent, broadcast flag. Once fired it stays
// fired.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Fire sets the signal. Calling it again has no effect.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.ch) })
}

// Done is closed once the signal has fired.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// Fired reports whether Fire has been called.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Canceller hands out one Signal per request and routes cancel messages to
// it. Every cancel bumps an epoch; messages stamped with an older epoch
// were received before the cancel and start out cancelled.
type Canceller struct {
	mu      sync.Mutex
	epoch   uint64
	current *Signal
}

// Epoch returns the number of cancels seen so far.
func (c *Canceller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Cancel fires the in-flight request's signal, if any, and invalidates
// every request received before this call. It reports whether a request
// was in flight.
func (c *Canceller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if c.current == nil {
		return false
	}
	c.current.Fire()
	return true
}

// Begin installs a fresh signal for a request received at epoch. The
// signal is already fired when a cancel arrived after the request did.
func (c *Canceller) Begin(epoch uint64) *Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := NewSignal()
	if epoch < c.epoch {
		s.Fire()
	}
	c.current = s
	return s
}

// Finish clears s if it is still the in-flight signal.
func (c *Canceller) Finish(s *Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.current = nil
	}
}
