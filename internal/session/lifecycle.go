package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/example/go-orpheus-tts/internal/protocol"
)

// Closer closes a connection with a websocket close code.
type Closer interface {
	CloseWith(code int, reason string) error
}

// WatchdogReason tells why a watchdog loop returned.
type WatchdogReason string

const (
	// WatchdogStopped means the caller cancelled the watchdog because the
	// connection ended some other way.
	WatchdogStopped     WatchdogReason = "stopped"
	WatchdogIdleTimeout WatchdogReason = "idle_timeout"
	WatchdogTTLExceeded WatchdogReason = "ttl_exceeded"
)

// CloseCode returns the close code and reason the watchdog sent for r. ok
// is false for WatchdogStopped, which sends nothing.
func (r WatchdogReason) CloseCode() (code int, reason string, ok bool) {
	switch r {
	case WatchdogIdleTimeout:
		return protocol.CloseIdleTimeout, protocol.ReasonIdleTimeout, true
	case WatchdogTTLExceeded:
		return protocol.CloseTTLExceeded, protocol.ReasonTTLExceeded, true
	}
	return 0, "", false
}

// Lifecycle tracks the age and last activity of one connection.
type Lifecycle struct {
	start       time.Time
	lastNanos   atomic.Int64 // offset from start
	idleTimeout time.Duration
	ttl         time.Duration
	tick        time.Duration
}

// NewLifecycle starts the clocks now. A zero idleTimeout or ttl disables
// that limit.
func NewLifecycle(idleTimeout, ttl, tick time.Duration) *Lifecycle {
	if tick <= 0 {
		tick = time.Second
	}
	return &Lifecycle{
		start:       time.Now(),
		idleTimeout: idleTimeout,
		ttl:         ttl,
		tick:        tick,
	}
}

// Touch records inbound activity.
func (l *Lifecycle) Touch() {
	l.lastNanos.Store(int64(time.Since(l.start)))
}

// Age is the time since the connection was accepted.
func (l *Lifecycle) Age() time.Duration {
	return time.Since(l.start)
}

// Idle is the time since the last Touch (or since accept).
func (l *Lifecycle) Idle() time.Duration {
	return time.Since(l.start) - time.Duration(l.lastNanos.Load())
}

// Watchdog wakes every tick and closes the connection once the TTL or the
// idle timeout is reached. It only returns on such a close or when ctx is
// cancelled, and never panics out: close failures are logged.
func (l *Lifecycle) Watchdog(ctx context.Context, conn Closer, log *slog.Logger) (reason WatchdogReason) {
	if log == nil {
		log = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("watchdog panicked", slog.Any("panic", r))
			reason = WatchdogStopped
		}
	}()

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return WatchdogStopped
		case <-ticker.C:
		}

		if l.ttl > 0 && l.Age() >= l.ttl {
			l.close(conn, WatchdogTTLExceeded, log)
			return WatchdogTTLExceeded
		}
		if l.idleTimeout > 0 && l.Idle() >= l.idleTimeout {
			l.close(conn, WatchdogIdleTimeout, log)
			return WatchdogIdleTimeout
		}
	}
}

func (l *Lifecycle) close(conn Closer, why WatchdogReason, log *slog.Logger) {
	code, reason, _ := why.CloseCode()
	log.Info("closing connection",
		slog.String("reason", reason),
		slog.Int64("age_ms", l.Age().Milliseconds()),
		slog.Int64("idle_ms", l.Idle().Milliseconds()),
	)
	if err := conn.CloseWith(code, reason); err != nil {
		log.Warn("watchdog close failed", slog.String("error", err.Error()))
	}
}
