// Package gateway admits websocket connections: credentials first, then an
// admission slot, then a readiness probe of the engine. The first failing
// step closes the connection with its own close code.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/protocol"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBusy              = errors.New("at capacity")
	ErrEngineUnavailable = errors.New("engine unavailable")
)

// Rejection labels, used for logs and metrics.
const (
	RejectUnauthorized = "unauthorized"
	RejectBusy         = "busy"
	RejectEngineDown   = "engine_down"
)

// Closer closes a connection with a websocket close code.
type Closer interface {
	CloseWith(code int, reason string) error
}

// Gateway runs the admission checks for one connection at a time; it
// holds no per-connection state and is safe for concurrent use.
type Gateway struct {
	Auth           Authorizer
	Pool           *Pool
	Probe          engine.Prober
	AcquireTimeout time.Duration
	ReadyTimeout   time.Duration
	Log            *slog.Logger
	// OnReject, if set, is called with the rejection label.
	OnReject func(reason string)
}

// Admit authorizes r, acquires a slot and probes the engine, in that order.
// On success the caller owns the slot and must release it when the
// connection ends. On failure conn has been closed and no slot is held.
func (g *Gateway) Admit(ctx context.Context, r *http.Request, conn Closer) (*Slot, error) {
	log := g.Log
	if log == nil {
		log = slog.Default()
	}

	auth := g.Auth
	if auth == nil {
		auth = AllowAll
	}
	if !auth.Authorize(r) {
		g.reject(log, conn, RejectUnauthorized, protocol.CloseUnauthorized, protocol.ReasonUnauthorized)
		return nil, ErrUnauthorized
	}

	slot, ok := g.Pool.Acquire(ctx, g.AcquireTimeout)
	if !ok {
		g.reject(log, conn, RejectBusy, protocol.CloseBusy, protocol.ReasonBusy)
		return nil, ErrBusy
	}

	if g.Probe != nil {
		probeCtx := ctx
		if g.ReadyTimeout > 0 {
			var cancel context.CancelFunc
			probeCtx, cancel = context.WithTimeout(ctx, g.ReadyTimeout)
			defer cancel()
		}
		if err := g.Probe.Ready(probeCtx); err != nil {
			slot.Release()
			log.Warn("engine readiness probe failed", slog.String("error", err.Error()))
			g.reject(log, conn, RejectEngineDown, protocol.CloseBusy, protocol.ReasonEngineDown)
			return nil, errors.Join(ErrEngineUnavailable, err)
		}
	}

	return slot, nil
}

func (g *Gateway) reject(log *slog.Logger, conn Closer, label string, code int, reason string) {
	log.Warn("connection rejected",
		slog.String("reason", label),
		slog.Int("close_code", code),
	)
	if err := conn.CloseWith(code, reason); err != nil {
		log.Debug("close after rejection failed", slog.String("error", err.Error()))
	}
	if g.OnReject != nil {
		g.OnReject(label)
	}
}
