package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/protocol"
	"github.com/example/go-orpheus-tts/internal/session"
	"github.com/example/go-orpheus-tts/internal/stream"
	"github.com/example/go-orpheus-tts/internal/text"
)

// handleWS upgrades the request and runs one streaming session. The
// upgrade happens first so that admission failures can be reported with
// websocket close codes; no data frame is written before admission.
func (h *handler) handleWS(w http.ResponseWriter, r *http.Request) {
	priority, err := engine.ParsePriority(r.URL.Query().Get("priority"))
	if err != nil {
		h.log.Warn("ignoring priority parameter", slog.String("error", err.Error()))
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	if h.opts.maxMessageBytes > 0 {
		ws.SetReadLimit(h.opts.maxMessageBytes)
	}
	conn := newWSConn(ws, h.opts.writeTimeout)

	slot, err := h.gw.Admit(h.opts.baseCtx, r, conn)
	if err != nil {
		return
	}
	defer slot.Release()

	connID := uuid.NewString()
	log := h.log.With(
		slog.String("conn_id", connID),
		slog.String("priority", priority.String()),
	)

	ctx := h.opts.baseCtx
	h.opts.metrics.ConnectionAdmitted(ctx)
	defer h.opts.metrics.ConnectionClosed(context.Background())

	start := time.Now()
	log.Info("connection admitted", slog.String("remote_addr", r.RemoteAddr))

	code, reason := h.serveSession(ctx, conn, session.NewState(connID, priority, h.opts.defaults), log)

	log.Info("connection closed",
		slog.Int("close_code", code),
		slog.String("reason", reason),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// serveSession runs the watchdog and the receiver next to the message
// loop, and tears all three down before returning the close code sent.
func (h *handler) serveSession(parent context.Context, conn *wsConn, state *session.State, log *slog.Logger) (int, string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	lc := session.NewLifecycle(h.opts.idleTimeout, h.opts.ttl, h.opts.watchdogTick)
	canc := &session.Canceller{}
	inbound := make(chan session.Inbound, max(h.opts.queueSize, 1))

	var knownVoice func(string) bool
	if h.voices != nil {
		knownVoice = h.voices.Has
	}
	recv := session.Receiver{
		Parser: protocol.Parser{KnownVoice: knownVoice, MaxTextBytes: h.opts.maxTextBytes},
		Log:    log,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if reason := lc.Watchdog(gctx, conn, log); reason != session.WatchdogStopped {
			h.opts.metrics.WatchdogClosed(context.Background(), string(reason))
		}
		return nil
	})
	g.Go(func() error {
		defer close(inbound)
		res := recv.Run(gctx, conn, inbound, canc, lc.Touch)
		log.Debug("receiver stopped", slog.String("result", string(res)))
		return nil
	})

	code, reason := h.runLoop(gctx, conn, state, canc, inbound, log)

	// Stop the watchdog and unblock the receiver, then close the socket so
	// a pending read returns.
	cancel()
	canc.Cancel()
	if err := conn.CloseWith(code, reason); err != nil {
		log.Debug("close failed", slog.String("error", err.Error()))
	}
	_ = g.Wait()

	// The watchdog may have closed the socket first, in which case the
	// CloseWith above was a no-op. Report what the client actually got.
	return conn.sentClose()
}

// runLoop handles inbound messages in order until the session ends. A
// panic in message handling is turned into an internal-error close.
func (h *handler) runLoop(ctx context.Context, conn *wsConn, state *session.State, canc *session.Canceller, inbound <-chan session.Inbound, log *slog.Logger) (code int, reason string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("session panicked", slog.Any("panic", r))
			code, reason = protocol.CloseInternalError, protocol.ReasonInternal
		}
	}()

	for {
		var (
			in session.Inbound
			ok bool
		)
		select {
		case <-ctx.Done():
			return protocol.CloseGoingAway, protocol.ReasonShutdown
		case in, ok = <-inbound:
		}
		if !ok {
			return protocol.CloseNormal, protocol.ReasonEnd
		}

		switch in.Type {
		case protocol.TypeMeta:
			state.ApplyMeta(in.Message)
			log.Debug("settings updated",
				slog.String("voice", state.Settings.Voice),
				slog.Float64("temperature", state.Settings.Sampling.Temperature),
			)

		case protocol.TypePing:
			if err := conn.SendText(protocol.Pong()); err != nil {
				return protocol.CloseNormal, protocol.ReasonEnd
			}

		case protocol.TypeCancel:
			// The receiver already fired the in-flight signal.

		case protocol.TypeText:
			if err := h.handleText(ctx, conn, state, canc, in, log); err != nil {
				if ctx.Err() != nil {
					return protocol.CloseGoingAway, protocol.ReasonShutdown
				}
				log.Warn("stream write failed", slog.String("error", err.Error()))
				return protocol.CloseInternalError, protocol.ReasonInternal
			}

		case protocol.TypeEnd:
			if in.Code == "" {
				return protocol.CloseNormal, protocol.ReasonEnd
			}
			log.Warn("ending session after invalid message",
				slog.String("code", in.Code),
				slog.String("detail", in.Detail),
			)
			if err := conn.SendText(protocol.Error(in.Detail, in.Code)); err != nil {
				log.Debug("error event not delivered", slog.String("error", err.Error()))
			}
			return protocol.CloseNormal, in.Code
		}
	}
}

// handleText synthesizes one text message. Only wire failures are
// returned; rejections are reported to the client as error events.
func (h *handler) handleText(ctx context.Context, conn *wsConn, state *session.State, canc *session.Canceller, in session.Inbound, log *slog.Logger) error {
	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log = log.With(slog.String("request_id", requestID))

	if label, ok := h.opts.gate.Check(ctx, in.Text); !ok {
		h.opts.metrics.LanguageRejected(ctx, label)
		log.Info("text rejected by language gate", slog.String("label", label))
		return conn.SendText(protocol.Error(fmt.Sprintf("language %q is not supported", label), protocol.CodeUnsupportedLanguage))
	}

	units, err := text.Units(in.Text, h.opts.maxUnitChars)
	if errors.Is(err, text.ErrEmptyText) {
		return nil
	}

	sig := canc.Begin(in.Epoch)
	defer canc.Finish(sig)

	settings := state.Settings
	p := &stream.Pipeline{
		Synth:      h.eng,
		Sender:     conn,
		QueueSize:  h.opts.queueSize,
		Lookahead:  h.opts.lookahead,
		SampleRate: h.eng.SampleRate(),
		Log:        log,
		OnUnit: func(rep stream.UnitReport) {
			outcome := rep.State.String()
			if rep.State == stream.UnitCompleted && rep.Prefetch.Err != nil {
				outcome = "failed"
			}
			h.opts.metrics.UnitFinished(ctx, outcome, rep.Drain.Bytes)
		},
	}

	start := time.Now()
	res, err := p.Run(ctx, stream.Job{
		RequestID:    requestID,
		Units:        units,
		Voice:        settings.Voice,
		Params:       settings.Sampling,
		Priority:     state.Priority,
		TrimSilence:  settings.TrimSilence,
		PrespeechPad: time.Duration(settings.PrespeechPadMS) * time.Millisecond,
	}, sig)
	if err != nil {
		return err
	}

	log.Info("request finished",
		slog.Int("units", len(units)),
		slog.Int("completed", res.Completed),
		slog.Bool("cancelled", res.Cancelled),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
