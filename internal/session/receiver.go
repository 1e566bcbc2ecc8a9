package session

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gorilla/websocket"

	"github.com/example/go-orpheus-tts/internal/protocol"
)

// FrameReader is the read half of a websocket connection.
type FrameReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// Inbound is a parsed message stamped with the cancel epoch current when it
// was received.
type Inbound struct {
	protocol.Message
	Epoch uint64
}

// ReceiveResult tells how a receiver loop terminated.
type ReceiveResult string

const (
	ReceiveEnd        ReceiveResult = "end"
	ReceiveInvalid    ReceiveResult = "invalid"
	ReceiveFailed     ReceiveResult = "failed"
	ReceivePeerClosed ReceiveResult = "peer_closed"
	// ReceiveClosed means the socket was closed on this side, for example
	// by the watchdog.
	ReceiveClosed ReceiveResult = "closed"
)

// Receiver reads frames, parses them and forwards them to a bounded queue.
type Receiver struct {
	Parser protocol.Parser
	Log    *slog.Logger
}

// Run loops until an end message, a parse/validation failure, a read
// failure, or ctx cancellation. Cancel messages fire the in-flight
// request's signal before they are queued. Every termination other than
// ctx cancellation queues a final end message.
func (r Receiver) Run(ctx context.Context, conn FrameReader, out chan<- Inbound, canc *Canceller, touch func()) ReceiveResult {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Nobody will read audio for the in-flight request any more.
			canc.Cancel()
			result := ReceiveFailed
			switch {
			case isPeerClose(err):
				result = ReceivePeerClosed
				log.Debug("peer closed connection", slog.String("error", err.Error()))
			case errors.Is(err, net.ErrClosed):
				result = ReceiveClosed
				log.Debug("connection closed locally", slog.String("error", err.Error()))
			case ctx.Err() == nil:
				log.Warn("read failed", slog.String("error", err.Error()))
			}
			r.enqueue(ctx, out, Inbound{Message: protocol.End(), Epoch: canc.Epoch()})
			return result
		}

		safeTouch(touch, log)

		if msgType != websocket.TextMessage {
			log.Debug("ignoring non-text frame", slog.Int("frame_type", msgType))
			continue
		}

		msg, ok, err := r.Parser.Parse(data)
		if err != nil {
			code := protocol.CodeInternalError
			result := ReceiveFailed
			switch {
			case errors.Is(err, protocol.ErrValidation):
				code, result = protocol.CodeValidationError, ReceiveInvalid
			case errors.Is(err, protocol.ErrParse):
				code, result = protocol.CodeParseError, ReceiveInvalid
			}
			log.Warn("rejecting inbound message", slog.String("code", code), slog.String("error", err.Error()))
			r.enqueue(ctx, out, Inbound{Message: protocol.EndWithError(code, err.Error()), Epoch: canc.Epoch()})
			return result
		}
		if !ok {
			continue
		}

		if msg.Type == protocol.TypeCancel {
			inFlight := canc.Cancel()
			log.Debug("cancel received", slog.Bool("in_flight", inFlight))
		}

		if !r.enqueue(ctx, out, Inbound{Message: msg, Epoch: canc.Epoch()}) {
			return ReceiveFailed
		}

		if msg.Type == protocol.TypeEnd {
			return ReceiveEnd
		}
	}
}

func (r Receiver) enqueue(ctx context.Context, out chan<- Inbound, in Inbound) bool {
	select {
	case out <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

func safeTouch(touch func(), log *slog.Logger) {
	if touch == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("activity hook panicked", slog.Any("panic", r))
		}
	}()
	touch()
}

func isPeerClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent)
}
