package stream

import (
	"context"
	"fmt"

	"github.com/example/go-orpheus-tts/internal/protocol"
	"github.com/example/go-orpheus-tts/internal/session"
)

// Sender is the write half of a client connection. Implementations must
// serialize concurrent calls.
type Sender interface {
	SendText(data []byte) error
	SendBinary(data []byte) error
}

// Unit identifies one piece of text inside a request.
type Unit struct {
	Index     int
	Text      string
	RequestID string
}

// DrainResult summarizes one consumer run.
type DrainResult struct {
	Completed  bool
	Cancelled  bool
	HeaderSent bool
	Chunks     int
	Bytes      int
}

// Drainer forwards one unit's queue to the client.
type Drainer struct {
	Sender Sender
}

// Drain races the queue against sig. A closed queue completes the unit. If
// sig wins, or is found fired right after a dequeue, Drain writes a
// cancelled audio_end and returns without forwarding anything further.
// The sentence header goes out once, just before the first audio frame.
// Zero-length chunks are consumed without writing a frame.
func (d Drainer) Drain(ctx context.Context, u Unit, queue <-chan []byte, sig *session.Signal) (DrainResult, error) {
	var res DrainResult

	for {
		select {
		case <-sig.Done():
			res.Cancelled = true
			return res, d.cancelled(u)
		case <-ctx.Done():
			return res, ctx.Err()
		case chunk, ok := <-queue:
			if !ok {
				res.Completed = true
				return res, nil
			}
			if sig.Fired() {
				res.Cancelled = true
				return res, d.cancelled(u)
			}
			if len(chunk) == 0 {
				continue
			}

			if !res.HeaderSent {
				if err := d.Sender.SendText(protocol.Sentence(u.Text, u.Index, u.RequestID)); err != nil {
					return res, fmt.Errorf("send sentence header: %w", err)
				}
				res.HeaderSent = true
			}
			if err := d.Sender.SendBinary(chunk); err != nil {
				return res, fmt.Errorf("send audio: %w", err)
			}
			res.Chunks++
			res.Bytes += len(chunk)
		}
	}
}

func (d Drainer) cancelled(u Unit) error {
	if err := d.Sender.SendText(protocol.AudioEnd(u.RequestID, true)); err != nil {
		return fmt.Errorf("send audio_end: %w", err)
	}
	return nil
}
