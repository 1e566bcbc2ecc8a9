package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/go-orpheus-tts/internal/protocol"
	"github.com/example/go-orpheus-tts/internal/session"
)

// scriptedReader returns frames in order, then err forever.
type scriptedReader struct {
	frames []string
	err    error
}

func (r *scriptedReader) ReadMessage() (int, []byte, error) {
	if len(r.frames) == 0 {
		return 0, nil, r.err
	}
	f := r.frames[0]
	r.frames = r.frames[1:]
	return websocket.TextMessage, []byte(f), nil
}

// blockingReader hands out frames sent on ch and blocks in between.
type blockingReader struct {
	ch chan string
}

func (r *blockingReader) ReadMessage() (int, []byte, error) {
	f, ok := <-r.ch
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, []byte(f), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReceiver() session.Receiver {
	return session.Receiver{
		Parser: protocol.Parser{KnownVoice: func(v string) bool { return v == "tara" }},
		Log:    quietLogger(),
	}
}

func collect(out chan session.Inbound) []session.Inbound {
	close(out)
	var got []session.Inbound
	for in := range out {
		got = append(got, in)
	}
	return got
}

// ---------------------------------------------------------------------------
// Termination
// ---------------------------------------------------------------------------

func TestReceiver_EveryExitQueuesOneEnd(t *testing.T) {
	tests := []struct {
		name       string
		frames     []string
		err        error
		wantResult session.ReceiveResult
		wantCode   string
		wantTypes  []protocol.MessageType
	}{
		{
			name:       "explicit end",
			frames:     []string{`{"type":"text","text":"hi"}`, `{"type":"end"}`, `{"type":"text","text":"never read"}`},
			wantResult: session.ReceiveEnd,
			wantTypes:  []protocol.MessageType{protocol.TypeText, protocol.TypeEnd},
		},
		{
			name:       "validation failure",
			frames:     []string{`{"type":"meta","temperature":5}`},
			wantResult: session.ReceiveInvalid,
			wantCode:   protocol.CodeValidationError,
			wantTypes:  []protocol.MessageType{protocol.TypeEnd},
		},
		{
			name:       "unknown voice",
			frames:     []string{`{"type":"meta","voice":"nobody"}`},
			wantResult: session.ReceiveInvalid,
			wantCode:   protocol.CodeValidationError,
			wantTypes:  []protocol.MessageType{protocol.TypeEnd},
		},
		{
			name:       "parse failure",
			frames:     []string{`{"type":"ping"}`, `{not json`},
			wantResult: session.ReceiveInvalid,
			wantCode:   protocol.CodeParseError,
			wantTypes:  []protocol.MessageType{protocol.TypePing, protocol.TypeEnd},
		},
		{
			name:       "read error",
			frames:     []string{`{"type":"ping"}`},
			err:        io.ErrUnexpectedEOF,
			wantResult: session.ReceiveFailed,
			wantTypes:  []protocol.MessageType{protocol.TypePing, protocol.TypeEnd},
		},
		{
			name:       "peer close",
			err:        &websocket.CloseError{Code: websocket.CloseNormalClosure},
			wantResult: session.ReceivePeerClosed,
			wantTypes:  []protocol.MessageType{protocol.TypeEnd},
		},
		{
			name:       "closed locally",
			err:        net.ErrClosed,
			wantResult: session.ReceiveClosed,
			wantTypes:  []protocol.MessageType{protocol.TypeEnd},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &scriptedReader{frames: tt.frames, err: tt.err}
			out := make(chan session.Inbound, 8)

			res := newReceiver().Run(context.Background(), conn, out, &session.Canceller{}, nil)
			if res != tt.wantResult {
				t.Errorf("result = %q; want %q", res, tt.wantResult)
			}

			got := collect(out)
			if len(got) != len(tt.wantTypes) {
				t.Fatalf("queued %d messages; want %d: %+v", len(got), len(tt.wantTypes), got)
			}
			ends := 0
			for i, in := range got {
				if in.Type != tt.wantTypes[i] {
					t.Errorf("msg[%d].Type = %q; want %q", i, in.Type, tt.wantTypes[i])
				}
				if in.Type == protocol.TypeEnd {
					ends++
				}
			}
			if ends != 1 {
				t.Errorf("end messages = %d; want exactly 1", ends)
			}
			if last := got[len(got)-1]; last.Code != tt.wantCode {
				t.Errorf("end code = %q; want %q", last.Code, tt.wantCode)
			}
		})
	}
}

func TestReceiver_SkipsBlankAndUnknownFrames(t *testing.T) {
	conn := &scriptedReader{frames: []string{"   ", `{"type":"text","text":"  "}`, `{"type":"dance"}`, `{"type":"end"}`}}
	out := make(chan session.Inbound, 8)

	var touches atomic.Int32
	newReceiver().Run(context.Background(), conn, out, &session.Canceller{}, func() { touches.Add(1) })

	got := collect(out)
	if len(got) != 1 || got[0].Type != protocol.TypeEnd {
		t.Fatalf("queued = %+v; want only end", got)
	}
	if n := touches.Load(); n != 4 {
		t.Errorf("touch calls = %d; want one per frame (4)", n)
	}
}

func TestReceiver_TouchPanicIsSwallowed(t *testing.T) {
	conn := &scriptedReader{frames: []string{`{"type":"ping"}`, `{"type":"end"}`}}
	out := make(chan session.Inbound, 8)

	res := newReceiver().Run(context.Background(), conn, out, &session.Canceller{}, func() { panic("clock broke") })
	if res != session.ReceiveEnd {
		t.Fatalf("result = %q; want end", res)
	}
	if got := collect(out); len(got) != 2 {
		t.Fatalf("queued %d messages; want 2", len(got))
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestReceiver_CancelFiresBeforeQueueAccepts(t *testing.T) {
	var canc session.Canceller
	sig := canc.Begin(canc.Epoch())

	conn := &blockingReader{ch: make(chan string, 1)}
	out := make(chan session.Inbound) // nobody reads until the signal fires

	done := make(chan session.ReceiveResult, 1)
	go func() {
		done <- newReceiver().Run(context.Background(), conn, out, &canc, nil)
	}()

	conn.ch <- `{"type":"cancel"}`

	select {
	case <-sig.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancel signal not fired while the queue was blocked")
	}

	select {
	case in := <-out:
		if in.Type != protocol.TypeCancel {
			t.Fatalf("queued %q; want cancel", in.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel message never queued")
	}

	close(conn.ch)
	go func() {
		for range out {
		}
	}()
	<-done
	close(out)
}

func TestReceiver_StampsEpochAfterCancel(t *testing.T) {
	conn := &scriptedReader{frames: []string{
		`{"type":"text","text":"first"}`,
		`{"type":"cancel"}`,
		`{"type":"text","text":"second"}`,
		`{"type":"end"}`,
	}}
	out := make(chan session.Inbound, 8)
	var canc session.Canceller

	newReceiver().Run(context.Background(), conn, out, &canc, nil)
	got := collect(out)
	if len(got) != 4 {
		t.Fatalf("queued %d messages; want 4", len(got))
	}

	// The first text was queued before the cancel and must start cancelled;
	// the second was queued after it and must not.
	first := canc.Begin(got[0].Epoch)
	if !first.Fired() {
		t.Error("text queued before the cancel did not start cancelled")
	}
	canc.Finish(first)

	second := canc.Begin(got[2].Epoch)
	if second.Fired() {
		t.Error("text queued after the cancel started cancelled")
	}
	canc.Finish(second)
}

func TestReceiver_ReadErrorCancelsInFlight(t *testing.T) {
	var canc session.Canceller
	sig := canc.Begin(canc.Epoch())

	out := make(chan session.Inbound, 1)
	newReceiver().Run(context.Background(), &scriptedReader{err: errors.New("reset")}, out, &canc, nil)

	if !sig.Fired() {
		t.Fatal("in-flight request not cancelled after read failure")
	}
}

func TestReceiver_ContextDoneWhileEnqueueing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn := &scriptedReader{frames: []string{`{"type":"ping"}`}}
	out := make(chan session.Inbound) // never read

	done := make(chan session.ReceiveResult, 1)
	go func() { done <- newReceiver().Run(ctx, conn, out, &session.Canceller{}, nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		if res != session.ReceiveFailed {
			t.Errorf("result = %q; want failed", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop on ctx cancellation")
	}
}
