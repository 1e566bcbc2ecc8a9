package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/go-orpheus-tts/internal/gateway"
	"github.com/example/go-orpheus-tts/internal/protocol"
)

type closeRecorder struct {
	mu     sync.Mutex
	codes  []int
	reason string
}

func (c *closeRecorder) CloseWith(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
	c.reason = reason
	return nil
}

type probeFunc func(ctx context.Context) error

func (f probeFunc) Ready(ctx context.Context) error { return f(ctx) }

func newRequest(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

// ---------------------------------------------------------------------------
// Pool
// ---------------------------------------------------------------------------

func TestPoolAcquireRelease(t *testing.T) {
	p := gateway.NewPool(2)

	a, ok := p.Acquire(context.Background(), 0)
	if !ok {
		t.Fatal("first acquire failed")
	}
	b, ok := p.Acquire(context.Background(), 0)
	if !ok {
		t.Fatal("second acquire failed")
	}
	if _, ok := p.Acquire(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("acquire on a full pool succeeded")
	}
	if p.InUse() != 2 || p.Cap() != 2 {
		t.Fatalf("InUse/Cap = %d/%d; want 2/2", p.InUse(), p.Cap())
	}

	a.Release()
	a.Release() // idempotent
	if p.InUse() != 1 {
		t.Fatalf("InUse after double release = %d; want 1", p.InUse())
	}
	b.Release()
	if p.InUse() != 0 {
		t.Fatalf("InUse = %d; want 0", p.InUse())
	}
}

func TestPoolAcquireWaitsForRelease(t *testing.T) {
	p := gateway.NewPool(1)
	s, _ := p.Acquire(context.Background(), 0)

	time.AfterFunc(20*time.Millisecond, s.Release)

	if _, ok := p.Acquire(context.Background(), time.Second); !ok {
		t.Fatal("acquire did not pick up the released slot")
	}
}

// ---------------------------------------------------------------------------
// TokenAuthorizer
// ---------------------------------------------------------------------------

func TestTokenAuthorizer(t *testing.T) {
	auth := gateway.NewTokenAuthorizer([]string{"s3cret", " other "})

	tests := []struct {
		name   string
		req    func() *http.Request
		wantOK bool
	}{
		{"bearer header", func() *http.Request {
			r := newRequest("/ws")
			r.Header.Set("Authorization", "Bearer s3cret")
			return r
		}, true},
		{"lowercase scheme", func() *http.Request {
			r := newRequest("/ws")
			r.Header.Set("Authorization", "bearer other")
			return r
		}, true},
		{"query token", func() *http.Request { return newRequest("/ws?token=s3cret") }, true},
		{"wrong token", func() *http.Request { return newRequest("/ws?token=nope") }, false},
		{"no credentials", func() *http.Request { return newRequest("/ws") }, false},
		{"basic scheme", func() *http.Request {
			r := newRequest("/ws?token=s3cret")
			r.Header.Set("Authorization", "Basic s3cret")
			return r
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := auth.Authorize(tt.req()); got != tt.wantOK {
				t.Errorf("Authorize = %v; want %v", got, tt.wantOK)
			}
		})
	}

	if !gateway.NewTokenAuthorizer(nil).Authorize(newRequest("/ws")) {
		t.Error("empty token list should admit everyone")
	}
}

// ---------------------------------------------------------------------------
// Gateway.Admit
// ---------------------------------------------------------------------------

func TestAdmitSuccess(t *testing.T) {
	pool := gateway.NewPool(1)
	conn := &closeRecorder{}
	g := &gateway.Gateway{Pool: pool, Probe: probeFunc(func(context.Context) error { return nil })}

	slot, err := g.Admit(context.Background(), newRequest("/ws"), conn)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if pool.InUse() != 1 {
		t.Fatalf("InUse = %d; want 1", pool.InUse())
	}
	if len(conn.codes) != 0 {
		t.Fatalf("admitted connection was closed: %v", conn.codes)
	}
	slot.Release()
}

func TestAdmitRejections(t *testing.T) {
	tests := []struct {
		name      string
		auth      gateway.Authorizer
		fillPool  bool
		probeErr  error
		wantErr   error
		wantCode  int
		wantLabel string
		probed    bool
	}{
		{
			name:      "unauthorized short-circuits",
			auth:      gateway.AuthorizerFunc(func(*http.Request) bool { return false }),
			wantErr:   gateway.ErrUnauthorized,
			wantCode:  protocol.CloseUnauthorized,
			wantLabel: gateway.RejectUnauthorized,
		},
		{
			name:      "pool full",
			fillPool:  true,
			wantErr:   gateway.ErrBusy,
			wantCode:  protocol.CloseBusy,
			wantLabel: gateway.RejectBusy,
		},
		{
			name:      "engine down releases slot",
			probeErr:  errors.New("no worker"),
			wantErr:   gateway.ErrEngineUnavailable,
			wantCode:  protocol.CloseBusy,
			wantLabel: gateway.RejectEngineDown,
			probed:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := gateway.NewPool(1)
			var held *gateway.Slot
			if tt.fillPool {
				held, _ = pool.Acquire(context.Background(), 0)
			}

			probed := false
			var labels []string
			g := &gateway.Gateway{
				Auth:           tt.auth,
				Pool:           pool,
				AcquireTimeout: 10 * time.Millisecond,
				Probe: probeFunc(func(context.Context) error {
					probed = true
					return tt.probeErr
				}),
				OnReject: func(l string) { labels = append(labels, l) },
			}

			conn := &closeRecorder{}
			slot, err := g.Admit(context.Background(), newRequest("/ws"), conn)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v; want %v", err, tt.wantErr)
			}
			if slot != nil {
				t.Fatal("rejected admission returned a slot")
			}
			if len(conn.codes) != 1 || conn.codes[0] != tt.wantCode {
				t.Fatalf("close codes = %v; want [%d]", conn.codes, tt.wantCode)
			}
			if probed != tt.probed {
				t.Fatalf("probed = %v; want %v", probed, tt.probed)
			}
			if len(labels) != 1 || labels[0] != tt.wantLabel {
				t.Fatalf("labels = %v; want [%s]", labels, tt.wantLabel)
			}

			held.Release()
			if pool.InUse() != 0 {
				t.Fatalf("slot leaked: InUse = %d", pool.InUse())
			}
		})
	}
}

func TestAdmitProbeTimeout(t *testing.T) {
	g := &gateway.Gateway{
		Pool:         gateway.NewPool(1),
		ReadyTimeout: 20 * time.Millisecond,
		Probe: probeFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}

	conn := &closeRecorder{}
	_, err := g.Admit(context.Background(), newRequest("/ws"), conn)
	if !errors.Is(err, gateway.ErrEngineUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v; want engine unavailable wrapping deadline", err)
	}
	if g.Pool.InUse() != 0 {
		t.Fatal("slot leaked after probe timeout")
	}
}
