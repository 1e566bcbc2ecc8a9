// Package client speaks the streaming websocket protocol from the other
// side: it sends meta and text messages and collects the audio that comes
// back.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/protocol"
)

const defaultDialTimeout = 10 * time.Second

// ErrEmptyText is returned by Speak for text the server would ignore.
var ErrEmptyText = errors.New("client: text is empty")

// Options configures Dial.
type Options struct {
	// Token is sent as a bearer credential when non-empty.
	Token    string
	Priority engine.Priority
	// DialTimeout applies when ctx has no deadline.
	DialTimeout time.Duration
}

// CloseError reports that the server closed the session.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("server closed session: %d %s", e.Code, e.Reason)
}

// ServerError is an error event sent by the server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return "server error: " + e.Message
	}
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Result summarizes one Speak call.
type Result struct {
	RequestID string
	Sentences []string
	Bytes     int
	Cancelled bool
}

// Client is one streaming session. Speak calls must not overlap; Cancel
// may be called from any goroutine.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial opens a session at serverURL, which may use the http, https, ws or
// wss scheme. A bare host:port is treated as ws://host:port/ws.
func Dial(ctx context.Context, serverURL string, opts Options) (*Client, error) {
	wsURL, err := endpoint(serverURL, opts.Priority)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if opts.Token != "" {
		headers.Set("Authorization", "Bearer "+opts.Token)
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Client{conn: conn}, nil
}

func endpoint(raw string, priority engine.Priority) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	q.Set("priority", priority.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) send(msg protocol.ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Configure sends a meta message. The server validates it lazily; an
// invalid value surfaces as an error on the next Speak.
func (c *Client) Configure(voice string, params protocol.Params) error {
	return c.send(protocol.ClientMessage{Type: protocol.TypeMeta, Voice: voice, Params: params})
}

// Cancel asks the server to stop the request in flight.
func (c *Client) Cancel() error {
	return c.send(protocol.ClientMessage{Type: protocol.TypeCancel})
}

// Ping sends a ping; the pong is consumed by the next Speak.
func (c *Client) Ping() error {
	return c.send(protocol.ClientMessage{Type: protocol.TypePing})
}

// Speak sends text and writes every audio frame to w until the server
// reports the end of the request. Cancelling ctx sends a cancel message
// and keeps reading until the server acknowledges it.
func (c *Client) Speak(ctx context.Context, text, requestID string, w io.Writer) (Result, error) {
	res := Result{RequestID: requestID}
	// The server skips blank text without replying.
	if strings.TrimSpace(text) == "" {
		return res, ErrEmptyText
	}
	if err := c.send(protocol.ClientMessage{Type: protocol.TypeText, Text: text, RequestID: requestID}); err != nil {
		return res, fmt.Errorf("send text: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Cancel()
		case <-done:
		}
	}()

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return res, &CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return res, fmt.Errorf("read: %w", err)
		}

		if typ == websocket.BinaryMessage {
			if _, err := w.Write(data); err != nil {
				return res, fmt.Errorf("write audio: %w", err)
			}
			res.Bytes += len(data)
			continue
		}

		var ev struct {
			Type      string `json:"type"`
			Text      string `json:"text"`
			RequestID string `json:"request_id"`
			Cancelled bool   `json:"cancelled"`
			Message   string `json:"message"`
			Code      string `json:"code"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			return res, fmt.Errorf("decode event: %w", err)
		}

		switch ev.Type {
		case protocol.EventSentence:
			res.Sentences = append(res.Sentences, ev.Text)
		case protocol.EventAudioEnd:
			if res.RequestID == "" {
				res.RequestID = ev.RequestID
			}
			res.Cancelled = ev.Cancelled
			return res, nil
		case protocol.EventError:
			// Rejected requests get no audio_end.
			return res, &ServerError{Code: ev.Code, Message: ev.Message}
		}
	}
}

// Close ends the session with an end message and closes the socket.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteJSON(protocol.ClientMessage{Type: protocol.TypeEnd})
	c.writeMu.Unlock()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
