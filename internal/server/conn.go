package server

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeGrace bounds how long writing the close frame may take.
const closeGrace = time.Second

// wsConn serializes writes on a websocket connection and makes closing
// idempotent: the first CloseWith decides the close code.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex // guards data frame writes

	closeOnce   sync.Once
	closeErr    error
	closeCode   int
	closeReason string
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *wsConn) SendText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *wsConn) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(messageType, data)
}

// CloseWith sends a close frame with code and reason, then closes the
// socket. Later calls are no-ops that return the first call's error.
func (c *wsConn) CloseWith(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		msg := websocket.FormatCloseMessage(code, reason)
		err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		if cerr := c.ws.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
		c.closeErr = err
	})
	return c.closeErr
}

// sentClose returns the code and reason of the first CloseWith call. It
// must not race with CloseWith.
func (c *wsConn) sentClose() (int, string) {
	return c.closeCode, c.closeReason
}
