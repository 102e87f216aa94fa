package network

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"skyrelay/pkg/messages"
)

const (
	// writeTimeout bounds each send so one stalled peer cannot delay the
	// broadcast to the others.
	writeTimeout = 5 * time.Second
)

// wsConn adapts a WebSocket connection to the sessions.Conn interface.
// The underlying connection allows only one concurrent writer, so sends
// are serialized with a mutex. Close is safe to call from both the error
// and close paths.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Send(ctx context.Context, msg *messages.Message) error {
	b, err := msg.Serialize()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	return c.closeErr
}
