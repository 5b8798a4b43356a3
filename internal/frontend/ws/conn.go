package ws

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// Conn adapts an upgraded WebSocket to the relay's message interface. Each
// text frame carries one envelope; binary frames are ignored.
type Conn struct {
	id     string
	ws     *websocket.Conn
	remote string

	writeTimeout time.Duration
	mu           sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps ws. When pongTimeout > 0 the peer must answer pings sent every
// 9/10 of pongTimeout or its next read fails.
//
// Postcondition: A keepalive goroutine runs until Close when pongTimeout > 0.
func NewConn(id string, ws *websocket.Conn, remote string, maxMessageSize int64, writeTimeout, pongTimeout time.Duration) *Conn {
	c := &Conn{
		id:           id,
		ws:           ws,
		remote:       remote,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	if maxMessageSize > 0 {
		ws.SetReadLimit(maxMessageSize)
	}
	if pongTimeout > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		go c.keepalive(pongTimeout * 9 / 10)
	}
	return c
}

// ID returns the trace id assigned at upgrade.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer's address as seen by the HTTP server.
func (c *Conn) RemoteAddr() string { return c.remote }

func (c *Conn) keepalive(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.deadline()); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) deadline() time.Time {
	if c.writeTimeout > 0 {
		return time.Now().Add(c.writeTimeout)
	}
	return time.Now().Add(time.Minute)
}

// ReadMessage returns the next decoded client envelope.
//
// Postcondition: A normal close from the peer is reported as io.EOF.
func (c *Conn) ReadMessage() (protocol.ClientMessage, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return protocol.ClientMessage{}, io.EOF
			}
			return protocol.ClientMessage{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return protocol.DecodeClient(data)
	}
}

// WriteMessage encodes msg and sends it as one text frame.
func (c *Conn) WriteMessage(msg protocol.ServerMessage) error {
	data, err := protocol.EncodeServer(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame, best effort, and closes the socket.
//
// Postcondition: Idempotent; later calls return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.deadline())
		if cerr := c.ws.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}
