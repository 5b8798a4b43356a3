package testutil

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// WSClient is a subscriber test client speaking one JSON envelope per text frame.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// WSURL converts an http:// server URL into a ws:// URL for path.
func WSURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// NewWSClient dials url and returns a test client.
//
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string, header http.Header) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return &WSClient{conn: conn, t: t}
}

// Send encodes msg and writes it as one text frame.
func (c *WSClient) Send(msg protocol.ClientMessage) {
	c.t.Helper()
	data, err := protocol.EncodeClient(msg)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", msg.Type, err)
	}
	c.SendFrame(websocket.TextMessage, data)
}

// SendFrame writes one frame of the given websocket message type.
func (c *WSClient) SendFrame(messageType int, data []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.t.Fatalf("writing frame: %v", err)
	}
}

// Receive reads the next server message or fails the test after timeout.
func (c *WSClient) Receive(timeout time.Duration) protocol.ServerMessage {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	if kind != websocket.TextMessage {
		c.t.Fatalf("expected a text frame, got type %d", kind)
	}
	msg, err := protocol.DecodeServer(data)
	if err != nil {
		c.t.Fatalf("decoding %q: %v", data, err)
	}
	return msg
}

// ReadErr reads the next frame and returns the error it ended with, if any.
func (c *WSClient) ReadErr(timeout time.Duration) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, _, err := c.conn.ReadMessage()
	return err
}

// Close sends a normal close frame and closes the connection.
func (c *WSClient) Close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}
