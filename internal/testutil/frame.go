// Package testutil provides wire-level test clients for the relay's two
// transports.
package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// FrameClient is a raw-TCP publisher test client speaking length-prefixed frames.
type FrameClient struct {
	conn   net.Conn
	frames *protocol.FrameReader
	t      *testing.T
}

// NewFrameClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected FrameClient or fails the test.
func NewFrameClient(t *testing.T, addr string) *FrameClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("frame client connected to %s [%s]", addr, time.Since(start))
	return &FrameClient{
		conn:   conn,
		frames: protocol.NewFrameReader(conn, 0),
		t:      t,
	}
}

// Send encodes msg and writes it as one frame.
func (c *FrameClient) Send(msg protocol.ClientMessage) {
	c.t.Helper()
	data, err := protocol.EncodeClient(msg)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", msg.Type, err)
	}
	c.SendRaw(data)
}

// SendRaw writes payload as one frame without validation.
func (c *FrameClient) SendRaw(payload []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := protocol.WriteFrame(c.conn, payload); err != nil {
		c.t.Fatalf("sending frame: %v", err)
	}
}

// WriteBytes writes b to the connection verbatim.
func (c *FrameClient) WriteBytes(b []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("writing bytes: %v", err)
	}
}

// Receive reads the next server message or fails the test after timeout.
func (c *FrameClient) Receive(timeout time.Duration) protocol.ServerMessage {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	frame, err := c.frames.ReadFrame()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	msg, err := protocol.DecodeServer(frame)
	if err != nil {
		c.t.Fatalf("decoding %q: %v", frame, err)
	}
	return msg
}

// ReadErr reads the next frame and returns the error it ended with, if any.
func (c *FrameClient) ReadErr(timeout time.Duration) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, err := c.frames.ReadFrame()
	return err
}

// Close closes the underlying connection.
func (c *FrameClient) Close() {
	c.conn.Close()
}
