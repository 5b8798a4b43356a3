package stream

import (
	"net"
	"sync"
	"time"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// Conn wraps a TCP connection carrying length-prefixed protocol frames.
// Reads happen on one goroutine; writes are serialized.
type Conn struct {
	id     string
	raw    net.Conn
	frames *protocol.FrameReader
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps raw. A maxFrameSize <= 0 selects protocol.DefaultMaxFrameSize
// and zero timeouts disable the corresponding deadline.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(id string, raw net.Conn, maxFrameSize int, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		id:           id,
		raw:          raw,
		frames:       protocol.NewFrameReader(raw, maxFrameSize),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ID returns the trace id assigned when the connection was accepted.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer's address.
func (c *Conn) RemoteAddr() string { return c.raw.RemoteAddr().String() }

// ReadMessage reads and decodes the next client frame.
//
// Postcondition: Returns io.EOF when the peer closes between frames, an error
// wrapping protocol.ErrMalformed for a bad frame or envelope, or the I/O error.
func (c *Conn) ReadMessage() (protocol.ClientMessage, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	frame, err := c.frames.ReadFrame()
	if err != nil {
		return protocol.ClientMessage{}, err
	}
	return protocol.DecodeClient(frame)
}

// WriteMessage encodes msg and writes it as one frame.
func (c *Conn) WriteMessage(msg protocol.ServerMessage) error {
	data, err := protocol.EncodeServer(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return protocol.WriteFrame(c.raw, data)
}

// Close closes the underlying connection, unblocking any pending read.
func (c *Conn) Close() error {
	return c.raw.Close()
}
