// Package publisher is a reference publisher for the relay's raw stream
// transport, together with the radar snapshot model it publishes.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// RejectedError is returned when the relay answers a request with an error reply.
type RejectedError struct {
	Code protocol.ErrorCode
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay rejected request: %s", e.Code)
}

// Client is a publisher connection to the relay.
type Client struct {
	conn         net.Conn
	frames       *protocol.FrameReader
	writeTimeout time.Duration
	logger       *zap.Logger
	mu           sync.Mutex
}

// Dial connects to the relay's publisher address.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a connected Client or a non-nil error.
func Dial(ctx context.Context, addr string, writeTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", addr, err)
	}
	logger.Info("connected to relay", zap.String("addr", addr))
	return &Client{
		conn:         conn,
		frames:       protocol.NewFrameReader(conn, 0),
		writeTimeout: writeTimeout,
		logger:       logger,
	}, nil
}

// StartSession asks the relay for a new session and waits for its id.
//
// Postcondition: Returns the session id, a *RejectedError, or a transport error.
func (c *Client) StartSession(ctx context.Context) (string, error) {
	if err := c.send(protocol.StartSession()); err != nil {
		return "", err
	}
	reply, err := c.receive(ctx)
	if err != nil {
		return "", err
	}
	switch reply.Type {
	case protocol.TypeSessionStarted:
		c.logger.Info("session started", zap.String("session_id", reply.SessionID))
		return reply.SessionID, nil
	case protocol.TypeError:
		return "", &RejectedError{Code: reply.Reason}
	default:
		return "", fmt.Errorf("unexpected reply %q to start-session", reply.Type)
	}
}

// PublishState marshals snapshot and sends it as a publish-state message.
func (c *Client) PublishState(snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return c.send(protocol.PublishState(payload))
}

// Stop asks the relay to end the session and connection.
func (c *Client) Stop() error {
	return c.send(protocol.Stop())
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(msg protocol.ClientMessage) error {
	data, err := protocol.EncodeClient(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := protocol.WriteFrame(c.conn, data); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) receive(ctx context.Context) (protocol.ServerMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}
	frame, err := c.frames.ReadFrame()
	if err != nil {
		return protocol.ServerMessage{}, fmt.Errorf("reading reply: %w", err)
	}
	return protocol.DecodeServer(frame)
}
