package relay

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// RoleKind enumerates the states a client connection can be in.
type RoleKind int

const (
	RoleUninitialized RoleKind = iota
	RolePublisher
	RoleSubscriber
)

func (k RoleKind) String() string {
	switch k {
	case RoleUninitialized:
		return "uninitialized"
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return fmt.Sprintf("RoleKind(%d)", int(k))
	}
}

// Role is a client's current role. SessionID is empty for RoleUninitialized.
type Role struct {
	Kind      RoleKind
	SessionID string
}

// Uninitialized is the role of a freshly registered client.
func Uninitialized() Role { return Role{Kind: RoleUninitialized} }

// PublisherOf is the role of the client owning sessionID.
func PublisherOf(sessionID string) Role { return Role{Kind: RolePublisher, SessionID: sessionID} }

// SubscriberOf is the role of a client subscribed to sessionID.
func SubscriberOf(sessionID string) Role { return Role{Kind: RoleSubscriber, SessionID: sessionID} }

func (r Role) String() string {
	if r.Kind == RoleUninitialized {
		return r.Kind.String()
	}
	return r.Kind.String() + "(" + r.SessionID + ")"
}

var (
	// ErrQueueFull is returned by Push when the outbound queue has no room.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrQueueClosed is returned by Push after Close.
	ErrQueueClosed = errors.New("outbound queue closed")
)

// Outbound is a bounded, non-blocking queue of server→client messages.
// The connection's send loop drains it; everything else only enqueues.
type Outbound struct {
	messages chan protocol.ServerMessage
	mu       sync.Mutex
	closed   bool
	dropped  atomic.Uint64
}

// NewOutbound creates a queue holding at most capacity messages.
//
// Postcondition: capacity <= 0 is treated as 1.
func NewOutbound(capacity int) *Outbound {
	if capacity <= 0 {
		capacity = 1
	}
	return &Outbound{messages: make(chan protocol.ServerMessage, capacity)}
}

// Push enqueues msg without blocking.
//
// Postcondition: Returns nil if enqueued, ErrQueueFull if the queue had no room
// (the message is dropped), or ErrQueueClosed after Close.
func (o *Outbound) Push(msg protocol.ServerMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrQueueClosed
	}
	select {
	case o.messages <- msg:
		return nil
	default:
		o.dropped.Add(1)
		return ErrQueueFull
	}
}

// Messages returns the receive side of the queue. It is closed by Close.
func (o *Outbound) Messages() <-chan protocol.ServerMessage {
	return o.messages
}

// Close stops the queue. Messages already enqueued remain readable.
//
// Postcondition: The channel is closed exactly once; later calls are no-ops.
func (o *Outbound) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.messages)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbound) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Len returns the number of queued messages.
func (o *Outbound) Len() int {
	return len(o.messages)
}

// Dropped returns how many messages were discarded because the queue was full.
func (o *Outbound) Dropped() uint64 {
	return o.dropped.Load()
}

// Client is one registered network peer. Its id and role are owned by the
// Registry and only change under the Registry lock.
type Client struct {
	id       uint32
	address  string
	role     Role
	outbound *Outbound
}

// NewClient creates an unregistered client for the peer at address.
func NewClient(address string, outboundCapacity int) *Client {
	return &Client{
		address:  address,
		role:     Uninitialized(),
		outbound: NewOutbound(outboundCapacity),
	}
}

// ID returns the id assigned at registration, or 0 before registration.
func (c *Client) ID() uint32 { return c.id }

// Address returns the peer's network address.
func (c *Client) Address() string { return c.address }

// Outbound returns the client's server→client queue.
func (c *Client) Outbound() *Outbound { return c.outbound }
