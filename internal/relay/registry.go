// Package relay holds the session registry: the in-memory map of publishers,
// the sessions they own and the subscribers watching them, together with the
// per-connection machinery that feeds it.
package relay

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/config"
	"github.com/cory-johannsen/radar/internal/protocol"
)

const maxSessionIDAttempts = 8

// session is one publisher's broadcast group.
type session struct {
	id          string
	ownerID     uint32
	subscribers map[uint32]*Outbound // subscriber client id → its queue
	snapshot    json.RawMessage
}

// SessionView is a read-only copy of a session's state.
type SessionView struct {
	ID       string
	OwnerID  uint32
	Viewers  int
	Snapshot json.RawMessage
}

func (s *session) view() SessionView {
	return SessionView{
		ID:       s.id,
		OwnerID:  s.ownerID,
		Viewers:  len(s.subscribers),
		Snapshot: s.snapshot,
	}
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Clients     int `json:"clients"`
	Sessions    int `json:"sessions"`
	Subscribers int `json:"subscribers"`
}

// Option customizes a Registry.
type Option func(*Registry)

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(gen func() string) Option {
	return func(r *Registry) { r.newSessionID = gen }
}

// Registry is the authoritative map of clients and sessions.
// All methods are safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	clients      map[uint32]*Client
	sessions     map[string]*session
	nextClientID uint32

	newSessionID     func() string
	outboundCapacity int
	inboundCapacity  int
	logger           *zap.Logger
	drivers          sync.WaitGroup
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
// Postcondition: Queue capacities below 1 are raised to 1.
func NewRegistry(cfg config.RelayConfig, logger *zap.Logger, opts ...Option) *Registry {
	src := NewCryptoSource()
	r := &Registry{
		clients:          make(map[uint32]*Client),
		sessions:         make(map[string]*session),
		newSessionID:     func() string { return NewSessionID(src) },
		outboundCapacity: max(cfg.OutboundQueue, 1),
		inboundCapacity:  max(cfg.InboundQueue, 1),
		logger:           logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register assigns client an id, stores it and starts its driver, which
// consumes events until the connection ends and then unregisters the client.
//
// Precondition: client must not already be registered.
// Postcondition: Returns a non-zero id not held by any other registered client.
func (r *Registry) Register(client *Client, events <-chan Event) uint32 {
	r.mu.Lock()
	id := r.allocateIDLocked()
	client.id = id
	client.role = Uninitialized()
	r.clients[id] = client
	r.mu.Unlock()

	logger := r.logger.With(zap.Uint32("client_id", id), zap.String("remote_addr", client.address))
	logger.Debug("client registered")

	r.drivers.Add(1)
	go r.drive(client, events, logger)
	return id
}

// allocateIDLocked advances the counter past 0 and ids still in use.
func (r *Registry) allocateIDLocked() uint32 {
	for {
		r.nextClientID++
		if r.nextClientID == 0 {
			continue
		}
		if _, used := r.clients[r.nextClientID]; !used {
			return r.nextClientID
		}
	}
}

// Unregister removes a client. A publisher's session is deleted and its
// subscribers are demoted to uninitialized; a subscriber leaves its session.
//
// Postcondition: The client is gone and its outbound queue is closed. Unknown
// ids are ignored.
func (r *Registry) Unregister(clientID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	delete(r.clients, clientID)

	switch c.role.Kind {
	case RolePublisher:
		r.deleteSessionLocked(c.role.SessionID)
	case RoleSubscriber:
		r.removeSubscriberLocked(c.role.SessionID, clientID)
	}
	c.outbound.Close()
	r.logger.Debug("client unregistered",
		zap.Uint32("client_id", clientID),
		zap.Stringer("role", c.role),
	)
}

func (r *Registry) deleteSessionLocked(sessionID string) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for subID := range s.subscribers {
		if sub, ok := r.clients[subID]; ok && sub.role == SubscriberOf(sessionID) {
			sub.role = Uninitialized()
		}
	}
	delete(r.sessions, sessionID)
	r.logger.Info("session ended",
		zap.String("session_id", sessionID),
		zap.Int("demoted", len(s.subscribers)),
	)
}

// CreateSession makes ownerID the publisher of a new, empty session.
//
// Postcondition: On success the owner's role is PublisherOf(view.ID). Returns
// ErrInvalidClientID for an unknown client, ErrInvalidClientState if the
// client is not uninitialized, and leaves state unchanged on any error.
func (r *Registry) CreateSession(ownerID uint32) (SessionView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[ownerID]
	if !ok {
		return SessionView{}, ErrInvalidClientID
	}
	if c.role.Kind != RoleUninitialized {
		return SessionView{}, ErrInvalidClientState
	}

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxSessionIDAttempts {
			return SessionView{}, ErrSessionIDExhausted
		}
		id = r.newSessionID()
		if _, taken := r.sessions[id]; !taken {
			break
		}
	}

	s := &session{
		id:          id,
		ownerID:     ownerID,
		subscribers: make(map[uint32]*Outbound),
	}
	r.sessions[id] = s
	c.role = PublisherOf(id)
	r.logger.Info("session started",
		zap.String("session_id", id),
		zap.Uint32("client_id", ownerID),
		zap.String("remote_addr", c.address),
	)
	return s.view(), nil
}

// FindSession looks up a live session.
func (r *Registry) FindSession(sessionID string) (SessionView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return SessionView{}, false
	}
	return s.view(), true
}

// Subscribe adds clientID to a session's subscribers and broadcasts the new
// viewer count to every subscriber, including the new one.
//
// Postcondition: Errors are checked in the order ErrInvalidClientID,
// ErrInvalidClientState, ErrInvalidSessionID; any error leaves state unchanged.
func (r *Registry) Subscribe(sessionID string, clientID uint32) (SessionView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return SessionView{}, ErrInvalidClientID
	}
	if c.role.Kind != RoleUninitialized {
		return SessionView{}, ErrInvalidClientState
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return SessionView{}, ErrInvalidSessionID
	}

	s.subscribers[clientID] = c.outbound
	c.role = SubscriberOf(sessionID)
	r.broadcastLocked(s, protocol.ViewerCount(len(s.subscribers)))
	r.logger.Debug("subscriber joined",
		zap.String("session_id", sessionID),
		zap.Uint32("client_id", clientID),
		zap.Int("viewers", len(s.subscribers)),
	)
	return s.view(), nil
}

// Unsubscribe removes clientID from a session. The client's role is reset
// only if it still names this session.
//
// Postcondition: Idempotent. A viewer count is broadcast only when a
// subscriber was actually removed.
func (r *Registry) Unsubscribe(sessionID string, clientID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.removeSubscriberLocked(sessionID, clientID)

	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	switch {
	case c.role == SubscriberOf(sessionID):
		c.role = Uninitialized()
	case removed || c.role.Kind != RoleUninitialized:
		r.logger.Warn("stale unsubscribe",
			zap.String("session_id", sessionID),
			zap.Uint32("client_id", clientID),
			zap.Stringer("role", c.role),
		)
	}
}

func (r *Registry) removeSubscriberLocked(sessionID string, clientID uint32) bool {
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := s.subscribers[clientID]; !ok {
		return false
	}
	delete(s.subscribers, clientID)
	r.broadcastLocked(s, protocol.ViewerCount(len(s.subscribers)))
	r.logger.Debug("subscriber left",
		zap.String("session_id", sessionID),
		zap.Uint32("client_id", clientID),
		zap.Int("viewers", len(s.subscribers)),
	)
	return true
}

// Broadcast enqueues msg on every subscriber of a session without blocking.
// A full queue drops that subscriber's copy only.
//
// Postcondition: Returns the number of subscribers the message was queued for;
// 0 for an unknown session.
func (r *Registry) Broadcast(sessionID string, msg protocol.ServerMessage) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return 0
	}
	return r.broadcastLocked(s, msg)
}

func (r *Registry) broadcastLocked(s *session, msg protocol.ServerMessage) int {
	delivered := 0
	for subID, q := range s.subscribers {
		if err := q.Push(msg); err != nil {
			r.logger.Debug("dropped broadcast",
				zap.String("session_id", s.id),
				zap.Uint32("client_id", subID),
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Publish stores payload as the session snapshot of the publishing client and
// fans it out to the session's subscribers.
//
// Postcondition: Returns false, with no effect, if clientID is not currently
// a publisher.
func (r *Registry) Publish(clientID uint32, payload json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok || c.role.Kind != RolePublisher {
		return false
	}
	s, ok := r.sessions[c.role.SessionID]
	if !ok {
		return false
	}
	s.snapshot = payload
	r.broadcastLocked(s, protocol.StateUpdate(payload))
	return true
}

// ClientRole returns the current role of a registered client.
func (r *Registry) ClientRole(clientID uint32) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return Role{}, false
	}
	return c.role, true
}

// Stats counts the registry's clients, sessions and subscriptions.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{Clients: len(r.clients), Sessions: len(r.sessions)}
	for _, s := range r.sessions {
		st.Subscribers += len(s.subscribers)
	}
	return st
}

// Wait blocks until every started driver has unregistered its client.
func (r *Registry) Wait() {
	r.drivers.Wait()
}
