// Package protocol defines the messages exchanged between the relay and its
// publishers and subscribers, and their wire encodings.
//
// Both transports carry the same JSON envelopes. The raw publisher transport
// wraps each envelope in a length-prefixed frame; the WebSocket transport sends
// one envelope per text frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ClientMessageType tags a client→server envelope.
type ClientMessageType string

const (
	// TypeStartSession asks the relay to create a session owned by the sender.
	TypeStartSession ClientMessageType = "start-session"
	// TypePublishState carries a snapshot to fan out to the sender's session.
	TypePublishState ClientMessageType = "publish-state"
	// TypeStop ends a publisher's connection.
	TypeStop ClientMessageType = "stop"
	// TypeJoin subscribes the sender to a session.
	TypeJoin ClientMessageType = "join"
	// TypeLeave unsubscribes the sender from its current session.
	TypeLeave ClientMessageType = "leave"
)

// ServerMessageType tags a server→client envelope.
type ServerMessageType string

const (
	TypeSessionStarted ServerMessageType = "session-started"
	TypeJoined         ServerMessageType = "joined"
	TypeStateUpdate    ServerMessageType = "state-update"
	TypeViewerCount    ServerMessageType = "viewer-count"
	TypeError          ServerMessageType = "error"
)

// ErrorCode is the reason carried by an error reply.
type ErrorCode string

const (
	CodeInvalidClientID    ErrorCode = "InvalidClientId"
	CodeInvalidClientState ErrorCode = "InvalidClientState"
	CodeInvalidSessionID   ErrorCode = "InvalidSessionId"
)

// ErrMalformed is wrapped by every decode failure caused by the peer's payload.
var ErrMalformed = errors.New("malformed message")

// ClientMessage is a decoded client→server envelope.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// Validate checks that the envelope names a known type and carries the fields
// that type requires.
//
// Postcondition: Returns nil or an error wrapping ErrMalformed.
func (m ClientMessage) Validate() error {
	switch m.Type {
	case TypeStartSession, TypeStop, TypeLeave:
		return nil
	case TypeJoin:
		if m.SessionID == "" {
			return fmt.Errorf("%w: join requires session_id", ErrMalformed)
		}
		return nil
	case TypePublishState:
		if len(m.Payload) == 0 {
			return fmt.Errorf("%w: publish-state requires payload", ErrMalformed)
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
}

// StartSession builds a start-session request.
func StartSession() ClientMessage {
	return ClientMessage{Type: TypeStartSession}
}

// PublishState builds a publish-state request carrying payload verbatim.
func PublishState(payload json.RawMessage) ClientMessage {
	return ClientMessage{Type: TypePublishState, Payload: payload}
}

// Stop builds a stop request.
func Stop() ClientMessage {
	return ClientMessage{Type: TypeStop}
}

// Join builds a join request for sessionID.
func Join(sessionID string) ClientMessage {
	return ClientMessage{Type: TypeJoin, SessionID: sessionID}
}

// Leave builds a leave request.
func Leave() ClientMessage {
	return ClientMessage{Type: TypeLeave}
}

// ServerMessage is a server→client envelope. Only the fields relevant to Type
// are set.
type ServerMessage struct {
	Type         ServerMessageType `json:"type"`
	SessionID    string            `json:"session_id,omitempty"`
	InitialState json.RawMessage   `json:"initial_state,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	Viewers      *int              `json:"viewers,omitempty"`
	Reason       ErrorCode         `json:"reason,omitempty"`
}

// SessionStarted acknowledges a start-session request.
func SessionStarted(sessionID string) ServerMessage {
	return ServerMessage{Type: TypeSessionStarted, SessionID: sessionID}
}

// Joined acknowledges a join. initialState is the session's most recent
// snapshot and may be nil when nothing has been published yet.
func Joined(sessionID string, initialState json.RawMessage) ServerMessage {
	return ServerMessage{Type: TypeJoined, SessionID: sessionID, InitialState: initialState}
}

// StateUpdate forwards a publisher payload to a subscriber.
func StateUpdate(payload json.RawMessage) ServerMessage {
	return ServerMessage{Type: TypeStateUpdate, Payload: payload}
}

// ViewerCount reports the current size of a session's subscriber set.
func ViewerCount(n int) ServerMessage {
	return ServerMessage{Type: TypeViewerCount, Viewers: &n}
}

// Error reports a rejected command.
func Error(code ErrorCode) ServerMessage {
	return ServerMessage{Type: TypeError, Reason: code}
}

// ViewerCountValue returns the viewer count, or -1 when the message carries none.
func (m ServerMessage) ViewerCountValue() int {
	if m.Viewers == nil {
		return -1
	}
	return *m.Viewers
}

// Validate checks that the envelope names a known server type.
func (m ServerMessage) Validate() error {
	switch m.Type {
	case TypeSessionStarted, TypeJoined, TypeStateUpdate, TypeViewerCount, TypeError:
		return nil
	default:
		return fmt.Errorf("%w: unknown server type %q", ErrMalformed, m.Type)
	}
}
