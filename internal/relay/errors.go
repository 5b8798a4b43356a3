package relay

import (
	"errors"

	"github.com/cory-johannsen/radar/internal/protocol"
)

var (
	// ErrInvalidClientID means the referenced client is not registered,
	// typically because it disconnected concurrently.
	ErrInvalidClientID = errors.New("invalid client id")
	// ErrInvalidClientState means the client's role forbids the operation.
	ErrInvalidClientState = errors.New("invalid client state")
	// ErrInvalidSessionID means no live session has the given id.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrStopRequested is returned by the dispatcher when a client asks to end
	// its connection.
	ErrStopRequested = errors.New("stop requested")
	// ErrSessionIDExhausted is returned when repeated id generation keeps
	// colliding with live sessions.
	ErrSessionIDExhausted = errors.New("could not allocate a unique session id")
)

// Transport operations reported by TransportError.
const (
	OpReceive = "receive"
	OpSend    = "send"
)

// TransportError is a decode or I/O failure on one connection. It is always
// fatal to that connection and never to any other.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorCode maps a protocol-level registry error to the code reported to the
// client. ok is false for errors that have no wire representation.
func ErrorCode(err error) (code protocol.ErrorCode, ok bool) {
	switch {
	case errors.Is(err, ErrInvalidClientID):
		return protocol.CodeInvalidClientID, true
	case errors.Is(err, ErrInvalidClientState):
		return protocol.CodeInvalidClientState, true
	case errors.Is(err, ErrInvalidSessionID):
		return protocol.CodeInvalidSessionID, true
	default:
		return "", false
	}
}
