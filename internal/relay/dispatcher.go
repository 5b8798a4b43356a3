package relay

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// Dispatcher translates one client's inbound messages into registry calls.
type Dispatcher struct {
	registry *Registry
	clientID uint32
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher acting on behalf of clientID.
//
// Precondition: registry and logger must be non-nil.
func NewDispatcher(registry *Registry, clientID uint32, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, clientID: clientID, logger: logger}
}

// Handle applies msg and returns the reply to enqueue for the sender, if any.
//
// Postcondition: Protocol failures are returned as error replies with a nil
// error. The only error returned is ErrStopRequested.
func (d *Dispatcher) Handle(msg protocol.ClientMessage) (*protocol.ServerMessage, error) {
	switch msg.Type {
	case protocol.TypeStartSession:
		view, err := d.registry.CreateSession(d.clientID)
		if err != nil {
			return d.reject(msg.Type, err), nil
		}
		reply := protocol.SessionStarted(view.ID)
		return &reply, nil

	case protocol.TypeJoin:
		if _, ok := d.registry.FindSession(msg.SessionID); !ok {
			return d.reject(msg.Type, ErrInvalidSessionID), nil
		}
		view, err := d.registry.Subscribe(msg.SessionID, d.clientID)
		if err != nil {
			return d.reject(msg.Type, err), nil
		}
		reply := protocol.Joined(view.ID, view.Snapshot)
		return &reply, nil

	case protocol.TypePublishState:
		if !d.registry.Publish(d.clientID, msg.Payload) {
			d.logger.Debug("ignoring publish from non-publisher", zap.Uint32("client_id", d.clientID))
		}
		return nil, nil

	case protocol.TypeLeave:
		if role, ok := d.registry.ClientRole(d.clientID); ok && role.Kind == RoleSubscriber {
			d.registry.Unsubscribe(role.SessionID, d.clientID)
		}
		return nil, nil

	case protocol.TypeStop:
		return nil, ErrStopRequested

	default:
		d.logger.Warn("unhandled message type", zap.String("type", string(msg.Type)))
		return nil, nil
	}
}

func (d *Dispatcher) reject(t protocol.ClientMessageType, err error) *protocol.ServerMessage {
	code, ok := ErrorCode(err)
	if !ok {
		// ErrSessionIDExhausted has no wire code of its own.
		d.logger.Error("command failed", zap.Uint32("client_id", d.clientID), zap.Error(err))
		code = protocol.CodeInvalidClientState
	}
	d.logger.Debug("command rejected",
		zap.Uint32("client_id", d.clientID),
		zap.String("type", string(t)),
		zap.Error(err),
	)
	reply := protocol.Error(code)
	return &reply
}

// isStop reports whether err asks the driver to end the connection.
func isStop(err error) bool {
	return errors.Is(err, ErrStopRequested)
}
