package relay

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// EventKind classifies an inbound connection event.
type EventKind int

const (
	// EventMessage carries a successfully decoded client message.
	EventMessage EventKind = iota
	// EventReceiveError reports that the receive loop stopped.
	EventReceiveError
	// EventSendError reports that the send loop stopped.
	EventSendError
)

// Event is one item on a client's inbound channel.
type Event struct {
	Kind    EventKind
	Message protocol.ClientMessage
	Err     error
}

// MessageEvent wraps a decoded message.
func MessageEvent(msg protocol.ClientMessage) Event {
	return Event{Kind: EventMessage, Message: msg}
}

// drive feeds a client's events through its dispatcher, in order, until the
// connection fails, the client asks to stop, or events is closed.
//
// Postcondition: The client is unregistered exactly once when drive returns.
func (r *Registry) drive(client *Client, events <-chan Event, logger *zap.Logger) {
	defer r.drivers.Done()
	defer r.Unregister(client.id)

	d := NewDispatcher(r, client.id, logger)
	for ev := range events {
		switch ev.Kind {
		case EventMessage:
			reply, err := d.Handle(ev.Message)
			if reply != nil {
				if perr := client.outbound.Push(*reply); perr != nil {
					logger.Debug("dropped reply", zap.String("type", string(reply.Type)), zap.Error(perr))
				}
			}
			if isStop(err) {
				logger.Debug("client requested stop")
				return
			}
		case EventReceiveError, EventSendError:
			logger.Debug("connection ended", zap.Error(ev.Err))
			return
		}
	}
}
