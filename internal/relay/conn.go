package relay

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/radar/internal/protocol"
)

// Conn is one transport-level connection carrying typed messages. Transports
// decode on read and encode on write; Close must unblock a pending read.
type Conn interface {
	ReadMessage() (protocol.ClientMessage, error)
	WriteMessage(msg protocol.ServerMessage) error
	Close() error
	RemoteAddr() string
}

var errQueueDrained = errors.New("outbound queue drained")

// Serve registers conn as a new client and pumps it until the connection ends:
// a receive loop feeds decoded messages to the client's driver, a send loop
// writes its outbound queue to the wire, and whichever stops first tears the
// other down.
//
// Postcondition: When Serve returns the client's event channel is closed, so
// its driver unregisters it without further input. Returns nil for an orderly
// close, otherwise the *TransportError that ended the connection.
func (r *Registry) Serve(ctx context.Context, conn Conn, fields ...zap.Field) error {
	client := NewClient(conn.RemoteAddr(), r.outboundCapacity)
	events := make(chan Event, r.inboundCapacity)
	id := r.Register(client, events)

	logger := r.logger.With(fields...).With(
		zap.Uint32("client_id", id),
		zap.String("remote_addr", client.address),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return receiveLoop(gctx, conn, events)
	})
	g.Go(func() error {
		return sendLoop(gctx, conn, client.outbound, events, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := conn.Close(); err != nil {
			logger.Debug("closing connection", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	close(events)

	switch {
	case err == nil,
		ctx.Err() != nil,
		errors.Is(err, errQueueDrained),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.EOF):
		return nil
	default:
		logger.Debug("connection closed", zap.Error(err))
		return err
	}
}

func receiveLoop(ctx context.Context, conn Conn, events chan<- Event) error {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			terr := &TransportError{Op: OpReceive, Err: err}
			emit(ctx, events, Event{Kind: EventReceiveError, Err: terr})
			return terr
		}
		if !emit(ctx, events, MessageEvent(msg)) {
			return ctx.Err()
		}
	}
}

func sendLoop(ctx context.Context, conn Conn, q *Outbound, events chan<- Event, logger *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-q.Messages():
			if !ok {
				return errQueueDrained
			}
			if err := conn.WriteMessage(msg); err != nil {
				if errors.Is(err, protocol.ErrEncode) {
					logger.Error("encoding server message", zap.String("type", string(msg.Type)), zap.Error(err))
				}
				terr := &TransportError{Op: OpSend, Err: err}
				emit(ctx, events, Event{Kind: EventSendError, Err: terr})
				return terr
			}
		}
	}
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
