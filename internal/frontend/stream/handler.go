package stream

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/relay"
)

// RelayHandler serves every accepted publisher connection through reg.
func RelayHandler(reg *relay.Registry) SessionHandler {
	return HandlerFunc(func(ctx context.Context, conn *Conn) error {
		return reg.Serve(ctx, conn, zap.String("conn_id", conn.ID()))
	})
}
