package main

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/admin"
	"github.com/cory-johannsen/radar/internal/config"
	"github.com/cory-johannsen/radar/internal/frontend/stream"
	"github.com/cory-johannsen/radar/internal/frontend/ws"
	"github.com/cory-johannsen/radar/internal/relay"
	"github.com/cory-johannsen/radar/internal/server"
)

// App is the assembled relay process.
type App struct {
	Logger      *zap.Logger
	Registry    *relay.Registry
	Publishers  *stream.Acceptor
	Subscribers *ws.Server
	Admin       *admin.Server
	Lifecycle   *server.Lifecycle
}

func provideRegistry(cfg config.RelayConfig, logger *zap.Logger) *relay.Registry {
	return relay.NewRegistry(cfg, logger)
}

// provideLifecycle orders services so listeners bind publisher, subscriber,
// then admin, and stop in the reverse order.
func provideLifecycle(
	cfg config.AdminConfig,
	logger *zap.Logger,
	publishers *stream.Acceptor,
	subscribers *ws.Server,
	adm *admin.Server,
) *server.Lifecycle {
	lc := server.NewLifecycle(logger)
	lc.Add("publisher-acceptor", publishers)
	lc.Add("subscriber-server", subscribers)
	if cfg.Enabled {
		lc.Add("admin-grpc", adm)
	}
	return lc
}
