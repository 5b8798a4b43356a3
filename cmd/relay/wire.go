//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/admin"
	"github.com/cory-johannsen/radar/internal/config"
	"github.com/cory-johannsen/radar/internal/frontend/stream"
	"github.com/cory-johannsen/radar/internal/frontend/ws"
)

var relaySet = wire.NewSet(
	wire.FieldsOf(new(config.Config), "Publisher", "Subscriber", "Relay", "Admin"),
	provideRegistry,
	stream.RelayHandler,
	stream.NewAcceptor,
	ws.NewServer,
	admin.NewServer,
	provideLifecycle,
	wire.Struct(new(App), "*"),
)

func initializeApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	wire.Build(relaySet)
	return nil, nil
}
