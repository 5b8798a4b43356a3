// Package admin exposes the relay's operational gRPC endpoint: the standard
// health checking service.
package admin

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/radar/internal/config"
)

// ServiceName is the health service name reported for the relay.
const ServiceName = "radar.relay"

// Server is the admin gRPC server.
type Server struct {
	cfg    config.AdminConfig
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates an admin server whose health service reports NOT_SERVING
// until it starts serving.
//
// Precondition: logger must be non-nil.
func NewServer(cfg config.AdminConfig, logger *zap.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{cfg: cfg, logger: logger, grpc: gs, health: hs}
}

// Bind claims the admin listener.
//
// Postcondition: Calling Bind again is a no-op.
func (s *Server) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = lis
	return nil
}

// Start serves on the bound listener until Stop.
func (s *Server) Start() error {
	if err := s.Bind(); err != nil {
		return err
	}
	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()
	return s.Serve(lis)
}

// Serve marks the relay SERVING and serves gRPC on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("admin gRPC server listening", zap.String("addr", lis.Addr().String()))

	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serving admin gRPC: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING to watchers and gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.logger.Info("admin gRPC server stopped")
}

// Addr returns the bound listening address, or empty string if not yet bound.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
