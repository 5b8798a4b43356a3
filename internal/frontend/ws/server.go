// Package ws is the subscriber-facing transport: an HTTP server that upgrades
// requests on the subscribe path to WebSocket connections served by the relay.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/config"
	"github.com/cory-johannsen/radar/internal/observability"
	"github.com/cory-johannsen/radar/internal/relay"
)

const shutdownTimeout = 5 * time.Second

// Server accepts subscriber WebSocket connections.
type Server struct {
	cfg      config.SubscriberConfig
	registry *relay.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	running  bool
}

// NewServer creates a subscriber server bound to registry.
//
// Precondition: registry and logger must be non-nil.
// Postcondition: Returns a Server ready to be bound and started.
func NewServer(cfg config.SubscriberConfig, registry *relay.Registry, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes: the subscribe path, /healthz and /stats.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get(s.cfg.Path, s.handleSubscribe)
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	return r
}

// checkOrigin admits any origin when no allow-list is configured, and
// requests without an Origin header, which browsers always send.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		return
	}

	start := time.Now()
	conn := NewConn(uuid.NewString(), raw, r.RemoteAddr, s.cfg.MaxMessageSize, s.cfg.WriteTimeout, s.cfg.PongTimeout)
	logger := s.logger.With(observability.ConnFields(conn.ID(), conn.RemoteAddr())...)
	logger.Info("subscriber connected", zap.String("request_id", middleware.GetReqID(r.Context())))

	if err := s.registry.Serve(s.ctx, conn, zap.String("conn_id", conn.ID())); err != nil {
		logger.Debug("subscriber session ended", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Info("subscriber session ended cleanly", zap.Duration("duration", time.Since(start)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Bind claims the TCP listener without serving.
//
// Postcondition: Addr reports the bound address. Calling Bind again is a no-op.
func (s *Server) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = listener
	return nil
}

// Start serves HTTP until Stop is called, binding first if needed.
//
// Postcondition: Returns nil after Stop.
func (s *Server) Start() error {
	if err := s.Bind(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("subscriber server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving subscribers: %w", err)
	}
	return nil
}

// Stop cancels every live subscriber connection, shuts the HTTP server down
// and waits for connection handlers to return.
//
// Postcondition: No subscriber connection remains open.
func (s *Server) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("subscriber server shutdown", zap.Error(err))
	}

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.running = false
	s.mu.Unlock()

	s.conns.Wait()
	s.logger.Info("subscriber server stopped")
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

// IsRunning returns whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
