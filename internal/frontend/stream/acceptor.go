// Package stream is the publisher-facing transport: a raw TCP listener whose
// connections carry length-prefixed protocol frames.
package stream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/radar/internal/config"
	"github.com/cory-johannsen/radar/internal/observability"
)

// SessionHandler processes one accepted publisher connection until it ends.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// HandlerFunc adapts a function to SessionHandler.
type HandlerFunc func(ctx context.Context, conn *Conn) error

// HandleSession calls f.
func (f HandlerFunc) HandleSession(ctx context.Context, conn *Conn) error {
	return f(ctx, conn)
}

// Acceptor listens for publisher connections on a TCP port and dispatches
// each connection to a SessionHandler.
type Acceptor struct {
	cfg     config.PublisherConfig
	handler SessionHandler
	logger  *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	stopped  bool
}

// NewAcceptor creates a publisher acceptor with the given configuration.
//
// Precondition: handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be bound and started.
func NewAcceptor(cfg config.PublisherConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
	}
}

// Bind claims the TCP listener without accepting connections.
//
// Postcondition: Addr reports the bound address. Calling Bind again is a no-op.
func (a *Acceptor) Bind() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	a.listener = listener
	return nil
}

// Start accepts connections until Stop is called, binding first if needed.
// This method blocks until the acceptor is stopped.
//
// Postcondition: Returns nil after Stop, or the bind error.
func (a *Acceptor) Start() error {
	start := time.Now()
	if err := a.Bind(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	listener := a.listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("publisher acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.wg.Add(1)
		go a.handleConn(conn)
	}
}

// handleConn serves a single TCP connection.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	start := time.Now()

	conn := NewConn(uuid.NewString(), raw, a.cfg.MaxFrameSize, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
	defer conn.Close()
	logger := a.logger.With(observability.ConnFields(conn.ID(), conn.RemoteAddr())...)
	logger.Info("publisher connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleSession(ctx, conn); err != nil {
		logger.Debug("publisher session ended",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	} else {
		logger.Info("publisher session ended cleanly",
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Stop closes the listener, cancels every live connection and waits for
// their handlers to return.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.running = false
	close(a.quit)
	if a.listener != nil {
		_ = a.listener.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("publisher acceptor stopped")
}

// Addr returns the bound listening address, or empty string if not yet bound.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
