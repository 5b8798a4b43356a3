package stream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/radar/internal/config"
	"github.com/cory-johannsen/radar/internal/protocol"
	"github.com/cory-johannsen/radar/internal/relay"
	"github.com/cory-johannsen/radar/internal/testutil"
)

const (
	timeout   = 2 * time.Second
	sessionID = "AB12CD34EF56GH78"
)

func testConfig() config.PublisherConfig {
	return config.PublisherConfig{
		Host:         "127.0.0.1",
		Port:         0,
		WriteTimeout: 5 * time.Second,
		MaxFrameSize: 1024,
	}
}

func newRegistry(t *testing.T) *relay.Registry {
	t.Helper()
	reg := relay.NewRegistry(config.RelayConfig{OutboundQueue: 16, InboundQueue: 16}, zaptest.NewLogger(t),
		relay.WithSessionIDs(func() string { return sessionID }))
	t.Cleanup(reg.Wait)
	return reg
}

// startAcceptor binds and runs an acceptor until the test ends.
func startAcceptor(t *testing.T, handler SessionHandler) *Acceptor {
	t.Helper()
	acc := NewAcceptor(testConfig(), handler, zaptest.NewLogger(t))
	require.NoError(t, acc.Bind())

	errCh := make(chan error, 1)
	go func() { errCh <- acc.Start() }()
	t.Cleanup(func() {
		acc.Stop()
		assert.NoError(t, <-errCh)
	})

	require.Eventually(t, acc.IsRunning, timeout, 10*time.Millisecond)
	return acc
}

func TestAcceptor_BindStartStop(t *testing.T) {
	acc := NewAcceptor(testConfig(), RelayHandler(newRegistry(t)), zaptest.NewLogger(t))
	assert.Empty(t, acc.Addr())
	require.NoError(t, acc.Bind())
	require.NoError(t, acc.Bind(), "second bind is a no-op")
	addr := acc.Addr()
	require.NotEmpty(t, addr)

	errCh := make(chan error, 1)
	go func() { errCh <- acc.Start() }()
	require.Eventually(t, acc.IsRunning, timeout, 10*time.Millisecond)
	assert.Equal(t, addr, acc.Addr())

	acc.Stop()
	acc.Stop()
	assert.NoError(t, <-errCh)
	assert.False(t, acc.IsRunning())
}

func TestAcceptor_StopBeforeStart(t *testing.T) {
	acc := NewAcceptor(testConfig(), RelayHandler(newRegistry(t)), zaptest.NewLogger(t))
	require.NoError(t, acc.Bind())
	acc.Stop()
	assert.NoError(t, acc.Start())
}

func TestAcceptor_BindConflict(t *testing.T) {
	held, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer held.Close()

	cfg := testConfig()
	cfg.Port = held.Addr().(*net.TCPAddr).Port
	acc := NewAcceptor(cfg, RelayHandler(newRegistry(t)), zaptest.NewLogger(t))
	assert.Error(t, acc.Bind())
}

func TestPublisherSession(t *testing.T) {
	reg := newRegistry(t)
	acc := startAcceptor(t, RelayHandler(reg))

	pub := testutil.NewFrameClient(t, acc.Addr())
	pub.Send(protocol.StartSession())
	assert.Equal(t, protocol.SessionStarted(sessionID), pub.Receive(timeout))

	pub.Send(protocol.PublishState(json.RawMessage(`{"players":[]}`)))
	require.Eventually(t, func() bool {
		view, ok := reg.FindSession(sessionID)
		return ok && len(view.Snapshot) > 0
	}, timeout, 10*time.Millisecond)

	pub.Send(protocol.StartSession())
	assert.Equal(t, protocol.Error(protocol.CodeInvalidClientState), pub.Receive(timeout))

	pub.Send(protocol.Stop())
	assert.ErrorIs(t, pub.ReadErr(timeout), io.EOF, "stop closes the connection")
	require.Eventually(t, func() bool { return reg.Stats() == relay.Stats{} }, timeout, 10*time.Millisecond)
}

func TestMalformedEnvelopeClosesConnection(t *testing.T) {
	reg := newRegistry(t)
	acc := startAcceptor(t, RelayHandler(reg))

	c := testutil.NewFrameClient(t, acc.Addr())
	c.SendRaw([]byte(`{"type":"teleport"}`))
	assert.Error(t, c.ReadErr(timeout))
	require.Eventually(t, func() bool { return reg.Stats().Clients == 0 }, timeout, 10*time.Millisecond)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	reg := newRegistry(t)
	acc := startAcceptor(t, RelayHandler(reg))

	c := testutil.NewFrameClient(t, acc.Addr())
	var hdr [protocol.FrameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], 1<<20)
	c.WriteBytes(hdr[:])
	assert.Error(t, c.ReadErr(timeout))
}

func TestStopClosesLiveConnections(t *testing.T) {
	reg := newRegistry(t)
	acc := NewAcceptor(testConfig(), RelayHandler(reg), zaptest.NewLogger(t))
	require.NoError(t, acc.Bind())
	errCh := make(chan error, 1)
	go func() { errCh <- acc.Start() }()
	require.Eventually(t, acc.IsRunning, timeout, 10*time.Millisecond)

	c := testutil.NewFrameClient(t, acc.Addr())
	c.Send(protocol.StartSession())
	c.Receive(timeout)

	acc.Stop()
	require.NoError(t, <-errCh)
	assert.Error(t, c.ReadErr(timeout))
	reg.Wait()
	assert.Equal(t, relay.Stats{}, reg.Stats())
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(context.Context, *Conn) error {
		called = true
		return nil
	})
	require.NoError(t, h.HandleSession(context.Background(), nil))
	assert.True(t, called)
}
