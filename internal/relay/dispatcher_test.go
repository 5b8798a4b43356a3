package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/radar/internal/protocol"
)

func dispatcherFor(t *testing.T, r *Registry, c *Client) *Dispatcher {
	return NewDispatcher(r, c.ID(), zaptest.NewLogger(t))
}

func TestDispatcher_StartSession(t *testing.T) {
	r := newTestRegistry(t, WithSessionIDs(sequence(testSessionID)))
	a := register(t, r)
	d := dispatcherFor(t, r, a)

	reply, err := d.Handle(protocol.StartSession())
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.SessionStarted(testSessionID), *reply)

	reply, err = d.Handle(protocol.StartSession())
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.Error(protocol.CodeInvalidClientState), *reply)
}

func TestDispatcher_JoinUnknownSession(t *testing.T) {
	r := newTestRegistry(t)
	c := register(t, r)

	reply, err := dispatcherFor(t, r, c).Handle(protocol.Join("doesnotexist"))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.Error(protocol.CodeInvalidSessionID), *reply)
	assert.Equal(t, Uninitialized(), role(t, r, c))
}

func TestDispatcher_JoinCarriesSnapshot(t *testing.T) {
	r := newTestRegistry(t, WithSessionIDs(sequence(testSessionID)))
	pub := register(t, r)
	sub := register(t, r)
	pd := dispatcherFor(t, r, pub)
	_, err := pd.Handle(protocol.StartSession())
	require.NoError(t, err)

	payload := json.RawMessage(`{"players":[{"id":1}]}`)
	reply, err := pd.Handle(protocol.PublishState(payload))
	require.NoError(t, err)
	assert.Nil(t, reply)

	reply, err = dispatcherFor(t, r, sub).Handle(protocol.Join(testSessionID))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.TypeJoined, reply.Type)
	assert.Equal(t, testSessionID, reply.SessionID)
	assert.JSONEq(t, string(payload), string(reply.InitialState))
	assert.Equal(t, SubscriberOf(testSessionID), role(t, r, sub))
}

func TestDispatcher_JoinTwiceRejected(t *testing.T) {
	r := newTestRegistry(t, WithSessionIDs(sequence(testSessionID)))
	pub := register(t, r)
	sub := register(t, r)
	_, err := r.CreateSession(pub.ID())
	require.NoError(t, err)
	d := dispatcherFor(t, r, sub)

	_, err = d.Handle(protocol.Join(testSessionID))
	require.NoError(t, err)
	reply, err := d.Handle(protocol.Join(testSessionID))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.Error(protocol.CodeInvalidClientState), *reply)
}

func TestDispatcher_PublishFromNonPublisherIgnored(t *testing.T) {
	r := newTestRegistry(t)
	c := register(t, r)

	reply, err := dispatcherFor(t, r, c).Handle(protocol.PublishState(json.RawMessage(`{}`)))
	assert.NoError(t, err)
	assert.Nil(t, reply)
	assert.Empty(t, drain(c.Outbound()))
}

func TestDispatcher_Leave(t *testing.T) {
	r := newTestRegistry(t, WithSessionIDs(sequence(testSessionID)))
	pub := register(t, r)
	sub := register(t, r)
	_, err := r.CreateSession(pub.ID())
	require.NoError(t, err)
	d := dispatcherFor(t, r, sub)
	_, err = d.Handle(protocol.Join(testSessionID))
	require.NoError(t, err)

	reply, err := d.Handle(protocol.Leave())
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, Uninitialized(), role(t, r, sub))

	reply, err = d.Handle(protocol.Leave())
	assert.NoError(t, err)
	assert.Nil(t, reply)

	reply, err = dispatcherFor(t, r, pub).Handle(protocol.Leave())
	assert.NoError(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, PublisherOf(testSessionID), role(t, r, pub), "leave does not end a publisher's session")
}

func TestDispatcher_Stop(t *testing.T) {
	r := newTestRegistry(t)
	c := register(t, r)

	reply, err := dispatcherFor(t, r, c).Handle(protocol.Stop())
	assert.ErrorIs(t, err, ErrStopRequested)
	assert.Nil(t, reply)
}
