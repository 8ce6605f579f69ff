package net

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/embernet/log"
)

// quietLogCfg keeps per-client loggers silent during tests.
var quietLogCfg = &log.LogCfg{LogLevel: log.ErrorLevel}

type disconnection struct {
	local bool
	err   error
}

type mockRegistry struct {
	mu    sync.Mutex
	calls []disconnection
}

func (r *mockRegistry) HandleDisconnection(_ *Client, localDisconnect bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, disconnection{local: localDisconnect, err: err})
}

func (r *mockRegistry) disconnections() []disconnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]disconnection(nil), r.calls...)
}

// peerEnd wires the far side of a pipe and records every message the client
// end sends, in order.
type peerEnd struct {
	conn     *PipeConnection
	mu       sync.Mutex
	received []*Message
}

func newPeerEnd(t *testing.T, conn *PipeConnection) *peerEnd {
	t.Helper()
	p := &peerEnd{conn: conn}
	conn.SetMessageReceivedHandler(func(buffer *MessageBuffer, _ SendMode) {
		m, err := CreateMessage(buffer, true)
		buffer.Dispose()
		require.NoError(t, err)
		p.mu.Lock()
		p.received = append(p.received, m)
		p.mu.Unlock()
	})
	require.NoError(t, conn.StartListening())
	return p
}

func (p *peerEnd) messages() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Message(nil), p.received...)
}

func (p *peerEnd) send(t *testing.T, m *Message, mode SendMode) {
	t.Helper()
	buffer := m.ToBuffer()
	require.True(t, p.conn.SendMessage(buffer, mode))
	m.Dispose()
}

// Scenario: a client with ID 7 starts listening; the first outbound frame is
// a reliable command message whose payload decodes to 7.
func TestClient_StartListeningSendsAssignedID(t *testing.T) {
	local, remote := NewPipeConnection()
	registry := &mockRegistry{}
	client := NewClient(7, local, registry, NewDispatchGateway(16), quietLogCfg, nil)
	defer client.Dispose()

	peer := newPeerEnd(t, remote)
	require.NoError(t, client.StartListening())

	msgs := peer.messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsCommandMessage())

	id, err := decodeAssignedIdentity(msgs[0].Payload())
	require.NoError(t, err)
	assert.Equal(t, uint16(7), id)
	assert.Empty(t, registry.disconnections())

	for _, m := range msgs {
		m.Dispose()
	}
}

// Tests the sent/pushed counters and that a ping send is recorded for
// round-trip measurement.
func TestClient_SendCounters(t *testing.T) {
	local, remote := NewPipeConnection()
	client := NewClient(1, local, &mockRegistry{}, NewDispatchGateway(16), quietLogCfg, nil)
	defer client.Dispose()
	peer := newPeerEnd(t, remote)

	for i := 0; i < 3; i++ {
		m := NewMessage([]byte("data"))
		assert.True(t, client.SendMessage(m, Unreliable))
		m.Dispose()
	}
	push := NewMessage([]byte("push"))
	assert.True(t, client.PushMessage(push, Reliable))
	push.Dispose()

	ping := NewPingMessage(9, nil)
	assert.True(t, client.SendMessage(ping, Unreliable))
	ping.Dispose()

	assert.Equal(t, uint64(4), client.MessagesSent())
	assert.Equal(t, uint64(1), client.MessagesPushed())
	assert.Len(t, peer.messages(), 5)

	// The outbound ping is pending until its code comes back.
	_, ok := client.Rtt().RecordInboundPing(9)
	assert.True(t, ok)

	for _, m := range peer.messages() {
		m.Dispose()
	}
}

// Tests inbound delivery: the received counter, the subscriber payload, and
// that a send rejection after disconnect returns false rather than failing.
func TestClient_ReceiveAndDeliver(t *testing.T) {
	local, remote := NewPipeConnection()
	client := NewClient(2, local, &mockRegistry{}, NewDispatchGateway(16), quietLogCfg, nil)
	defer client.Dispose()
	remoteSide := &peerEnd{conn: remote}
	require.NoError(t, remote.StartListening())

	var mu sync.Mutex
	var payloads [][]byte
	client.MessageReceived.Subscribe(func(args *MessageReceivedArgs) {
		mu.Lock()
		payloads = append(payloads, append([]byte(nil), args.Message.Payload()...))
		mu.Unlock()
	}, true)

	require.NoError(t, client.StartListening())
	remoteSide.send(t, NewMessage([]byte("first")), Unreliable)
	remoteSide.send(t, NewMessage([]byte("second")), Reliable)

	assert.Equal(t, uint64(2), client.MessagesReceived())
	mu.Lock()
	require.Len(t, payloads, 2)
	assert.Equal(t, []byte("first"), payloads[0])
	assert.Equal(t, []byte("second"), payloads[1])
	mu.Unlock()
}

// Tests that a malformed inbound buffer is counted but silently dropped.
func TestClient_MalformedInboundDropped(t *testing.T) {
	local, remote := NewPipeConnection()
	client := NewClient(3, local, &mockRegistry{}, NewDispatchGateway(16), quietLogCfg, nil)
	defer client.Dispose()
	require.NoError(t, remote.StartListening())

	delivered := false
	client.MessageReceived.Subscribe(func(*MessageReceivedArgs) { delivered = true }, true)
	require.NoError(t, client.StartListening())

	require.True(t, remote.SendMessage(NewMessageBuffer([]byte{}, Unreliable), Unreliable))

	assert.Equal(t, uint64(1), client.MessagesReceived())
	assert.False(t, delivered)
	assert.Equal(t, StateConnected, client.ConnectionState())
}

// Tests the receive limiter: messages over the budget are dropped without
// reaching subscribers, while the received counter still reflects them.
func TestClient_ReceiveLimiterDrops(t *testing.T) {
	local, remote := NewPipeConnection()
	limiter := NewTokenRecvLimiter(1, 2)
	client := NewClient(4, local, &mockRegistry{}, NewDispatchGateway(16), quietLogCfg, limiter)
	defer client.Dispose()
	remoteSide := &peerEnd{conn: remote}
	require.NoError(t, remote.StartListening())

	var mu sync.Mutex
	delivered := 0
	client.MessageReceived.Subscribe(func(*MessageReceivedArgs) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}, true)
	require.NoError(t, client.StartListening())

	for i := 0; i < 10; i++ {
		remoteSide.send(t, NewMessage([]byte("flood")), Unreliable)
	}

	assert.Equal(t, uint64(10), client.MessagesReceived())
	mu.Lock()
	assert.LessOrEqual(t, delivered, 2)
	assert.Greater(t, delivered, 0)
	mu.Unlock()
}

// Tests the isolation contract: a panicking subscriber neither unwinds into
// the transport path nor marks the connection as disconnected.
func TestClient_SubscriberPanicIsolated(t *testing.T) {
	local, remote := NewPipeConnection()
	client := NewClient(5, local, &mockRegistry{}, NewDispatchGateway(16), quietLogCfg, nil)
	defer client.Dispose()
	remoteSide := &peerEnd{conn: remote}
	require.NoError(t, remote.StartListening())

	client.MessageReceived.Subscribe(func(*MessageReceivedArgs) { panic("plugin bug") }, true)
	require.NoError(t, client.StartListening())

	assert.NotPanics(t, func() {
		remoteSide.send(t, NewMessage([]byte("boom")), Unreliable)
	})
	assert.Equal(t, StateConnected, client.ConnectionState())
}

// Tests local and remote disconnection reporting to the owning registry.
func TestClient_DisconnectionReporting(t *testing.T) {
	local, remote := NewPipeConnection()
	registry := &mockRegistry{}
	client := NewClient(6, local, registry, NewDispatchGateway(16), quietLogCfg, nil)
	defer client.Dispose()
	require.NoError(t, remote.StartListening())
	require.NoError(t, client.StartListening())

	assert.True(t, client.Disconnect())
	calls := registry.disconnections()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].local)
	assert.NoError(t, calls[0].err)

	// A second disconnect finds the transport already down.
	assert.False(t, client.Disconnect())
}

// Tests that a transport-side drop reports a non-local disconnection with
// the transport error attached.
func TestClient_RemoteDropReported(t *testing.T) {
	local, remote := NewPipeConnection()
	registry := &mockRegistry{}
	client := NewClient(8, local, registry, NewDispatchGateway(16), quietLogCfg, nil)
	defer client.Dispose()
	require.NoError(t, remote.StartListening())
	require.NoError(t, client.StartListening())

	require.True(t, remote.Disconnect())

	calls := registry.disconnections()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].local)
	assert.ErrorIs(t, calls[0].err, io.EOF)
}

// Tests that disposing a client twice disposes the owned connection once.
func TestClient_DisposeIdempotent(t *testing.T) {
	local, remote := NewPipeConnection()
	client := NewClient(9, local, &mockRegistry{}, NewDispatchGateway(16), quietLogCfg, nil)
	require.NoError(t, remote.StartListening())

	client.Dispose()
	assert.NotPanics(t, client.Dispose)
	assert.Equal(t, StateDisconnected, client.ConnectionState())
}
