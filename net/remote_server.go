package net

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lcx/embernet/log"
	"github.com/lcx/embernet/metrics"
)

// ServerDirection tags which side initiated a server-to-server link.
type ServerDirection uint8

const (
	// Downstream servers connect to us; their link arrives through the
	// listener and is promoted from a pending connection.
	Downstream ServerDirection = iota
	// Upstream servers are ones we connect out to.
	Upstream
)

// String returns the name of the direction.
func (d ServerDirection) String() string {
	switch d {
	case Downstream:
		return "Downstream"
	case Upstream:
		return "Upstream"
	}
	return "Unknown"
}

// RemoteServer is one connected peer server, regardless of link direction.
// Implementations are safe for concurrent use.
type RemoteServer interface {
	// ID returns the peer's cluster-wide identity.
	ID() uint16

	// Host returns the peer's advertised host.
	Host() string

	// Port returns the peer's advertised port.
	Port() uint16

	// Direction reports which side initiated the link.
	Direction() ServerDirection

	// ConnectionState returns the state of the active link, or
	// StateDisconnected when no connection is currently set.
	ConnectionState() ConnectionState

	// SendMessage forwards a message to the peer. Returns false when no
	// connection is set (a valid state during reconnection) or the transport
	// rejects the send.
	SendMessage(message *Message, mode SendMode) bool

	// OnMessageReceived subscribes to messages arriving from the peer.
	OnMessageReceived(handler func(*ServerMessageReceivedArgs), threadSafe bool)

	// OnConnected subscribes to the peer's link coming up.
	OnConnected(handler func(*ServerConnectedArgs), threadSafe bool)

	// OnDisconnected subscribes to the peer's link dropping.
	OnDisconnected(handler func(*ServerDisconnectedArgs), threadSafe bool)

	// Dispose releases the server and its connection, if set. Idempotent.
	Dispose()
}

// serverDisconnectionHandler is the owning group's bookkeeping hook. It runs
// before any plugin-visible disconnect event.
type serverDisconnectionHandler interface {
	handleServerDisconnection(server RemoteServer, err error)
}

// remoteServerCore carries the behavior shared by both link directions: a
// replaceable transport connection, inbound decode and dispatch, and the
// group-first disconnect sequencing.
type remoteServerCore struct {
	messageReceived Event[*ServerMessageReceivedArgs]
	connected       Event[*ServerConnectedArgs]
	disconnected    Event[*ServerDisconnectedArgs]

	id        uint16
	host      string
	port      uint16
	direction ServerDirection
	group     serverDisconnectionHandler
	gateway   *DispatchGateway

	// self is the outer variant; it is what event arguments carry.
	self RemoteServer

	// connMu guards the conn slot only; critical sections stay short so
	// subscribers running inline can send without deadlocking.
	connMu sync.Mutex
	conn   TransportConnection

	// promoteMu gates live inbound delivery against promotion, enforcing
	// that a pending backlog fully drains before any live message on the
	// fresh connection is delivered.
	promoteMu sync.RWMutex

	disposed atomic.Bool
}

func (s *remoteServerCore) ID() uint16 {
	return s.id
}

func (s *remoteServerCore) Host() string {
	return s.host
}

func (s *remoteServerCore) Port() uint16 {
	return s.port
}

func (s *remoteServerCore) Direction() ServerDirection {
	return s.direction
}

func (s *remoteServerCore) ConnectionState() ConnectionState {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return StateDisconnected
	}
	return conn.ConnectionState()
}

func (s *remoteServerCore) OnMessageReceived(handler func(*ServerMessageReceivedArgs), threadSafe bool) {
	s.messageReceived.Subscribe(handler, threadSafe)
}

func (s *remoteServerCore) OnConnected(handler func(*ServerConnectedArgs), threadSafe bool) {
	s.connected.Subscribe(handler, threadSafe)
}

func (s *remoteServerCore) OnDisconnected(handler func(*ServerDisconnectedArgs), threadSafe bool) {
	s.disconnected.Subscribe(handler, threadSafe)
}

// SendMessage forwards to the active connection if one is set.
func (s *remoteServerCore) SendMessage(message *Message, mode SendMode) bool {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return false
	}

	buffer := message.ToBuffer()
	if !conn.SendMessage(buffer, mode) {
		buffer.Dispose()
		return false
	}
	metrics.IncrCounterWithGroup("net", "server_messages_out_total", 1)
	return true
}

// attachConnection swaps the active connection slot. The disconnect callback
// is bound to the connection it was attached to, so a drop report from the
// replaced connection that is already in flight during the swap is recognized
// by identity and ignored instead of tearing down the successor.
func (s *remoteServerCore) attachConnection(conn TransportConnection) {
	s.connMu.Lock()
	old := s.conn
	s.conn = conn
	s.connMu.Unlock()

	if old != nil {
		old.SetMessageReceivedHandler(nil)
		old.SetDisconnectedHandler(nil)
	}
	conn.SetMessageReceivedHandler(s.handleIncomingMessageBuffer)
	conn.SetDisconnectedHandler(func(err error) {
		s.handleTransportDisconnected(conn, err)
	})
}

func (s *remoteServerCore) raiseConnected() {
	args := &ServerConnectedArgs{Server: s.self}
	s.connected.raise(s.gateway, "ServerConnected", args, args.Dispose)
}

// handleIncomingMessageBuffer is the transport's inbound entry point for
// live traffic. It waits out any in-flight promotion before delivering.
func (s *remoteServerCore) handleIncomingMessageBuffer(buffer *MessageBuffer, mode SendMode) {
	s.promoteMu.RLock()
	defer s.promoteMu.RUnlock()
	s.deliverBuffer(buffer, mode)
}

// deliverBuffer decodes and dispatches one inbound buffer, taking ownership
// of the handle. Promotion drain calls this directly while holding
// promoteMu exclusively.
func (s *remoteServerCore) deliverBuffer(buffer *MessageBuffer, mode SendMode) {
	metrics.IncrCounterWithGroup("net", "server_messages_in_total", 1)

	message, err := CreateMessage(buffer, true)
	buffer.Dispose()
	if err != nil {
		metrics.IncrCounterWithGroup("net", "server_messages_malformed_total", 1)
		log.Debug().Uint16("serverID", s.id).Err(err).Msg("dropped malformed server message")
		return
	}
	defer message.Dispose()

	if message.IsCommandMessage() {
		// Peers are not expected to send handshake-style command frames;
		// warn but deliver anyway.
		log.Warn().Uint16("serverID", s.id).Msg("unexpected command message from server peer")
		metrics.IncrCounterWithGroup("net", "server_unexpected_commands_total", 1)
	}

	clone := message.Clone()
	args := &ServerMessageReceivedArgs{Server: s.self, Message: clone, SendMode: mode}
	s.messageReceived.raise(s.gateway, "ServerMessageReceived", args, func() {
		args.Dispose()
		clone.Dispose()
	})
}

// handleTransportDisconnected runs on a socket goroutine when a link drops.
// Only a report from the currently attached connection clears the slot; a
// stale report from a replaced connection is dropped. Group bookkeeping
// happens before the plugin-visible event.
func (s *remoteServerCore) handleTransportDisconnected(reporter TransportConnection, err error) {
	s.connMu.Lock()
	if s.conn != reporter {
		s.connMu.Unlock()
		return
	}
	s.conn = nil
	s.connMu.Unlock()

	reporter.SetMessageReceivedHandler(nil)
	reporter.SetDisconnectedHandler(nil)

	log.Warn().Uint16("serverID", s.id).Str("direction", s.direction.String()).
		Err(err).Msg("server connection dropped")

	if s.group != nil {
		s.group.handleServerDisconnection(s.self, err)
	}

	args := &ServerDisconnectedArgs{Server: s.self, Err: err}
	s.disconnected.raise(s.gateway, "ServerDisconnected", args, args.Dispose)
}

// Dispose releases the server and the active connection, if one is set.
func (s *remoteServerCore) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		conn.SetMessageReceivedHandler(nil)
		conn.SetDisconnectedHandler(nil)
		conn.Dispose()
	}
}

// DownstreamRemoteServer is a peer that connects to us. It starts with no
// connection; the listener promotes a pending connection onto it once the
// peer identifies itself.
type DownstreamRemoteServer struct {
	remoteServerCore
}

// NewDownstreamRemoteServer creates a downstream server awaiting its first
// connection.
func NewDownstreamRemoteServer(id uint16, host string, port uint16,
	group serverDisconnectionHandler, gateway *DispatchGateway) *DownstreamRemoteServer {
	s := &DownstreamRemoteServer{
		remoteServerCore: remoteServerCore{
			id:        id,
			host:      host,
			port:      port,
			direction: Downstream,
			group:     group,
			gateway:   gateway,
		},
	}
	s.self = s
	return s
}

// SetConnection promotes a pending connection onto this server: the previous
// connection's callbacks are detached, the new connection's attached, the
// connected event raised, and the pending backlog drained in arrival order
// before any live message on the new connection is delivered.
func (s *DownstreamRemoteServer) SetConnection(pending *PendingServerConnection) {
	s.promoteMu.Lock()
	defer s.promoteMu.Unlock()

	s.attachConnection(pending.Connection())
	s.raiseConnected()
	pending.drain(s.deliverBuffer)
}

// UpstreamRemoteServer is a peer we connect out to through an injected
// connector, so the socket engine stays outside this package.
type UpstreamRemoteServer struct {
	remoteServerCore
	connector Connector
}

// NewUpstreamRemoteServer creates an upstream server. Connect establishes
// the link.
func NewUpstreamRemoteServer(id uint16, host string, port uint16,
	group serverDisconnectionHandler, gateway *DispatchGateway, connector Connector) *UpstreamRemoteServer {
	s := &UpstreamRemoteServer{
		remoteServerCore: remoteServerCore{
			id:        id,
			host:      host,
			port:      port,
			direction: Upstream,
			group:     group,
			gateway:   gateway,
		},
		connector: connector,
	}
	s.self = s
	return s
}

// Connect dials the peer and attaches the resulting connection. Safe to call
// again after a drop; the previous connection's callbacks are detached first.
func (s *UpstreamRemoteServer) Connect() error {
	conn, err := s.connector(s.host, s.port)
	if err != nil {
		return fmt.Errorf("failed to connect to server %d at %s:%d: %w", s.id, s.host, s.port, err)
	}

	s.promoteMu.Lock()
	defer s.promoteMu.Unlock()

	s.attachConnection(conn)
	if err := conn.StartListening(); err != nil {
		conn.SetMessageReceivedHandler(nil)
		conn.SetDisconnectedHandler(nil)
		conn.Dispose()
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		return fmt.Errorf("failed to start listening on server %d: %w", s.id, err)
	}

	s.raiseConnected()
	return nil
}
