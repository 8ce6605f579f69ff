// Package net implements the connection and message lifecycle core of the
// embernet game server: per-client connections, remote server links with
// reconnection support, thread-safe server group registries, and the dispatch
// gateway that delivers events to plugins without letting a plugin failure
// corrupt connection state.
package net

import "net"

// SendMode selects the delivery guarantee for a message.
type SendMode uint8

const (
	// Unreliable messages may be dropped or reordered by the transport.
	Unreliable SendMode = iota
	// Reliable messages are delivered exactly once, in order.
	Reliable
)

// String returns the name of the send mode.
func (m SendMode) String() string {
	switch m {
	case Unreliable:
		return "Unreliable"
	case Reliable:
		return "Reliable"
	}
	return "Unknown"
}

// ConnectionState describes the lifecycle position of a transport connection.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

// String returns the name of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	}
	return "Unknown"
}

// MessageReceivedHandler is invoked by a transport connection for every
// inbound buffer. Ownership of the buffer handle passes to the handler,
// which must dispose it.
type MessageReceivedHandler func(buffer *MessageBuffer, mode SendMode)

// DisconnectedHandler is invoked by a transport connection when the link
// drops for a remote or transport-level reason. It is not invoked for
// locally requested disconnections.
type DisconnectedHandler func(err error)

// TransportConnection is the seam to the socket engine, which performs the
// actual I/O and reports connection-state changes and inbound buffers through
// the two settable handler slots. Handlers may be re-set, which supports
// swapping a remote server onto a fresh connection after a reconnect.
//
// Transport callbacks run on arbitrary socket goroutines, potentially
// concurrently across connections. Within one connection, inbound buffers are
// reported in arrival order; a disconnect may race a receive.
type TransportConnection interface {
	// ConnectionState returns the current lifecycle state.
	ConnectionState() ConnectionState

	// RemoteEndPoints lists the remote addresses of the connection.
	RemoteEndPoints() []net.Addr

	// GetRemoteEndPoint returns a named remote endpoint ("tcp", "udp", ...).
	GetRemoteEndPoint(name string) (net.Addr, error)

	// StartListening begins accepting data on the connection.
	StartListening() error

	// SendMessage hands a buffer to the transport for delivery. Returns false
	// if the transport rejects the send (e.g. already disconnected); on true
	// the transport takes ownership of the buffer handle and disposes it.
	SendMessage(buffer *MessageBuffer, mode SendMode) bool

	// Disconnect requests transport-level disconnection. Returns false if the
	// connection was not in a state that could be disconnected.
	Disconnect() bool

	// SetMessageReceivedHandler installs the inbound buffer callback.
	// A nil handler detaches the slot.
	SetMessageReceivedHandler(h MessageReceivedHandler)

	// SetDisconnectedHandler installs the disconnect callback.
	// A nil handler detaches the slot.
	SetDisconnectedHandler(h DisconnectedHandler)

	// Dispose releases the connection's resources. Idempotent.
	Dispose()
}

// Connector dials a transport connection to a remote server. Injected into
// upstream groups so the socket engine stays outside this package.
type Connector func(host string, port uint16) (TransportConnection, error)
