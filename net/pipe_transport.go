package net

import (
	"fmt"
	"io"
	stdnet "net"
	"sync"
	"sync/atomic"
)

// pipeAddr is the synthetic endpoint address of an in-memory connection.
type pipeAddr struct {
	name string
}

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return a.name }

// PipeConnection is an in-memory transport connection. Two ends are created
// as a linked pair; a send on one end is delivered synchronously to the
// other end's message handler. Inbound deliveries arriving before
// StartListening are buffered and flushed, in order, when listening begins.
//
// It backs same-process server links and gives tests a real transport
// without sockets.
type PipeConnection struct {
	mu          sync.Mutex
	peer        *PipeConnection
	msgHandler  MessageReceivedHandler
	discHandler DisconnectedHandler
	backlog     []queuedDelivery
	listening   bool

	state    atomic.Int32
	disposed atomic.Bool
	addr     pipeAddr
}

// NewPipeConnection creates a connected pair of in-memory ends.
func NewPipeConnection() (*PipeConnection, *PipeConnection) {
	a := &PipeConnection{addr: pipeAddr{name: "pipe:a"}}
	b := &PipeConnection{addr: pipeAddr{name: "pipe:b"}}
	a.peer, b.peer = b, a
	a.state.Store(int32(StateConnected))
	b.state.Store(int32(StateConnected))
	return a, b
}

// ConnectionState returns the current lifecycle state of this end.
func (p *PipeConnection) ConnectionState() ConnectionState {
	return ConnectionState(p.state.Load())
}

// RemoteEndPoints lists the peer's synthetic address.
func (p *PipeConnection) RemoteEndPoints() []stdnet.Addr {
	return []stdnet.Addr{p.peer.addr}
}

// GetRemoteEndPoint returns the peer address for the "pipe" endpoint name.
func (p *PipeConnection) GetRemoteEndPoint(name string) (stdnet.Addr, error) {
	if name != "pipe" {
		return nil, fmt.Errorf("no endpoint named %q", name)
	}
	return p.peer.addr, nil
}

// StartListening flushes any buffered deliveries to the message handler and
// begins delivering inbound buffers inline.
func (p *PipeConnection) StartListening() error {
	if p.ConnectionState() != StateConnected {
		return fmt.Errorf("cannot listen in state %s", p.ConnectionState())
	}

	p.mu.Lock()
	p.listening = true
	backlog := p.backlog
	p.backlog = nil
	handler := p.msgHandler
	p.mu.Unlock()

	for _, d := range backlog {
		if handler != nil {
			handler(d.buffer, d.mode)
		} else {
			d.buffer.Dispose()
		}
	}
	return nil
}

// SendMessage delivers the buffer to the peer end. Ownership of the handle
// passes to the peer's receive path.
func (p *PipeConnection) SendMessage(buffer *MessageBuffer, mode SendMode) bool {
	if p.ConnectionState() != StateConnected {
		return false
	}
	p.peer.receive(buffer, mode)
	return true
}

func (p *PipeConnection) receive(buffer *MessageBuffer, mode SendMode) {
	p.mu.Lock()
	if !p.listening {
		p.backlog = append(p.backlog, queuedDelivery{buffer: buffer, mode: mode})
		p.mu.Unlock()
		return
	}
	handler := p.msgHandler
	p.mu.Unlock()

	// Delivered outside the lock so a handler may send a reply inline.
	if handler != nil {
		handler(buffer, mode)
	} else {
		buffer.Dispose()
	}
}

// Disconnect closes both ends. The peer's disconnect handler fires with
// io.EOF; the local end gets no callback since the disconnect was requested
// locally.
func (p *PipeConnection) Disconnect() bool {
	if !p.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return false
	}
	p.peer.remoteClosed(io.EOF)
	return true
}

func (p *PipeConnection) remoteClosed(err error) {
	if !p.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return
	}
	p.mu.Lock()
	handler := p.discHandler
	p.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// SetMessageReceivedHandler installs the inbound buffer callback.
func (p *PipeConnection) SetMessageReceivedHandler(h MessageReceivedHandler) {
	p.mu.Lock()
	p.msgHandler = h
	p.mu.Unlock()
}

// SetDisconnectedHandler installs the disconnect callback.
func (p *PipeConnection) SetDisconnectedHandler(h DisconnectedHandler) {
	p.mu.Lock()
	p.discHandler = h
	p.mu.Unlock()
}

// Dispose tears the connection down and drops any undelivered backlog.
func (p *PipeConnection) Dispose() {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	if p.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		p.peer.remoteClosed(io.EOF)
	}

	p.mu.Lock()
	backlog := p.backlog
	p.backlog = nil
	p.msgHandler = nil
	p.discHandler = nil
	p.mu.Unlock()

	for _, d := range backlog {
		d.buffer.Dispose()
	}
}
