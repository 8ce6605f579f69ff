package net

import "sync"

type queuedDelivery struct {
	buffer *MessageBuffer
	mode   SendMode
}

// PendingServerConnection holds a server-to-server link during the interval
// between transport accept and group-membership promotion. The link may
// start delivering data before the peer is a recognized group member, so
// inbound buffers are queued here and replayed, in arrival order, when the
// connection is promoted onto a remote server.
type PendingServerConnection struct {
	mu      sync.Mutex
	conn    TransportConnection
	queue   []queuedDelivery
	drained bool
}

// NewPendingServerConnection wraps a freshly accepted connection and starts
// queueing its inbound buffers.
func NewPendingServerConnection(conn TransportConnection) *PendingServerConnection {
	p := &PendingServerConnection{conn: conn}
	conn.SetMessageReceivedHandler(p.queueDelivery)
	return p
}

// Connection returns the underlying transport connection.
func (p *PendingServerConnection) Connection() TransportConnection {
	return p.conn
}

// QueuedCount returns the number of deliveries waiting for promotion.
func (p *PendingServerConnection) QueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *PendingServerConnection) queueDelivery(buffer *MessageBuffer, mode SendMode) {
	p.mu.Lock()
	if p.drained {
		// Promotion already replaced the handler; a straggler delivered to
		// the old slot is dropped rather than reordered.
		p.mu.Unlock()
		buffer.Dispose()
		return
	}
	p.queue = append(p.queue, queuedDelivery{buffer: buffer, mode: mode})
	p.mu.Unlock()
}

// drain hands every queued delivery to handler in arrival order, exactly
// once. Ownership of each buffer handle passes to the handler. Subsequent
// calls are no-ops.
func (p *PendingServerConnection) drain(handler MessageReceivedHandler) {
	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		return
	}
	p.drained = true
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, d := range queue {
		handler(d.buffer, d.mode)
	}
}
