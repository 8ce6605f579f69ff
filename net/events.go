package net

import (
	"sync"
	"sync/atomic"
)

// subscriber pairs a callback with its declared concurrency capability.
// Thread-safe subscribers are invoked inline on the transport goroutine;
// all others are marshalled onto the gateway's canonical worker.
type subscriber[T any] struct {
	handler    func(T)
	threadSafe bool
}

// Event is a multicast notification point. Raising an event partitions the
// subscriber list into an inline batch and a marshalled batch, delivers each
// batch under one recover, and runs the completion hook only after both
// batches have finished, so argument and message lifetimes are anchored to
// the slowest delivery path.
//
// Each batch shares a single recover: a panicking subscriber suppresses the
// later subscribers of its own batch. Invoking every subscriber
// independently would be stricter but changes observable semantics, so the
// shared-recover behavior is kept deliberately.
type Event[T any] struct {
	mu   sync.RWMutex
	subs []subscriber[T]
}

// Subscribe registers a handler. threadSafe declares that the handler may be
// invoked concurrently from transport goroutines; handlers that do not opt
// in are only ever invoked from the gateway's canonical worker.
func (e *Event[T]) Subscribe(handler func(T), threadSafe bool) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	e.subs = append(e.subs, subscriber[T]{handler: handler, threadSafe: threadSafe})
	e.mu.Unlock()
}

// raise delivers args to every subscriber via the gateway. done runs exactly
// once, after the last batch completes (or immediately when there are no
// subscribers); callers use it to dispose the arguments and any clone
// anchoring them.
func (e *Event[T]) raise(g *DispatchGateway, name string, args T, done func()) {
	e.mu.RLock()
	var inline, deferred []func(T)
	for _, s := range e.subs {
		if s.threadSafe {
			inline = append(inline, s.handler)
		} else {
			deferred = append(deferred, s.handler)
		}
	}
	e.mu.RUnlock()

	batches := int32(0)
	if len(inline) > 0 {
		batches++
	}
	if len(deferred) > 0 {
		batches++
	}
	if batches == 0 {
		if done != nil {
			done()
		}
		return
	}

	var pending atomic.Int32
	pending.Store(batches)
	finish := func() {
		if pending.Add(-1) == 0 && done != nil {
			done()
		}
	}

	if len(deferred) > 0 {
		g.Dispatch(false, func() {
			invokeIsolated(name, func() {
				for _, h := range deferred {
					h(args)
				}
			})
			finish()
		})
	}
	if len(inline) > 0 {
		invokeIsolated(name, func() {
			for _, h := range inline {
				h(args)
			}
		})
		finish()
	}
}

// MessageReceivedArgs carries a client message delivery. The framework owns
// the args and the message clone inside it; subscribers must not dispose
// either, but may Clone the message to extend its lifetime.
type MessageReceivedArgs struct {
	Client   *Client
	Message  *Message
	SendMode SendMode
}

// Dispose releases the arguments value. Called by the framework after the
// subscriber list has run.
func (a *MessageReceivedArgs) Dispose() {}

// ServerMessageReceivedArgs carries a message delivery from a remote server.
type ServerMessageReceivedArgs struct {
	Server   RemoteServer
	Message  *Message
	SendMode SendMode
}

// Dispose releases the arguments value.
func (a *ServerMessageReceivedArgs) Dispose() {}

// ServerConnectedArgs reports a remote server link coming up.
type ServerConnectedArgs struct {
	Server RemoteServer
}

// Dispose releases the arguments value.
func (a *ServerConnectedArgs) Dispose() {}

// ServerDisconnectedArgs reports a remote server link dropping. Err is the
// transport-reported reason, nil for locally requested disconnects.
type ServerDisconnectedArgs struct {
	Server RemoteServer
	Err    error
}

// Dispose releases the arguments value.
func (a *ServerDisconnectedArgs) Dispose() {}

// ServerJoinedArgs reports a peer joining a server group.
type ServerJoinedArgs struct {
	ID         uint16
	Host       string
	Port       uint16
	Properties map[string]string
	Server     RemoteServer
}

// Dispose releases the arguments value.
func (a *ServerJoinedArgs) Dispose() {}

// ServerLeftArgs reports a peer leaving a server group.
type ServerLeftArgs struct {
	ID     uint16
	Server RemoteServer
}

// Dispose releases the arguments value.
func (a *ServerLeftArgs) Dispose() {}
