package net

import (
	stdnet "net"
	"sync/atomic"
	"time"

	"github.com/lcx/embernet/log"
	"github.com/lcx/embernet/metrics"
)

// ClientRegistry is the owner of connected clients. The client reports its
// own demise through it: localDisconnect is true for locally requested
// disconnections (err is nil), false for transport-reported drops and
// listening-start failures.
type ClientRegistry interface {
	HandleDisconnection(client *Client, localDisconnect bool, err error)
}

// Client represents one connected game client. It owns the transport
// connection, converts inbound buffers into messages, and delivers them to
// subscribers through the dispatch gateway. All counters are atomic and
// monotonically increasing.
type Client struct {
	// MessageReceived fires for every application message decoded from the
	// client. The framework disposes the arguments and the message clone
	// after the subscriber list has run.
	MessageReceived Event[*MessageReceivedArgs]

	id             uint16
	conn           TransportConnection
	registry       ClientRegistry
	gateway        *DispatchGateway
	logger         *log.ClientLogger
	rtt            *RoundTripTime
	recvLimiter    *TokenRecvLimiter
	connectionTime time.Time

	messagesSent     atomic.Uint64
	messagesPushed   atomic.Uint64
	messagesReceived atomic.Uint64

	disposed atomic.Bool
}

// NewClient wraps an accepted transport connection. The ID must already be
// allocated by the registry; it is immutable for the life of the client.
// recvLimiter may be nil to accept inbound messages unthrottled.
func NewClient(id uint16, conn TransportConnection, registry ClientRegistry,
	gateway *DispatchGateway, logCfg *log.LogCfg, recvLimiter *TokenRecvLimiter) *Client {
	c := &Client{
		id:             id,
		conn:           conn,
		registry:       registry,
		gateway:        gateway,
		logger:         log.NewClientLogger(logCfg, id),
		rtt:            NewRoundTripTime(),
		recvLimiter:    recvLimiter,
		connectionTime: time.Now(),
	}

	conn.SetMessageReceivedHandler(c.handleIncomingMessageBuffer)
	conn.SetDisconnectedHandler(c.handleTransportDisconnected)
	return c
}

// ID returns the client's assigned identity.
func (c *Client) ID() uint16 {
	return c.id
}

// ConnectionState returns the transport connection state.
func (c *Client) ConnectionState() ConnectionState {
	return c.conn.ConnectionState()
}

// ConnectionTime returns when the client was accepted.
func (c *Client) ConnectionTime() time.Time {
	return c.connectionTime
}

// MessagesSent returns the number of messages successfully sent in response
// to this client's traffic.
func (c *Client) MessagesSent() uint64 {
	return c.messagesSent.Load()
}

// MessagesPushed returns the number of messages pushed to this client by the
// server on its own initiative.
func (c *Client) MessagesPushed() uint64 {
	return c.messagesPushed.Load()
}

// MessagesReceived returns the number of inbound buffers seen, including
// ones that were dropped as malformed or rate-limited.
func (c *Client) MessagesReceived() uint64 {
	return c.messagesReceived.Load()
}

// RemoteEndPoints lists the client's remote addresses.
func (c *Client) RemoteEndPoints() []stdnet.Addr {
	return c.conn.RemoteEndPoints()
}

// GetRemoteEndPoint returns a named remote endpoint of the client.
func (c *Client) GetRemoteEndPoint(name string) (stdnet.Addr, error) {
	return c.conn.GetRemoteEndPoint(name)
}

// Rtt returns the client's round-trip tracker.
func (c *Client) Rtt() *RoundTripTime {
	return c.rtt
}

// StartListening begins accepting data on the connection and immediately
// sends the client its assigned ID as a reliable command message, before any
// other outbound traffic. A transport error is escalated to an abnormal
// disconnection so the client is never left half-initialized.
func (c *Client) StartListening() error {
	if err := c.conn.StartListening(); err != nil {
		c.logger.Error().Err(err).Msg("failed to start listening, disconnecting client")
		metrics.IncrCounterWithGroup("net", "client_listen_failures_total", 1)
		c.registry.HandleDisconnection(c, false, err)
		return err
	}

	idMsg := newAssignIdentityMessage(c.id)
	defer idMsg.Dispose()
	if !c.sendMessageInternal(idMsg, Reliable, &c.messagesSent) {
		c.logger.Warn().Msg("failed to send identity assignment")
	}
	return nil
}

// SendMessage serializes and forwards a message in response to client
// traffic. Returns false if the transport rejects the send, e.g. when the
// connection has already dropped.
func (c *Client) SendMessage(message *Message, mode SendMode) bool {
	return c.sendMessageInternal(message, mode, &c.messagesSent)
}

// PushMessage forwards a server-initiated message to the client. Identical
// to SendMessage apart from the counter it increments.
func (c *Client) PushMessage(message *Message, mode SendMode) bool {
	return c.sendMessageInternal(message, mode, &c.messagesPushed)
}

func (c *Client) sendMessageInternal(message *Message, mode SendMode, counter *atomic.Uint64) bool {
	buffer := message.ToBuffer()
	if !c.conn.SendMessage(buffer, mode) {
		buffer.Dispose()
		return false
	}

	counter.Add(1)
	metrics.IncrCounterWithGroup("net", "client_messages_out_total", 1)
	if message.IsPingMessage() {
		c.rtt.RecordOutboundPing(message.PingCode())
	}
	return true
}

// Disconnect requests transport-level disconnection. On success the owning
// registry is told this was a local, error-free disconnection.
func (c *Client) Disconnect() bool {
	if !c.conn.Disconnect() {
		return false
	}
	c.registry.HandleDisconnection(c, true, nil)
	return true
}

// handleIncomingMessageBuffer is the transport's inbound entry point. It
// runs on a socket goroutine; anything plugin-visible goes through the
// gateway.
func (c *Client) handleIncomingMessageBuffer(buffer *MessageBuffer, mode SendMode) {
	c.messagesReceived.Add(1)
	metrics.IncrCounterWithGroup("net", "client_messages_in_total", 1)

	if c.recvLimiter != nil && !c.recvLimiter.Allow() {
		metrics.IncrCounterWithGroup("net", "client_messages_throttled_total", 1)
		c.logger.Warn().Msg("inbound message dropped by receive limiter")
		buffer.Dispose()
		return
	}

	message, err := CreateMessage(buffer, true)
	buffer.Dispose()
	if err != nil {
		metrics.IncrCounterWithGroup("net", "client_messages_malformed_total", 1)
		c.logger.Debug().Err(err).Msg("dropped malformed message")
		return
	}

	c.handleMessage(message, mode)
}

// handleMessage delivers a decoded message. The message handle is disposed
// before returning on every path; delivery holds its own clone.
func (c *Client) handleMessage(message *Message, mode SendMode) {
	defer message.Dispose()

	if message.IsPingMessage() {
		if rtt, ok := c.rtt.RecordInboundPing(message.PingCode()); ok {
			metrics.ReportWithGroup("net", "client_rtt_seconds", metrics.PolicyStopwatch,
				metrics.Value(rtt.Seconds()))
			c.logger.Debug().Dur("rtt", rtt).Msg("ping acknowledged")
			return
		}
	}

	if message.IsCommandMessage() {
		c.logger.Warn().Msg("unexpected command message from client, dropped")
		metrics.IncrCounterWithGroup("net", "client_unexpected_commands_total", 1)
		return
	}

	clone := message.Clone()
	args := &MessageReceivedArgs{Client: c, Message: clone, SendMode: mode}
	c.MessageReceived.raise(c.gateway, "MessageReceived", args, func() {
		args.Dispose()
		clone.Dispose()
	})
}

func (c *Client) handleTransportDisconnected(err error) {
	c.logger.Info().Err(err).Msg("client connection dropped")
	c.registry.HandleDisconnection(c, false, err)
}

// Dispose releases the client and its owned connection exactly once.
// Valid from any connection state.
func (c *Client) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	c.conn.SetMessageReceivedHandler(nil)
	c.conn.SetDisconnectedHandler(nil)
	c.conn.Dispose()
}
