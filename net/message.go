package net

import (
	"encoding/binary"
	"errors"
)

// Message framing, front to back:
//
//	[flags:1] [pingCode:1, ping messages only] [payload...]
//
// Flag bits. Command messages carry framework control traffic (e.g. the
// assign-ID handshake) and must never be surfaced as user data.
const (
	flagCommandMessage byte = 1 << 0
	flagPingMessage    byte = 1 << 1
)

// _headerSize is the minimum encoded size of a message.
const _headerSize = 1

// ErrMalformedMessage is returned by CreateMessage when the encoded buffer is
// too short to hold the declared header. Callers drop the buffer and keep
// the connection up.
var ErrMalformedMessage = errors.New("message buffer malformed")

// Message is a decoded, reference-counted view over a message buffer. A
// Message handle must be disposed exactly once; cloning produces a new handle
// that extends the lifetime of the backing storage across a dispatch
// boundary without copying payload bytes.
type Message struct {
	store       *bufStore
	mode        SendMode
	isCommand   bool
	isPing      bool
	pingCode    byte
	payloadOff  int
	fromReceive bool
	disposed    bool
}

// CreateMessage decodes a message buffer. The returned Message holds its own
// reference on the backing storage; the caller's buffer handle remains the
// caller's to dispose. A short or inconsistent header yields
// ErrMalformedMessage and no Message.
func CreateMessage(buffer *MessageBuffer, isFromReceive bool) (*Message, error) {
	data := buffer.Bytes()
	if len(data) < _headerSize {
		return nil, ErrMalformedMessage
	}

	flags := data[0]
	off := _headerSize

	m := &Message{
		store:       buffer.store,
		mode:        buffer.mode,
		isCommand:   flags&flagCommandMessage != 0,
		isPing:      flags&flagPingMessage != 0,
		fromReceive: isFromReceive,
	}

	if m.isPing {
		if len(data) < off+1 {
			return nil, ErrMalformedMessage
		}
		m.pingCode = data[off]
		off++
	}
	m.payloadOff = off

	buffer.store.retain()
	return m, nil
}

func newMessage(flags byte, pingCode byte, payload []byte, mode SendMode) *Message {
	size := _headerSize + len(payload)
	isPing := flags&flagPingMessage != 0
	if isPing {
		size++
	}

	data := make([]byte, 0, size)
	data = append(data, flags)
	if isPing {
		data = append(data, pingCode)
	}
	off := len(data)
	data = append(data, payload...)

	return &Message{
		store:      newBufStore(data),
		mode:       mode,
		isCommand:  flags&flagCommandMessage != 0,
		isPing:     isPing,
		pingCode:   pingCode,
		payloadOff: off,
	}
}

// NewMessage builds an application message around the given payload.
func NewMessage(payload []byte) *Message {
	return newMessage(0, 0, payload, Unreliable)
}

// NewCommandMessage builds a framework command message.
func NewCommandMessage(payload []byte) *Message {
	return newMessage(flagCommandMessage, 0, payload, Reliable)
}

// NewPingMessage builds a ping message carrying the given code, used to
// correlate a ping with its acknowledgement for round-trip measurement.
func NewPingMessage(pingCode byte, payload []byte) *Message {
	return newMessage(flagPingMessage, pingCode, payload, Unreliable)
}

// newAssignIdentityMessage builds the reliable command message that tells a
// freshly accepted client its assigned 16-bit ID.
func newAssignIdentityMessage(id uint16) *Message {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, id)
	return NewCommandMessage(payload)
}

// decodeAssignedIdentity reads the client ID out of an assign-ID command
// message payload.
func decodeAssignedIdentity(payload []byte) (uint16, error) {
	if len(payload) < 2 {
		return 0, ErrMalformedMessage
	}
	return binary.BigEndian.Uint16(payload), nil
}

// IsCommandMessage reports whether the message is framework control traffic.
func (m *Message) IsCommandMessage() bool {
	return m.isCommand
}

// IsPingMessage reports whether the message is a ping.
func (m *Message) IsPingMessage() bool {
	return m.isPing
}

// PingCode returns the correlation code of a ping message.
func (m *Message) PingCode() byte {
	return m.pingCode
}

// IsFromReceive reports whether the message was decoded from an inbound
// buffer rather than built locally.
func (m *Message) IsFromReceive() bool {
	return m.fromReceive
}

// Payload returns the application payload. Must not be used after the
// owning handle has been disposed.
func (m *Message) Payload() []byte {
	return m.store.data[m.payloadOff:]
}

// Clone returns a new handle on the same backing storage, extending its
// lifetime until the clone is disposed. Clone must be called before a
// Message escapes the call stack that decoded it.
func (m *Message) Clone() *Message {
	m.store.retain()
	clone := *m
	clone.disposed = false
	return &clone
}

// ToBuffer yields an encoded buffer view for retransmission or queueing. The
// returned handle carries its own reference and must be disposed by its
// consumer.
func (m *Message) ToBuffer() *MessageBuffer {
	m.store.retain()
	return &MessageBuffer{store: m.store, mode: m.mode}
}

// Dispose releases this handle. Safe to call on an already-disposed handle;
// the backing storage is released when the count reaches zero.
func (m *Message) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	m.store.release()
}
