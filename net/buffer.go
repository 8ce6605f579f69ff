package net

import "sync/atomic"

// bufStore is the shared, reference-counted backing storage for a message
// payload. Handles (MessageBuffer, Message) retain and release the store;
// the byte slice is dropped when the last handle releases it.
type bufStore struct {
	data      []byte
	refs      atomic.Int32
	onRelease func()
}

func newBufStore(data []byte) *bufStore {
	s := &bufStore{data: data}
	s.refs.Store(1)
	return s
}

func (s *bufStore) retain() {
	s.refs.Add(1)
}

func (s *bufStore) release() {
	if s.refs.Add(-1) == 0 {
		s.data = nil
		if s.onRelease != nil {
			s.onRelease()
		}
	}
}

// MessageBuffer is a handle to an encoded payload plus its send-mode tag.
// The payload is immutable once produced; handles sharing the same storage
// coordinate its lifetime through the reference count.
type MessageBuffer struct {
	store    *bufStore
	mode     SendMode
	disposed atomic.Bool
}

// NewMessageBuffer wraps an encoded payload. Ownership of the slice
// transfers to the buffer; the caller must not mutate it afterwards.
func NewMessageBuffer(data []byte, mode SendMode) *MessageBuffer {
	return &MessageBuffer{store: newBufStore(data), mode: mode}
}

// Bytes returns the encoded payload. Valid until the last handle on the
// backing storage is disposed.
func (b *MessageBuffer) Bytes() []byte {
	return b.store.data
}

// Mode returns the send-mode tag.
func (b *MessageBuffer) Mode() SendMode {
	return b.mode
}

// Clone returns a new handle sharing the backing storage.
func (b *MessageBuffer) Clone() *MessageBuffer {
	b.store.retain()
	return &MessageBuffer{store: b.store, mode: b.mode}
}

// Dispose releases this handle. Calling Dispose more than once on the same
// handle is a no-op; the backing storage is released when the last
// outstanding handle is disposed.
func (b *MessageBuffer) Dispose() {
	if b.disposed.CompareAndSwap(false, true) {
		b.store.release()
	}
}
