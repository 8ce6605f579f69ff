// Package codec serializes game message payloads carried inside message
// buffers. The wire framing around the payload is owned by the net package;
// this package only handles the payload bytes.
package codec

import (
	"errors"

	"google.golang.org/protobuf/reflect/protoreflect"
)

var (
	errCodecNotInit = errors.New("codec not init")

	_codec Codec = &ProtoCodec{}
)

// Codec encodes and decodes message payloads.
type Codec interface {
	Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error)
	Decode(m protoreflect.ProtoMessage, b []byte) error
}

// Encode appends the encoded payload of m to b.
func Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error) {
	if _codec == nil {
		return nil, errCodecNotInit
	}
	return _codec.Encode(m, b)
}

// Decode parses the payload bytes into m.
func Decode(m protoreflect.ProtoMessage, b []byte) error {
	if _codec == nil {
		return errCodecNotInit
	}
	return _codec.Decode(m, b)
}

// SetCodec replaces the process-wide payload codec.
func SetCodec(c Codec) {
	_codec = c
}
