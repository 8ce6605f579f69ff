package net

import (
	"github.com/lcx/embernet/codec"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// EncodeProtoMessage builds an application message whose payload is the
// encoded form of m, using the process-wide payload codec. The returned
// handle is the caller's to dispose.
func EncodeProtoMessage(m protoreflect.ProtoMessage) (*Message, error) {
	payload, err := codec.Encode(m, nil)
	if err != nil {
		return nil, err
	}
	return NewMessage(payload), nil
}

// DecodeProtoMessage parses a message payload into out. The message handle
// must still be live; the payload bytes are not retained past the call.
func DecodeProtoMessage(message *Message, out protoreflect.ProtoMessage) error {
	return codec.Decode(out, message.Payload())
}
