package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ProtoCodec is the default payload codec, backed by protobuf binary
// encoding.
type ProtoCodec struct{}

// Encode appends the protobuf encoding of m to b.
func (c *ProtoCodec) Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error) {
	return proto.MarshalOptions{}.MarshalAppend(b, m)
}

// Decode parses the protobuf payload into m.
func (c *ProtoCodec) Decode(m protoreflect.ProtoMessage, b []byte) error {
	return proto.Unmarshal(b, m)
}
