package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Tests that a typed payload survives the trip through the wire framing:
// encode, serialize to a buffer, decode the buffer as a received message,
// parse the payload back out.
func TestProtoPayloadRoundTrip(t *testing.T) {
	msg, err := EncodeProtoMessage(wrapperspb.String("enter-zone"))
	require.NoError(t, err)

	buffer := msg.ToBuffer()
	msg.Dispose()

	received, err := CreateMessage(buffer, true)
	buffer.Dispose()
	require.NoError(t, err)
	defer received.Dispose()

	assert.False(t, received.IsCommandMessage())

	out := &wrapperspb.StringValue{}
	require.NoError(t, DecodeProtoMessage(received, out))
	assert.Equal(t, "enter-zone", out.GetValue())
}
