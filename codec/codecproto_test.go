package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Tests the default protobuf codec round-trip and the append contract of
// Encode.
func TestProtoCodec_RoundTrip(t *testing.T) {
	prefix := []byte{0xde, 0xad}
	b, err := Encode(wrapperspb.String("hello"), prefix)
	require.NoError(t, err)
	require.Greater(t, len(b), len(prefix))
	assert.Equal(t, prefix, b[:2])

	out := &wrapperspb.StringValue{}
	require.NoError(t, Decode(out, b[2:]))
	assert.Equal(t, "hello", out.GetValue())
}

// Tests codec replacement and the uninitialized guard.
func TestSetCodec(t *testing.T) {
	orig := _codec
	defer SetCodec(orig)

	SetCodec(nil)
	_, err := Encode(wrapperspb.String("x"), nil)
	assert.ErrorIs(t, err, errCodecNotInit)
	assert.ErrorIs(t, Decode(&wrapperspb.StringValue{}, nil), errCodecNotInit)
}
