package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests packing and unpacking server IDs.
func TestServerID_PackUnpack(t *testing.T) {
	id, err := PackServerID(3, 125)
	require.NoError(t, err)
	assert.Equal(t, 3, GetGroupIDByServerID(id))
	assert.Equal(t, 125, GetInstIDByServerID(id))
	assert.Equal(t, "3.125", GetStringByServerID(id))

	_, err = PackServerID(16, 1)
	assert.Error(t, err)
	_, err = PackServerID(0, 0)
	assert.Error(t, err)
	_, err = PackServerID(0, 4096)
	assert.Error(t, err)
}

// Tests parsing the "group.instance" string form.
func TestGetServerIDByStr(t *testing.T) {
	id, err := GetServerIDByStr("2.17")
	require.NoError(t, err)
	assert.Equal(t, 2, GetGroupIDByServerID(id))
	assert.Equal(t, 17, GetInstIDByServerID(id))

	_, err = GetServerIDByStr("not-an-id")
	assert.Error(t, err)
	_, err = GetServerIDByStr("2")
	assert.Error(t, err)
}

// Tests host:port parsing and formatting.
func TestServerAddr(t *testing.T) {
	host, port, err := ParseServerAddr("10.0.0.1:4296")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", host)
	assert.Equal(t, uint16(4296), port)

	assert.Equal(t, "10.0.0.1:4296", FormatServerAddr("10.0.0.1", 4296))

	_, _, err = ParseServerAddr("no-port")
	assert.Error(t, err)
	_, _, err = ParseServerAddr("host:99999")
	assert.Error(t, err)
	_, _, err = ParseServerAddr(":4296")
	assert.Error(t, err)
}
