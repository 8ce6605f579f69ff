package net

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests basic membership: join, lookup, enumerate, leave.
func TestServerGroup_Membership(t *testing.T) {
	gateway := NewDispatchGateway(16)
	group := NewDownstreamServerGroup("game", VisibilityExternal, gateway)
	defer group.Dispose()

	assert.Equal(t, "game", group.Name())
	assert.Equal(t, Downstream, group.Direction())
	assert.Equal(t, VisibilityExternal, group.Visibility())

	require.NoError(t, group.HandleServerJoin(1, "10.0.0.1", 4296, map[string]string{"zone": "eu"}))
	require.NoError(t, group.HandleServerJoin(2, "10.0.0.2", 4296, nil))
	assert.Equal(t, 2, group.Count())

	server, err := group.GetRemoteServer(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), server.ID())
	assert.Equal(t, "10.0.0.1", server.Host())
	assert.Equal(t, uint16(4296), server.Port())

	all := group.GetAllRemoteServers()
	assert.Len(t, all, 2)

	require.NoError(t, group.HandleServerLeave(1))
	assert.Equal(t, 1, group.Count())

	_, err = group.GetRemoteServer(1)
	assert.Error(t, err)
}

// Tests that a duplicate join and an unknown leave are rejected.
func TestServerGroup_JoinLeaveErrors(t *testing.T) {
	gateway := NewDispatchGateway(16)
	group := NewDownstreamServerGroup("game", VisibilityInternal, gateway)
	defer group.Dispose()

	require.NoError(t, group.HandleServerJoin(1, "10.0.0.1", 4296, nil))
	assert.Error(t, group.HandleServerJoin(1, "10.0.0.1", 4296, nil))
	assert.Error(t, group.HandleServerLeave(99))
}

// Tests the joined/left notifications carry the membership details.
func TestServerGroup_JoinLeaveEvents(t *testing.T) {
	gateway := NewDispatchGateway(16)
	group := NewDownstreamServerGroup("game", VisibilityInternal, gateway)
	defer group.Dispose()

	var joined *ServerJoinedArgs
	var left *ServerLeftArgs
	group.OnServerJoined(func(args *ServerJoinedArgs) { joined = args }, true)
	group.OnServerLeft(func(args *ServerLeftArgs) { left = args }, true)

	require.NoError(t, group.HandleServerJoin(5, "10.0.0.5", 4296, map[string]string{"zone": "us"}))
	require.NotNil(t, joined)
	assert.Equal(t, uint16(5), joined.ID)
	assert.Equal(t, "10.0.0.5", joined.Host)
	assert.Equal(t, uint16(4296), joined.Port)
	assert.Equal(t, "us", joined.Properties["zone"])
	assert.Equal(t, uint16(5), joined.Server.ID())

	require.NoError(t, group.HandleServerLeave(5))
	require.NotNil(t, left)
	assert.Equal(t, uint16(5), left.ID)
}

// Tests that concurrent joins, leaves and enumerations never tear the
// mapping: the final count matches the completed operations and every
// enumeration sees a consistent snapshot.
func TestServerGroup_ConcurrentAccess(t *testing.T) {
	gateway := NewDispatchGateway(16)
	group := NewDownstreamServerGroup("game", VisibilityInternal, gateway)
	defer group.Dispose()

	const n = 64
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint16) {
			defer wg.Done()
			if err := group.HandleServerJoin(id, fmt.Sprintf("10.0.0.%d", id), 4296, nil); err != nil {
				t.Errorf("join %d: %v", id, err)
			}
		}(uint16(i))

		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, s := range group.GetAllRemoteServers() {
				if s == nil {
					t.Error("enumeration returned nil member")
				}
			}
			_ = group.Count()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, group.Count())

	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func(id uint16) {
			defer wg.Done()
			if err := group.HandleServerLeave(id); err != nil {
				t.Errorf("leave %d: %v", id, err)
			}
		}(uint16(i))
	}
	wg.Wait()
	assert.Equal(t, n/2, group.Count())
}

// Tests that group disposal disposes every member exactly once and is
// itself idempotent.
func TestServerGroup_DisposeMembers(t *testing.T) {
	gateway := NewDispatchGateway(16)
	group := NewDownstreamServerGroup("game", VisibilityInternal, gateway)

	require.NoError(t, group.HandleServerJoin(1, "10.0.0.1", 4296, nil))
	require.NoError(t, group.HandleServerJoin(2, "10.0.0.2", 4296, nil))

	server, err := group.GetRemoteServer(1)
	require.NoError(t, err)

	local, _ := NewPipeConnection()
	pending := NewPendingServerConnection(local)
	require.NoError(t, local.StartListening())
	require.NoError(t, group.SetConnection(1, pending))

	group.Dispose()
	assert.NotPanics(t, group.Dispose)
	assert.Equal(t, 0, group.Count())
	assert.Equal(t, StateDisconnected, server.ConnectionState())
}
