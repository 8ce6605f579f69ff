package net

import (
	"fmt"
	"sync"

	"github.com/lcx/embernet/log"
	"github.com/lcx/embernet/metrics"
)

// ServerVisibility describes whether a group's members are reachable by game
// clients or only by other servers.
type ServerVisibility uint8

const (
	// VisibilityInternal members only talk to other servers.
	VisibilityInternal ServerVisibility = iota
	// VisibilityExternal members accept game client connections.
	VisibilityExternal
)

// String returns the name of the visibility.
func (v ServerVisibility) String() string {
	switch v {
	case VisibilityInternal:
		return "Internal"
	case VisibilityExternal:
		return "External"
	}
	return "Unknown"
}

// ServerGroup is a thread-safe registry of remote servers sharing a
// direction and visibility policy. Membership is driven by the cluster
// membership protocol through HandleServerJoin and HandleServerLeave;
// lookups by ID for a member that was never added (or already left) are a
// programming-contract violation surfaced as an error.
type ServerGroup interface {
	// Name returns the human-readable group name.
	Name() string

	// Direction reports which side initiates connections to members.
	Direction() ServerDirection

	// Visibility reports the group's visibility policy.
	Visibility() ServerVisibility

	// Count returns the number of current members.
	Count() int

	// GetRemoteServer returns the member with the given ID.
	GetRemoteServer(id uint16) (RemoteServer, error)

	// GetAllRemoteServers returns a snapshot of the current members.
	GetAllRemoteServers() []RemoteServer

	// HandleServerJoin adds a peer the membership protocol discovered.
	HandleServerJoin(id uint16, host string, port uint16, properties map[string]string) error

	// HandleServerLeave removes a peer the membership protocol lost.
	HandleServerLeave(id uint16) error

	// OnServerJoined subscribes to membership additions.
	OnServerJoined(handler func(*ServerJoinedArgs), threadSafe bool)

	// OnServerLeft subscribes to membership removals.
	OnServerLeft(handler func(*ServerLeftArgs), threadSafe bool)

	// Dispose disposes every current member exactly once. The group must
	// not be used afterwards.
	Dispose()
}

// serverGroupCore implements the registry shared by both group kinds. A
// single mutex covers every read and write of the mapping so no enumeration
// can observe a partially applied join or leave.
type serverGroupCore struct {
	serverJoined Event[*ServerJoinedArgs]
	serverLeft   Event[*ServerLeftArgs]

	name       string
	direction  ServerDirection
	visibility ServerVisibility
	gateway    *DispatchGateway

	mu       sync.Mutex
	servers  map[uint16]RemoteServer
	disposed bool
}

func newServerGroupCore(name string, direction ServerDirection,
	visibility ServerVisibility, gateway *DispatchGateway) serverGroupCore {
	return serverGroupCore{
		name:       name,
		direction:  direction,
		visibility: visibility,
		gateway:    gateway,
		servers:    make(map[uint16]RemoteServer),
	}
}

func (g *serverGroupCore) Name() string {
	return g.name
}

func (g *serverGroupCore) Direction() ServerDirection {
	return g.direction
}

func (g *serverGroupCore) Visibility() ServerVisibility {
	return g.visibility
}

func (g *serverGroupCore) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.servers)
}

func (g *serverGroupCore) GetRemoteServer(id uint16) (RemoteServer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.servers[id]
	if !ok {
		return nil, fmt.Errorf("no server with ID %d in group %s", id, g.name)
	}
	return s, nil
}

func (g *serverGroupCore) GetAllRemoteServers() []RemoteServer {
	g.mu.Lock()
	defer g.mu.Unlock()
	servers := make([]RemoteServer, 0, len(g.servers))
	for _, s := range g.servers {
		servers = append(servers, s)
	}
	return servers
}

func (g *serverGroupCore) OnServerJoined(handler func(*ServerJoinedArgs), threadSafe bool) {
	g.serverJoined.Subscribe(handler, threadSafe)
}

func (g *serverGroupCore) OnServerLeft(handler func(*ServerLeftArgs), threadSafe bool) {
	g.serverLeft.Subscribe(handler, threadSafe)
}

// addServer inserts a member under the group lock and raises the joined
// event through the gateway.
func (g *serverGroupCore) addServer(server RemoteServer, host string, port uint16,
	properties map[string]string) error {
	g.mu.Lock()
	if _, exists := g.servers[server.ID()]; exists {
		g.mu.Unlock()
		return fmt.Errorf("server %d already in group %s", server.ID(), g.name)
	}
	g.servers[server.ID()] = server
	count := len(g.servers)
	g.mu.Unlock()

	metrics.UpdateGaugeWithGroup("net", "group_members", metrics.Value(count))
	log.Info().Str("group", g.name).Uint16("serverID", server.ID()).
		Str("host", host).Msg("server joined group")

	args := &ServerJoinedArgs{
		ID:         server.ID(),
		Host:       host,
		Port:       port,
		Properties: properties,
		Server:     server,
	}
	g.serverJoined.raise(g.gateway, "ServerJoined", args, args.Dispose)
	return nil
}

// removeServer deletes a member under the group lock, raises the left event
// and disposes the member once the subscriber list has run.
func (g *serverGroupCore) removeServer(id uint16) error {
	g.mu.Lock()
	server, ok := g.servers[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("no server with ID %d in group %s", id, g.name)
	}
	delete(g.servers, id)
	count := len(g.servers)
	g.mu.Unlock()

	metrics.UpdateGaugeWithGroup("net", "group_members", metrics.Value(count))
	log.Info().Str("group", g.name).Uint16("serverID", id).Msg("server left group")

	args := &ServerLeftArgs{ID: id, Server: server}
	g.serverLeft.raise(g.gateway, "ServerLeft", args, func() {
		args.Dispose()
		server.Dispose()
	})
	return nil
}

// handleServerDisconnection is the member's bookkeeping hook on a link drop.
// Membership is not mutated; the peer stays in the group awaiting
// reconnection until the membership protocol reports a leave.
func (g *serverGroupCore) handleServerDisconnection(server RemoteServer, err error) {
	metrics.IncrCounterWithGroup("net", "server_disconnections_total", 1)
	log.Warn().Str("group", g.name).Uint16("serverID", server.ID()).
		Err(err).Msg("group member connection lost")
}

func (g *serverGroupCore) Dispose() {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	g.disposed = true
	servers := g.servers
	g.servers = make(map[uint16]RemoteServer)
	g.mu.Unlock()

	for _, s := range servers {
		s.Dispose()
	}
}

// DownstreamServerGroup holds peers that connect to us. A join only records
// the peer; its link arrives later through the listener and is promoted via
// SetConnection.
type DownstreamServerGroup struct {
	serverGroupCore
}

// NewDownstreamServerGroup creates an empty downstream group.
func NewDownstreamServerGroup(name string, visibility ServerVisibility,
	gateway *DispatchGateway) *DownstreamServerGroup {
	return &DownstreamServerGroup{
		serverGroupCore: newServerGroupCore(name, Downstream, visibility, gateway),
	}
}

// HandleServerJoin records a downstream peer awaiting its connection.
func (g *DownstreamServerGroup) HandleServerJoin(id uint16, host string, port uint16,
	properties map[string]string) error {
	server := NewDownstreamRemoteServer(id, host, port, &g.serverGroupCore, g.gateway)
	return g.addServer(server, host, port, properties)
}

// HandleServerLeave removes a downstream peer.
func (g *DownstreamServerGroup) HandleServerLeave(id uint16) error {
	return g.removeServer(id)
}

// SetConnection promotes a pending connection onto the member with the given
// ID, draining its queued backlog in arrival order.
func (g *DownstreamServerGroup) SetConnection(id uint16, pending *PendingServerConnection) error {
	server, err := g.GetRemoteServer(id)
	if err != nil {
		return err
	}
	downstream, ok := server.(*DownstreamRemoteServer)
	if !ok {
		return fmt.Errorf("server %d in group %s is not downstream", id, g.name)
	}
	downstream.SetConnection(pending)
	return nil
}

// UpstreamServerGroup holds peers we connect out to. A join dials the peer
// immediately; a dial failure is logged but does not fail the join, since
// membership and link liveness are tracked independently.
type UpstreamServerGroup struct {
	serverGroupCore
	connector Connector
}

// NewUpstreamServerGroup creates an empty upstream group dialing through the
// given connector.
func NewUpstreamServerGroup(name string, visibility ServerVisibility,
	gateway *DispatchGateway, connector Connector) *UpstreamServerGroup {
	return &UpstreamServerGroup{
		serverGroupCore: newServerGroupCore(name, Upstream, visibility, gateway),
		connector:       connector,
	}
}

// HandleServerJoin records an upstream peer and dials it.
func (g *UpstreamServerGroup) HandleServerJoin(id uint16, host string, port uint16,
	properties map[string]string) error {
	server := NewUpstreamRemoteServer(id, host, port, &g.serverGroupCore, g.gateway, g.connector)
	if err := g.addServer(server, host, port, properties); err != nil {
		return err
	}

	if err := server.Connect(); err != nil {
		log.Warn().Str("group", g.name).Uint16("serverID", id).
			Err(err).Msg("failed to connect to joined server")
	}
	return nil
}

// HandleServerLeave removes an upstream peer.
func (g *UpstreamServerGroup) HandleServerLeave(id uint16) error {
	return g.removeServer(id)
}
