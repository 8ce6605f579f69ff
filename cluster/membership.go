package cluster

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/lcx/embernet/config"
	"github.com/lcx/embernet/log"
	"github.com/lcx/embernet/metrics"
	"github.com/lcx/embernet/utils"
)

// _serverIDMetaKey is the Consul service meta key carrying the peer's server
// ID in its "group.instance" string form.
const _serverIDMetaKey = "serverID"

// ServerRegistry receives membership changes. Satisfied by the server groups
// in the net package.
type ServerRegistry interface {
	HandleServerJoin(id uint16, host string, port uint16, properties map[string]string) error
	HandleServerLeave(id uint16) error
}

type serverInstance struct {
	host       string
	port       uint16
	properties map[string]string
}

// MembershipWatcher long-polls the Consul health catalog for one service and
// converts catalog deltas into HandleServerJoin/HandleServerLeave calls on
// the registry. Only passing instances count as members, so a failing health
// check produces a leave without deregistration.
type MembershipWatcher struct {
	client   *api.Client
	registry ServerRegistry
	cfg      *ClusterCfg

	mu    sync.Mutex
	known map[uint16]serverInstance

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewMembershipWatcher creates a watcher for the configured service.
func NewMembershipWatcher(cfg *ClusterCfg, registry ServerRegistry) (*MembershipWatcher, error) {
	if cfg == nil {
		return nil, errors.New("cfg cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}

	client, err := api.NewClient(&api.Config{
		Address:    cfg.ConsulAddr,
		Datacenter: cfg.Datacenter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &MembershipWatcher{
		client:   client,
		registry: registry,
		cfg:      cfg,
		known:    make(map[uint16]serverInstance),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// NewMembershipWatcherWithConfigManager creates a watcher configured from
// the config manager.
func NewMembershipWatcherWithConfigManager(configManager config.ConfigManager,
	registry ServerRegistry) (*MembershipWatcher, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}

	cfg := &ClusterCfg{}
	if err := configManager.LoadConfig("cluster", cfg); err != nil {
		return nil, fmt.Errorf("failed to load cluster config: %w", err)
	}
	return NewMembershipWatcher(cfg, registry)
}

// Start launches the watch loop. Calling Start more than once is an error.
func (w *MembershipWatcher) Start() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("membership watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	go w.watch()
	return nil
}

// Stop halts the watch loop and waits for it to exit. Known members are not
// torn down; the owning groups decide their fate.
func (w *MembershipWatcher) Stop() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	close(w.stopCh)

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.doneCh
	}
}

func (w *MembershipWatcher) watch() {
	defer close(w.doneCh)

	var lastIndex uint64
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		entries, meta, err := w.client.Health().Service(w.cfg.Service, "", true, &api.QueryOptions{
			WaitIndex: lastIndex,
			WaitTime:  w.cfg.waitTime(),
		})
		if err != nil {
			metrics.IncrCounterWithGroup("cluster", "catalog_query_failures_total", 1)
			log.Warn().Str("service", w.cfg.Service).Err(err).Msg("consul catalog query failed")
			select {
			case <-time.After(w.cfg.retryDelay()):
			case <-w.stopCh:
				return
			}
			continue
		}

		if meta.LastIndex == lastIndex {
			continue
		}
		lastIndex = meta.LastIndex

		w.reconcile(entries)
	}
}

// reconcile diffs the catalog snapshot against known members and forwards
// the deltas to the registry. Exposed to the watch loop only; tests drive it
// with synthetic entries.
func (w *MembershipWatcher) reconcile(entries []*api.ServiceEntry) {
	desired := make(map[uint16]serverInstance, len(entries))
	for _, entry := range entries {
		svc := entry.Service
		id, err := parseServerID(svc.Meta)
		if err != nil {
			log.Warn().Str("service", w.cfg.Service).Str("instance", svc.ID).
				Err(err).Msg("skipping catalog entry without usable server ID")
			continue
		}

		host := svc.Address
		if host == "" {
			host = entry.Node.Address
		}
		desired[id] = serverInstance{
			host:       host,
			port:       uint16(svc.Port),
			properties: svc.Meta,
		}
	}

	w.mu.Lock()
	var joins []uint16
	var leaves []uint16
	for id := range desired {
		if _, ok := w.known[id]; !ok {
			joins = append(joins, id)
		}
	}
	for id := range w.known {
		if _, ok := desired[id]; !ok {
			leaves = append(leaves, id)
		}
	}
	for _, id := range joins {
		w.known[id] = desired[id]
	}
	for _, id := range leaves {
		delete(w.known, id)
	}
	memberCount := len(w.known)
	w.mu.Unlock()

	metrics.UpdateGaugeWithGroup("cluster", "known_members", metrics.Value(memberCount))

	for _, id := range joins {
		inst := desired[id]
		if err := w.registry.HandleServerJoin(id, inst.host, inst.port, inst.properties); err != nil {
			log.Error().Uint16("serverID", id).Err(err).Msg("server join rejected by registry")
		}
	}
	for _, id := range leaves {
		if err := w.registry.HandleServerLeave(id); err != nil {
			log.Error().Uint16("serverID", id).Err(err).Msg("server leave rejected by registry")
		}
	}
}

func parseServerID(meta map[string]string) (uint16, error) {
	raw, ok := meta[_serverIDMetaKey]
	if !ok {
		return 0, fmt.Errorf("meta key %q missing", _serverIDMetaKey)
	}
	id, err := utils.GetServerIDByStr(raw)
	if err != nil {
		return 0, fmt.Errorf("meta key %q invalid: %w", _serverIDMetaKey, err)
	}
	return id, nil
}
