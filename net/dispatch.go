package net

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lcx/embernet/config"
	"github.com/lcx/embernet/log"
	"github.com/lcx/embernet/metrics"
)

// DispatchGatewayCfg configures the dispatch gateway.
type DispatchGatewayCfg struct {
	// QueueSize bounds the canonical task queue. Enqueueing blocks when the
	// queue is full so ordering is preserved under pressure.
	QueueSize int `mapstructure:"queueSize"`
}

// GetName returns the configuration name for DispatchGatewayCfg
func (c *DispatchGatewayCfg) GetName() string {
	return "dispatch_gateway"
}

// Validate validates the DispatchGatewayCfg parameters
func (c *DispatchGatewayCfg) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("QueueSize must be positive")
	}
	return nil
}

const _defaultDispatchQueueSize = 4096

// DispatchGateway is the single seam deciding on which goroutine a
// plugin-visible event runs. Subscribers that declare themselves safe for
// concurrent invocation are executed inline on the calling (transport)
// goroutine; everything else is marshalled onto one canonical worker, which
// gives those subscribers the guarantee that their events never run
// concurrently with each other.
//
// The queue is FIFO, so marshalled deliveries preserve enqueue order. Every
// component in this package routes plugin-visible invocations through the
// gateway rather than calling subscribers directly.
type DispatchGateway struct {
	tasks    chan func()
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

// NewDispatchGateway creates a gateway with the given queue size. Sizes <= 0
// select the default.
func NewDispatchGateway(queueSize int) *DispatchGateway {
	if queueSize <= 0 {
		queueSize = _defaultDispatchQueueSize
	}
	return &DispatchGateway{
		tasks:  make(chan func(), queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// NewDispatchGatewayWithConfigManager creates a gateway configured from the
// config manager.
func NewDispatchGatewayWithConfigManager(configManager config.ConfigManager) (*DispatchGateway, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}

	cfg := &DispatchGatewayCfg{}
	if err := configManager.LoadConfig("dispatch_gateway", cfg); err != nil {
		return nil, fmt.Errorf("failed to load dispatch_gateway config: %w", err)
	}

	return NewDispatchGateway(cfg.QueueSize), nil
}

// Start launches the canonical worker goroutine. Calling Start more than
// once is a no-op.
func (g *DispatchGateway) Start() {
	if !g.started.CompareAndSwap(false, true) {
		return
	}
	go g.serve()
}

func (g *DispatchGateway) serve() {
	defer close(g.doneCh)
	for {
		select {
		case task := <-g.tasks:
			metrics.UpdateGaugeWithGroup("net", "dispatch_queue_depth", metrics.Value(len(g.tasks)))
			task()
		case <-g.stopCh:
			// Drain what is already queued, then exit.
			for {
				select {
				case task := <-g.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Stop shuts the worker down after draining queued tasks. Tasks dispatched
// after Stop run inline on the caller.
func (g *DispatchGateway) Stop() {
	g.stopOnce.Do(func() {
		g.stopped.Store(true)
		close(g.stopCh)
		if g.started.Load() {
			<-g.doneCh
		}
	})
}

// Dispatch routes fn according to the subscriber capability: thread-safe
// callbacks run inline, everything else is enqueued for the canonical
// worker. Before Start and after Stop the gateway degrades to inline
// execution so no task is ever silently lost.
func (g *DispatchGateway) Dispatch(threadSafe bool, fn func()) {
	if threadSafe || !g.started.Load() || g.stopped.Load() {
		fn()
		return
	}

	select {
	case g.tasks <- fn:
		if g.stopped.Load() {
			// Stop may have drained the queue between the check above and
			// the handoff, leaving the task stranded with no worker. Reclaim
			// a queued task and run it inline; exactly-once still holds
			// because every queued task is taken by either the worker's
			// drain or one reclaim.
			select {
			case task := <-g.tasks:
				task()
			default:
			}
			return
		}
		metrics.UpdateGaugeWithGroup("net", "dispatch_queue_depth", metrics.Value(len(g.tasks)))
	case <-g.stopCh:
		fn()
	}
}

// invokeIsolated runs a batch of subscriber callbacks under one recover. A
// panicking subscriber is logged and suppressed; later subscribers in the
// same batch do not run. The connection and in-flight buffers are unaffected.
func invokeIsolated(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncrCounterWithDimGroup("net", "plugin_panic_total", 1,
				metrics.Dimension{"event": event})
			log.Error().Str("event", event).Str("panic", fmt.Sprint(r)).
				Msg("plugin subscriber panicked, suppressed")
		}
	}()
	fn()
}
