// Package cluster tracks peer server membership through Consul and drives
// server group joins and leaves from catalog changes.
package cluster

import (
	"fmt"
	"time"
)

// ClusterCfg configures the Consul membership watcher.
type ClusterCfg struct {
	// ConsulAddr is the address of the Consul agent.
	ConsulAddr string `mapstructure:"consulAddr"`
	// Datacenter optionally scopes queries to one datacenter.
	Datacenter string `mapstructure:"datacenter"`
	// Service is the Consul service name registered by peer servers.
	Service string `mapstructure:"service"`
	// WaitSec is the blocking-query wait time in seconds.
	WaitSec int `mapstructure:"waitSec"`
	// RetrySec is the backoff after a failed query in seconds.
	RetrySec int `mapstructure:"retrySec"`
}

// GetName returns the configuration name for ClusterCfg
func (c *ClusterCfg) GetName() string {
	return "cluster"
}

// Validate validates the ClusterCfg parameters
func (c *ClusterCfg) Validate() error {
	if c.ConsulAddr == "" {
		return fmt.Errorf("ConsulAddr cannot be empty")
	}
	if c.Service == "" {
		return fmt.Errorf("Service cannot be empty")
	}
	if c.WaitSec <= 0 {
		return fmt.Errorf("WaitSec must be positive")
	}
	if c.RetrySec <= 0 {
		return fmt.Errorf("RetrySec must be positive")
	}
	return nil
}

func (c *ClusterCfg) waitTime() time.Duration {
	return time.Duration(c.WaitSec) * time.Second
}

func (c *ClusterCfg) retryDelay() time.Duration {
	return time.Duration(c.RetrySec) * time.Second
}
