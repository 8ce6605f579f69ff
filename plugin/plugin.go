// Package plugin hosts the game-logic extensions loaded into the server.
// Plugins subscribe to connection and message events during Init; the
// manager brings them up in dependency order and tears them down in reverse.
package plugin

import (
	"fmt"
	"time"
)

// Plugin is one hosted extension.
type Plugin interface {
	// Name returns the unique plugin name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// ThreadSafe declares that the plugin's event handlers may be invoked
	// concurrently from transport goroutines. Plugins that do not opt in
	// receive their events from the canonical dispatch worker only.
	ThreadSafe() bool

	// Dependencies lists plugin names that must start before this one.
	Dependencies() []string

	// Init prepares the plugin and registers its event subscriptions.
	Init() error

	// Start begins the plugin's active work.
	Start() error

	// Stop halts the plugin and releases its resources.
	Stop() error
}

// PluginStatus tracks where a plugin is in its lifecycle.
type PluginStatus string

const (
	PluginStatusRegistered  PluginStatus = "registered"
	PluginStatusInitialized PluginStatus = "initialized"
	PluginStatusStarted     PluginStatus = "started"
	PluginStatusStopped     PluginStatus = "stopped"
	PluginStatusError       PluginStatus = "error"
)

// PluginInfo is the manager's bookkeeping record for one plugin.
type PluginInfo struct {
	Name         string
	Version      string
	Status       PluginStatus
	Dependencies []string
	StartTime    time.Time
	StopTime     time.Time
	Error        error
}

// PluginError wraps a lifecycle failure with the plugin and phase that
// produced it.
type PluginError struct {
	Plugin string
	Phase  string
	Err    error
}

// NewPluginError creates a PluginError for the given plugin and phase.
func NewPluginError(plugin, phase string, err error) *PluginError {
	return &PluginError{Plugin: plugin, Phase: phase, Err: err}
}

// Error implements the error interface.
func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s %s failed: %v", e.Plugin, e.Phase, e.Err)
}

// Unwrap returns the underlying lifecycle error.
func (e *PluginError) Unwrap() error {
	return e.Err
}
