package plugin

import (
	"fmt"
	"sync"
	"time"

	"github.com/lcx/embernet/log"
)

// PluginManager owns plugin registration and lifecycle. Start order is
// derived from declared dependencies; stop order is its reverse.
type PluginManager interface {
	// RegisterPlugin adds a plugin. Names must be unique.
	RegisterPlugin(plugin Plugin) error

	// UnregisterPlugin removes a plugin, stopping it first if running.
	UnregisterPlugin(name string) error

	// StartAll initializes and starts every plugin in dependency order.
	StartAll() error

	// StopAll stops every running plugin in reverse dependency order.
	StopAll() error

	// StartPlugin initializes (if needed) and starts one plugin.
	StartPlugin(name string) error

	// StopPlugin stops one running plugin.
	StopPlugin(name string) error

	// GetPlugin returns a plugin by name, nil when absent.
	GetPlugin(name string) Plugin

	// GetPluginInfo returns a copy of the plugin's lifecycle record.
	GetPluginInfo(name string) (*PluginInfo, error)

	// ListPlugins returns copies of every plugin's lifecycle record.
	ListPlugins() []PluginInfo
}

type pluginManager struct {
	plugins map[string]Plugin
	infos   map[string]*PluginInfo
	started map[string]bool
	mu      sync.RWMutex
}

// NewPluginManager creates an empty plugin manager.
func NewPluginManager() PluginManager {
	return &pluginManager{
		plugins: make(map[string]Plugin),
		infos:   make(map[string]*PluginInfo),
		started: make(map[string]bool),
	}
}

func (pm *pluginManager) RegisterPlugin(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("plugin cannot be nil")
	}
	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}

	pm.plugins[name] = plugin
	pm.infos[name] = &PluginInfo{
		Name:         name,
		Version:      plugin.Version(),
		Status:       PluginStatusRegistered,
		Dependencies: plugin.Dependencies(),
	}

	log.Info().Str("name", name).Str("version", plugin.Version()).
		Bool("threadSafe", plugin.ThreadSafe()).Msg("plugin registered")
	return nil
}

func (pm *pluginManager) UnregisterPlugin(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	plugin, exists := pm.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %s not found", name)
	}

	if pm.started[name] {
		if err := plugin.Stop(); err != nil {
			log.Error().Str("name", name).Err(err).Msg("failed to stop plugin during unregister")
		}
		delete(pm.started, name)
	}

	delete(pm.plugins, name)
	delete(pm.infos, name)

	log.Info().Str("name", name).Msg("plugin unregistered")
	return nil
}

func (pm *pluginManager) StartAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	order, err := pm.resolveStartOrder()
	if err != nil {
		return fmt.Errorf("failed to resolve plugin start order: %w", err)
	}
	log.Info().Strs("order", order).Msg("starting plugins")

	// Init everything before starting anything, so a plugin never starts
	// against a dependency that failed to initialize.
	for _, name := range order {
		info := pm.infos[name]
		if err := pm.plugins[name].Init(); err != nil {
			info.Status = PluginStatusError
			info.Error = err
			return NewPluginError(name, "init", err)
		}
		info.Status = PluginStatusInitialized
	}

	for _, name := range order {
		info := pm.infos[name]
		if err := pm.plugins[name].Start(); err != nil {
			info.Status = PluginStatusError
			info.Error = err
			return NewPluginError(name, "start", err)
		}
		info.Status = PluginStatusStarted
		info.StartTime = time.Now()
		pm.started[name] = true
		log.Info().Str("name", name).Msg("plugin started")
	}
	return nil
}

func (pm *pluginManager) StopAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	order, err := pm.resolveStartOrder()
	if err != nil {
		return fmt.Errorf("failed to resolve plugin start order: %w", err)
	}

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if !pm.started[name] {
			continue
		}
		info := pm.infos[name]
		if err := pm.plugins[name].Stop(); err != nil {
			info.Status = PluginStatusError
			info.Error = err
			log.Error().Str("name", name).Err(err).Msg("failed to stop plugin")
			continue
		}
		info.Status = PluginStatusStopped
		info.StopTime = time.Now()
		delete(pm.started, name)
		log.Info().Str("name", name).Msg("plugin stopped")
	}
	return nil
}

func (pm *pluginManager) StartPlugin(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	plugin, exists := pm.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %s not found", name)
	}
	if pm.started[name] {
		return fmt.Errorf("plugin %s already started", name)
	}

	info := pm.infos[name]
	if info.Status == PluginStatusRegistered {
		if err := plugin.Init(); err != nil {
			info.Status = PluginStatusError
			info.Error = err
			return NewPluginError(name, "init", err)
		}
		info.Status = PluginStatusInitialized
	}

	if err := plugin.Start(); err != nil {
		info.Status = PluginStatusError
		info.Error = err
		return NewPluginError(name, "start", err)
	}
	info.Status = PluginStatusStarted
	info.StartTime = time.Now()
	pm.started[name] = true

	log.Info().Str("name", name).Msg("plugin started")
	return nil
}

func (pm *pluginManager) StopPlugin(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	plugin, exists := pm.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %s not found", name)
	}
	if !pm.started[name] {
		return fmt.Errorf("plugin %s not started", name)
	}

	info := pm.infos[name]
	if err := plugin.Stop(); err != nil {
		info.Status = PluginStatusError
		info.Error = err
		return NewPluginError(name, "stop", err)
	}
	info.Status = PluginStatusStopped
	info.StopTime = time.Now()
	delete(pm.started, name)

	log.Info().Str("name", name).Msg("plugin stopped")
	return nil
}

func (pm *pluginManager) GetPlugin(name string) Plugin {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.plugins[name]
}

func (pm *pluginManager) GetPluginInfo(name string) (*PluginInfo, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	info, exists := pm.infos[name]
	if !exists {
		return nil, fmt.Errorf("plugin %s not found", name)
	}
	infoCopy := *info
	return &infoCopy, nil
}

func (pm *pluginManager) ListPlugins() []PluginInfo {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(pm.infos))
	for _, info := range pm.infos {
		infos = append(infos, *info)
	}
	return infos
}

// resolveStartOrder topologically sorts plugins by their declared
// dependencies. A cycle or a dependency on an unregistered plugin is an
// error.
func (pm *pluginManager) resolveStartOrder() ([]string, error) {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	order := make([]string, 0, len(pm.plugins))

	var visit func(string) error
	visit = func(name string) error {
		if inStack[name] {
			return fmt.Errorf("circular dependency involving plugin %s", name)
		}
		if visited[name] {
			return nil
		}

		plugin, exists := pm.plugins[name]
		if !exists {
			return fmt.Errorf("plugin %s not found", name)
		}

		inStack[name] = true
		for _, dep := range plugin.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		inStack[name] = false

		visited[name] = true
		order = append(order, name)
		return nil
	}

	for name := range pm.plugins {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
