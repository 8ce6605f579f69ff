package config

import "sync"

var (
	_instance     ConfigManager
	_instanceOnce sync.Once
	_instanceMu   sync.RWMutex
)

// GetInstance returns the process-wide configuration manager, creating it on
// first use. Components that load configuration at init time share this
// instance so hot-reload notifications reach every registered listener.
func GetInstance() ConfigManager {
	_instanceMu.RLock()
	if _instance != nil {
		defer _instanceMu.RUnlock()
		return _instance
	}
	_instanceMu.RUnlock()

	_instanceOnce.Do(func() {
		_instanceMu.Lock()
		_instance = NewConfigManager()
		_instanceMu.Unlock()
	})
	return _instance
}

// SetInstance replaces the process-wide manager. Intended for tests and for
// applications that build their own manager before any component touches the
// singleton.
func SetInstance(cm ConfigManager) {
	_instanceMu.Lock()
	_instance = cm
	_instanceMu.Unlock()
}
