package config

// Config interface defines the basic configuration contract
type Config interface {
	GetName() string
	Validate() error
}

// ConfigChangeListener is implemented by components that want to be notified
// when their configuration has been reloaded from disk. Listeners register
// with the ConfigManager and receive both the new and the previous value.
type ConfigChangeListener interface {
	// GetConfigName returns the configuration name the listener cares about.
	GetConfigName() string

	// OnConfigChanged is invoked after a configuration file has been reloaded
	// and validated. Returning an error keeps the previous configuration.
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
}
