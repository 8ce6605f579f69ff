package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listenerCfg struct {
	Port    int    `mapstructure:"port"`
	Cluster string `mapstructure:"cluster"`
}

func (c *listenerCfg) GetName() string {
	return "listener"
}

func (c *listenerCfg) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port out of range")
	}
	return nil
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// Tests loading, struct binding and retrieval of a configuration.
func TestConfigManager_LoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "listener.yaml", "port: 4296\ncluster: eu-west\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)

	cfg := &listenerCfg{}
	require.NoError(t, cm.LoadConfig("listener", cfg))
	assert.Equal(t, 4296, cfg.Port)
	assert.Equal(t, "eu-west", cfg.Cluster)

	stored, err := cm.GetConfig("listener")
	require.NoError(t, err)
	assert.Same(t, cfg, stored)
}

// Tests that a missing file and an unknown name both fail.
func TestConfigManager_Missing(t *testing.T) {
	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(t.TempDir())

	assert.Error(t, cm.LoadConfig("absent", &listenerCfg{}))

	_, err := cm.GetConfig("absent")
	assert.Error(t, err)
}

// Tests that both the struct's own Validate and a registered validator can
// reject a load.
func TestConfigManager_Validation(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "listener.yaml", "port: -1\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)
	assert.Error(t, cm.LoadConfig("listener", &listenerCfg{}))

	writeConfigFile(t, dir, "listener.yaml", "port: 80\n")
	cm.RegisterValidator("listener", func(c Config) error {
		if c.(*listenerCfg).Port < 1024 {
			return errors.New("privileged port")
		}
		return nil
	})
	assert.Error(t, cm.LoadConfig("listener", &listenerCfg{}))

	writeConfigFile(t, dir, "listener.yaml", "port: 4296\n")
	assert.NoError(t, cm.LoadConfig("listener", &listenerCfg{}))
}

// Tests the environment-specific search path.
func TestConfigManager_EnvironmentPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "production"), 0o755))
	writeConfigFile(t, filepath.Join(dir, "production"), "listener.yaml", "port: 9000\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)
	cm.SetEnvironment("production")

	cfg := &listenerCfg{}
	require.NoError(t, cm.LoadConfig("listener", cfg))
	assert.Equal(t, 9000, cfg.Port)
}
