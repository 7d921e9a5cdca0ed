package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cm := NewConfigManager()
	require.NoError(t, cm.LoadConfig(""))

	cfg := cm.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, filepath.Join("./data", "scormbridge.db"), cfg.Database.DatabasePath)
	assert.Equal(t, filepath.Join("./data", "packages"), cfg.Content.PackageDir)
	assert.Equal(t, 10*time.Second, cfg.Completion.WriteTimeout)
	assert.True(t, cfg.Server.EnableCORS)
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scormbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  enable_cors: false
content:
  package_dir: /srv/packages
  watch_packages: true
  load_timeout: 5s
completion:
  write_timeout: 3s
`), 0644))

	t.Setenv("SCORMBRIDGE_LOAD_TIMEOUT", "20s")

	cm := NewConfigManager()
	require.NoError(t, cm.LoadConfig(path))

	cfg := cm.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Server.EnableCORS)
	assert.Equal(t, "/srv/packages", cfg.Content.PackageDir)
	assert.True(t, cfg.Content.WatchPackages)
	assert.Equal(t, 20*time.Second, cfg.Content.LoadTimeout, "environment wins over the file")
	assert.Equal(t, 3*time.Second, cfg.Completion.WriteTimeout)
	assert.Equal(t, path, cm.ConfigPath())
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "mysql")

	cm := NewConfigManager()
	err := cm.LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")

	// A failed load keeps the previous configuration
	assert.Equal(t, "sqlite", cm.GetConfig().Database.Type)
}

func TestGetConfigReturnsCopy(t *testing.T) {
	cm := NewConfigManager()
	cfg := cm.GetConfig()
	cfg.Server.Port = 1

	assert.Equal(t, 8080, cm.GetConfig().Server.Port)
}

func TestWatchersNotified(t *testing.T) {
	cm := NewConfigManager()
	changed := make(chan int, 1)
	cm.AddWatcher(func(oldConfig, newConfig *Config) {
		changed <- newConfig.Server.Port
	})

	t.Setenv("SCORMBRIDGE_PORT", "7070")
	require.NoError(t, cm.LoadConfig(""))

	select {
	case port := <-changed:
		assert.Equal(t, 7070, port)
	case <-time.After(time.Second):
		t.Fatal("watcher not called")
	}
}
