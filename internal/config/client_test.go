package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todosync/internal/config"
)

func TestLoadClientConfig_DefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := config.LoadClientConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
}

func TestLoadClientConfig_ConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	body := "server_url: https://sync.example.com\ntoken: abc123\nsync_interval: 1m\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.LoadClientConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://sync.example.com", cfg.ServerURL)
	assert.Equal(t, "abc123", cfg.Token)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
}

func TestLoadClientConfig_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("TODOSYNC_TOKEN", "from-env")

	cfg, err := config.LoadClientConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Token)
}

func TestLoadClientConfig_MissingConfigFileErrors(t *testing.T) {
	_, err := config.LoadClientConfig("/nonexistent/client.yaml")
	assert.Error(t, err)
}
