package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Gateway.Enabled)
	assert.NotEmpty(t, cfg.Store.Path)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Logger.Level, cfg.Logger.Level)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend:
  base_url: https://api.example.com
  api_key: sk-file
poller:
  interval: 250ms
  max_attempts: 10
automation:
  terminal:
    enabled: true
    allow_list:
      - ls
      - pwd
logger:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Poller.Interval)
	assert.Equal(t, 10, cfg.Poller.MaxAttempts)
	assert.True(t, cfg.Automation.Terminal.Enabled)
	assert.Equal(t, []string{"ls", "pwd"}, cfg.Automation.Terminal.AllowList)
	assert.Equal(t, "debug", cfg.Logger.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8090", cfg.Gateway.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONDUIT_API_KEY", "sk-env")
	t.Setenv("CONDUIT_BASE_URL", "https://env.example.com")
	t.Setenv("CONDUIT_LOG_LEVEL", "warn")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "sk-env", cfg.Backend.APIKey)
	assert.Equal(t, "https://env.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.BaseURL = "not-a-url"
	cfg.Poller.MaxAttempts = -1
	cfg.Logger.Level = "chatty"
	cfg.Store.Path = ""

	err := Validate(cfg)
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, ve.Errors, 4)
}

func TestValidateGatewayAddrRequiredWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Enabled = true
	cfg.Gateway.Addr = ""
	assert.Error(t, Validate(cfg))

	cfg.Gateway.Addr = ":9000"
	assert.NoError(t, Validate(cfg))
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  format: xml\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}
