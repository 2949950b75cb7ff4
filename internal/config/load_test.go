package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults verifies that Load applies the expected defaults when
// no environment variables are set.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIXELPERM_CONFIG", "/nonexistent/pixelperm.yaml")

	cfg, err := Load()
	require.Error(t, err, "an explicitly named missing config file should fail")

	t.Setenv("PIXELPERM_CONFIG", "")

	cfg, err = Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30*time.Second, cfg.Poll.HealthInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Assets.Dir)
}

// TestLoadFromEnvironment verifies environment variables override defaults.
func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PIXELPERM_BACKEND_BASE_URL", "http://morph.example.com:8080")
	t.Setenv("PIXELPERM_BACKEND_REQUEST_TIMEOUT", "10s")
	t.Setenv("PIXELPERM_POLL_INTERVAL", "500ms")
	t.Setenv("PIXELPERM_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://morph.example.com:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestLoadValidation verifies invalid settings are rejected.
func TestLoadValidation(t *testing.T) {
	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("PIXELPERM_LOG_LEVEL", "verbose")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid base url", func(t *testing.T) {
		t.Setenv("PIXELPERM_BACKEND_BASE_URL", "not a url")

		_, err := Load()
		assert.Error(t, err)
	})
}
