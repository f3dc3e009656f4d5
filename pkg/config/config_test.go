package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"GJ_LOG_LEVEL", "GJ_TEMPLATE_DIR", "GJ_TEMPLATE_REGISTRY_RPS",
		"GJ_TEMPLATE_FETCH_TIMEOUT", "GJ_TELEMETRY_ENABLED", "GJ_TELEMETRY_SAMPLE_RATE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./nexons", cfg.Templates.Dir)
	assert.Equal(t, 5.0, cfg.Templates.RegistryRPS)
	assert.Equal(t, 10*time.Second, cfg.Templates.FetchTimeout)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("GJ_LOG_LEVEL", "debug")
	t.Setenv("GJ_TEMPLATE_DIR", "/srv/templates")
	t.Setenv("GJ_TEMPLATE_REGISTRY_URL", "https://registry.example.com")
	t.Setenv("GJ_TEMPLATE_FETCH_TIMEOUT", "30s")
	t.Setenv("GJ_TELEMETRY_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/templates", cfg.Templates.Dir)
	assert.Equal(t, "https://registry.example.com", cfg.Templates.RegistryURL)
	assert.Equal(t, 30*time.Second, cfg.Templates.FetchTimeout)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadProfileOverlaysEnvironment(t *testing.T) {
	t.Setenv("GJ_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  dir: /opt/nexons
  redisAddr: localhost:6379
`), 0o644))

	cfg, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/nexons", cfg.Templates.Dir)
	assert.Equal(t, "localhost:6379", cfg.Templates.RedisAddr)
	// Values the profile does not mention keep the env-derived settings.
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "unknown"}).SlogLevel())
}
