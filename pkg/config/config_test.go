package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Reminder.Lead)
	assert.Equal(t, time.Hour, cfg.Calendar.EventDuration)
	assert.Equal(t, "primary", cfg.Google.CalendarID)
	assert.Equal(t, int64(50), cfg.Worker.BatchSize)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadFromPath(t *testing.T) {
	t.Run("Should_override_defaults_from_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "server:\n  addr: \":9999\"\nreminder:\n  lead: 45m\nnlp:\n  timezone: Europe/Istanbul\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := LoadFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.Server.Addr)
		assert.Equal(t, 45*time.Minute, cfg.Reminder.Lead)
		assert.Equal(t, "Europe/Istanbul", cfg.Location().String())
		assert.Equal(t, time.Hour, cfg.Calendar.EventDuration)
	})

	t.Run("Should_take_api_key_from_environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600))

		cfg, err := LoadFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, "env-key", cfg.Anthropic.APIKey)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("Should_fail_for_missing_file", func(t *testing.T) {
		_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Addr = ":7070"
	cfg.Worker.Interval = 2 * time.Second
	cfg.Anthropic.APIKey = "secret"

	require.NoError(t, SaveTo(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", loaded.Server.Addr)
	assert.Equal(t, 2*time.Second, loaded.Worker.Interval)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}
