package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, "https://api.altare.sh", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.API.Attempts)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".afk", "afk.db"), cfg.Storage.Path)
	assert.Equal(t, "127.0.0.1:8787", cfg.Admin.Listen)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, 600*time.Millisecond, cfg.Notify.Throttle)
	assert.Equal(t, 30*time.Second, cfg.Farm.HeartbeatInterval)
	assert.Equal(t, time.Hour, cfg.Farm.RestAfter)
	assert.Equal(t, 3*time.Second, cfg.Farm.StaggerStep)
	assert.Equal(t, 30*time.Second, cfg.Farm.StatsWriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Timings().StatsWriteTimeout)
	assert.Equal(t, 200, cfg.Farm.LogCapacity)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[storage]
driver = "toml"

[farm]
heartbeat_interval = "10s"
start_max_attempts = 7

[notify]
webhook_url = "https://discord.example/hook"
`), 0o600))
	t.Setenv("HOME", dir)
	t.Setenv("AFK_FARM_REST_AFTER", "30m")
	t.Setenv("AFK_LOG_LEVEL", "debug")

	v := New(file)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, DriverTOML, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(dir, ".afk", "sessions.toml"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join(dir, ".afk", "sessions.toml"), v.GetString("storage.path"))
	assert.Equal(t, 10*time.Second, cfg.Farm.HeartbeatInterval)
	assert.Equal(t, 30*time.Minute, cfg.Farm.RestAfter)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://discord.example/hook", cfg.Notify.WebhookURL)

	timings := cfg.Timings()
	assert.Equal(t, 7, timings.StartMaxAttempts)
	assert.Equal(t, 10*time.Second, timings.HeartbeatInterval)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AFK_STORAGE_DRIVER", "postgres")

	_, err := Load(New(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage driver "postgres"`)
}

func TestLoadBrokenFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte("[farm\n"), 0o600))

	_, err := Load(New(file))
	require.Error(t, err)
}
