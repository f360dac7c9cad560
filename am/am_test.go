package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "waypoint.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Pulse.Workers)
	assert.Equal(t, 100, cfg.Pulse.PollIntervalMS)
	assert.True(t, cfg.Pulse.DailyRecurrence)
	assert.Equal(t, 100, cfg.Geocoding.BufferSize)
	assert.False(t, cfg.Geocoding.Enabled())
	assert.Equal(t, 5.0, cfg.Statistics.MinCountryMinutes)
	assert.Equal(t, 60.0, cfg.Statistics.MinCityMinutes)
	assert.Equal(t, 500, cfg.Statistics.BatchSize)
	assert.Equal(t, 1000, cfg.Import.BatchSize)
	assert.Equal(t, "uploads", cfg.Import.SourceDirectory)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waypoint.toml")
	content := `
[pulse]
workers = 4

[geocoding]
host = "photon.internal:2322"
https = false
buffer_size = 25

[statistics]
timezone = "Europe/Amsterdam"
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pulse.Workers)
	assert.True(t, cfg.Geocoding.Enabled())
	assert.Equal(t, "http://photon.internal:2322", cfg.Geocoding.BaseURL())
	assert.Equal(t, 25, cfg.Geocoding.BufferSize)
	assert.Equal(t, 60.0, cfg.Statistics.MinCityMinutes, "defaults fill unspecified keys")
	require.NoError(t, cfg.Validate())
}

func TestLegacyEnvironmentVariables(t *testing.T) {
	t.Setenv("PHOTON_SERVER_HOST", "photon.example.org")
	t.Setenv("BACKGROUND_MAX_THREADS", "3")

	v := viper.New()
	BindSensitiveEnvVars(v)
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "photon.example.org", cfg.Geocoding.Host)
	assert.Equal(t, "https://photon.example.org", cfg.Geocoding.BaseURL())
	assert.Equal(t, 3, cfg.Pulse.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "zero workers queues without running", mutate: func(c *Config) { c.Pulse.Workers = 0 }},
		{name: "negative workers", mutate: func(c *Config) { c.Pulse.Workers = -1 }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "negative quota", mutate: func(c *Config) { c.Geocoding.DailyQuota = -5 }, wantErr: true},
		{name: "enabled geocoding needs a buffer", mutate: func(c *Config) {
			c.Geocoding.Host = "photon"
			c.Geocoding.BufferSize = 0
		}, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Statistics.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "timezone abbreviation", mutate: func(c *Config) { c.Statistics.Timezone = "cet" }},
		{name: "negative accuracy filter", mutate: func(c *Config) { c.Filters.MaxHorizontalAccuracy = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			cfg, err := LoadWithViper(v)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/etc/waypoint/waypoint.toml.back1"))
	assert.True(t, isBackupFile("waypoint.toml~"))
	assert.True(t, isBackupFile(".waypoint.toml.swp"))
	assert.False(t, isBackupFile("/srv/waypoint.toml"))
}

func TestConfigWatcherReloadRunsCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waypoint.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pulse]\nworkers = 2\n"), DefaultFilePermissions))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cw.Stop() })
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }

	var got int
	cw.OnReload(func(c *Config) error {
		got = c.Pulse.Workers
		return nil
	})

	require.NoError(t, cw.reload())
	assert.Equal(t, 2, got)
}

func TestConfigWatcherRejectsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waypoint.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pulse]\nworkers = -3\n"), DefaultFilePermissions))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cw.Stop() })
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }

	called := false
	cw.OnReload(func(*Config) error {
		called = true
		return nil
	})

	assert.Error(t, cw.reload())
	assert.False(t, called)
}
