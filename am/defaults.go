package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "waypoint.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
	})

	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.poll_interval_ms", 100)
	v.SetDefault("pulse.daily_recurrence", true)
	v.SetDefault("pulse.history_limit", 200)

	v.SetDefault("geocoding.host", "")
	v.SetDefault("geocoding.https", true)
	v.SetDefault("geocoding.timeout_seconds", 10)
	v.SetDefault("geocoding.buffer_size", 100)
	v.SetDefault("geocoding.requests_per_second", 5.0)
	v.SetDefault("geocoding.daily_quota", 0)
	v.SetDefault("geocoding.block_private_ip", false)

	v.SetDefault("statistics.min_country_minutes", 5.0)
	v.SetDefault("statistics.min_city_minutes", 60.0)
	v.SetDefault("statistics.batch_size", 500)
	v.SetDefault("statistics.timezone", "UTC")

	v.SetDefault("import.directory", "imports")
	v.SetDefault("import.source_directory", "uploads")
	v.SetDefault("import.batch_size", 1000)

	v.SetDefault("filters.max_horizontal_accuracy", 100.0)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "WAYPOINT_DATABASE_PATH")
	v.BindEnv("geocoding.host", "WAYPOINT_GEOCODING_HOST", "PHOTON_SERVER_HOST")
	v.BindEnv("geocoding.https", "WAYPOINT_GEOCODING_HTTPS", "PHOTON_SERVER_HTTPS")
	v.BindEnv("geocoding.api_key", "WAYPOINT_GEOCODING_API_KEY", "PHOTON_SERVER_API_KEY")
	v.BindEnv("pulse.workers", "WAYPOINT_PULSE_WORKERS", "BACKGROUND_MAX_THREADS")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "waypoint.db"
	}
	return c.Database.Path
}

// GetServerPort returns the configured port, falling back to DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port <= 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// PollInterval returns the scheduler control loop interval
func (c *Config) PollInterval() time.Duration {
	if c.Pulse.PollIntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.Pulse.PollIntervalMS) * time.Millisecond
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Pulse: {Workers: %d}, Geocoding: {Host: %q}}",
		c.Database.Path, c.Pulse.Workers, c.Geocoding.Host)
}
