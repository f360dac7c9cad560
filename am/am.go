package am

// Config represents the waypoint configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Pulse      PulseConfig      `mapstructure:"pulse"`
	Geocoding  GeocodingConfig  `mapstructure:"geocoding"`
	Statistics StatisticsConfig `mapstructure:"statistics"`
	Import     ImportConfig     `mapstructure:"import"`
	Filters    FiltersConfig    `mapstructure:"filters"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server port constants
const (
	DefaultServerPort = 8730
)

// PulseConfig configures the background job scheduler
type PulseConfig struct {
	Workers         int  `mapstructure:"workers"`          // Max concurrently running jobs (default: 1)
	PollIntervalMS  int  `mapstructure:"poll_interval_ms"` // Control loop interval (default: 100)
	DailyRecurrence bool `mapstructure:"daily_recurrence"` // Enqueue standing jobs on day change (default: true)
	HistoryLimit    int  `mapstructure:"history_limit"`    // Finished job runs kept for listing (default: 200)
}

// GeocodingConfig configures the Photon-compatible reverse geocoding provider.
// An empty Host disables geocoding entirely.
type GeocodingConfig struct {
	Host              string  `mapstructure:"host"`
	HTTPS             bool    `mapstructure:"https"`
	APIKey            string  `mapstructure:"api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	BufferSize        int     `mapstructure:"buffer_size"`         // Responses buffered per commit (default: 100)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // 0 = unlimited
	DailyQuota        int     `mapstructure:"daily_quota"`         // 0 = unlimited
	BlockPrivateIP    bool    `mapstructure:"block_private_ip"`    // Self-hosted Photon usually lives on the LAN
}

// Enabled reports whether a geocoding provider is configured
func (g GeocodingConfig) Enabled() bool {
	return g.Host != ""
}

// BaseURL returns the provider base URL built from host and scheme
func (g GeocodingConfig) BaseURL() string {
	scheme := "http"
	if g.HTTPS {
		scheme = "https"
	}
	return scheme + "://" + g.Host
}

// StatisticsConfig configures daily statistics aggregation
type StatisticsConfig struct {
	MinCountryMinutes float64 `mapstructure:"min_country_minutes"` // Presence needed to count a country (default: 5)
	MinCityMinutes    float64 `mapstructure:"min_city_minutes"`    // Presence needed to count a city (default: 60)
	BatchSize         int     `mapstructure:"batch_size"`          // Rows per commit (default: 500)
	Timezone          string  `mapstructure:"timezone"`            // Day boundaries, "UTC", "local" or IANA name
}

// ImportConfig configures bulk imports
type ImportConfig struct {
	Directory       string `mapstructure:"directory"`        // Where fetched files are kept
	SourceDirectory string `mapstructure:"source_directory"` // Local sources must live under it; empty disables local sources
	BatchSize       int    `mapstructure:"batch_size"`
}

// FiltersConfig configures data-cleanup jobs
type FiltersConfig struct {
	MaxHorizontalAccuracy float64 `mapstructure:"max_horizontal_accuracy"` // Default threshold in meters
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
