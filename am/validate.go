package am

import (
	"github.com/teranos/waypoint/am/geotime"
	"github.com/teranos/waypoint/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be within 0-65535, got %d", c.Server.Port)
	}

	// Pulse workers: 0 = jobs are queued but never started, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.PollIntervalMS < 0 {
		return errors.Newf("pulse.poll_interval_ms must be >= 0, got %d", c.Pulse.PollIntervalMS)
	}
	if c.Pulse.HistoryLimit < 0 {
		return errors.Newf("pulse.history_limit must be >= 0, got %d", c.Pulse.HistoryLimit)
	}

	if c.Geocoding.Enabled() {
		if c.Geocoding.BufferSize <= 0 {
			return errors.Newf("geocoding.buffer_size must be > 0, got %d", c.Geocoding.BufferSize)
		}
		if c.Geocoding.TimeoutSeconds <= 0 {
			return errors.Newf("geocoding.timeout_seconds must be > 0, got %d", c.Geocoding.TimeoutSeconds)
		}
	}
	if c.Geocoding.RequestsPerSecond < 0 {
		return errors.Newf("geocoding.requests_per_second must be >= 0, got %f", c.Geocoding.RequestsPerSecond)
	}
	if c.Geocoding.DailyQuota < 0 {
		return errors.Newf("geocoding.daily_quota must be >= 0, got %d", c.Geocoding.DailyQuota)
	}

	if c.Statistics.MinCountryMinutes < 0 {
		return errors.Newf("statistics.min_country_minutes must be >= 0, got %f", c.Statistics.MinCountryMinutes)
	}
	if c.Statistics.MinCityMinutes < 0 {
		return errors.Newf("statistics.min_city_minutes must be >= 0, got %f", c.Statistics.MinCityMinutes)
	}
	if c.Statistics.BatchSize < 0 {
		return errors.Newf("statistics.batch_size must be >= 0, got %d", c.Statistics.BatchSize)
	}
	if c.Statistics.Timezone != "" {
		if _, err := geotime.Resolve(c.Statistics.Timezone); err != nil {
			return errors.Wrap(err, "statistics.timezone")
		}
	}

	if c.Import.BatchSize < 0 {
		return errors.Newf("import.batch_size must be >= 0, got %d", c.Import.BatchSize)
	}
	if c.Filters.MaxHorizontalAccuracy < 0 {
		return errors.Newf("filters.max_horizontal_accuracy must be >= 0, got %f", c.Filters.MaxHorizontalAccuracy)
	}

	return nil
}
