// Package jobs holds the concrete background jobs and registers them with the
// scheduler catalog. Every job is a small struct implementing async.Runner.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/geocode"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/pulse/async"
)

// Job type names as accepted by the catalog
const (
	TypeGenerateFullStatistics = "GenerateFullStatistics"
	TypeGeocoding              = "Geocoding"
	TypeFillSpeed              = "FillSpeed"
	TypeFilterLargeAccuracy    = "FilterLargeAccuracy"
	TypeFilterZeroPoints       = "FilterZeroPoints"
	TypeImport                 = "Import"
)

// Concurrency categories
var (
	CategoryStatistics = async.Named("statistics")
	CategoryGeocoding  = async.Named("geocoding")
	CategorySpeed      = async.Named("speed")
	CategoryImport     = async.Named("import")
)

// Deps are the collaborators shared by every job
type Deps struct {
	Store    *location.Store
	Geocoder geocode.Reverser // nil disables the Geocoding type
	Config   *am.Config
	Location *time.Location // day boundaries for statistics
	Logger   *zap.SugaredLogger
}

func (d Deps) logger() *zap.SugaredLogger {
	if d.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return d.Logger
}

func (d Deps) dayLocation() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// Register adds every job type to the catalog
func Register(c *async.Catalog, deps Deps) {
	cfg := deps.Config
	if cfg == nil {
		cfg = &am.Config{}
	}
	log := deps.logger()

	c.Register(async.JobType{
		Name:        TypeGenerateFullStatistics,
		Description: "Rebuild daily distance and visited places from the full point history",
		Category:    CategoryStatistics,
		Build: func(p async.Params) (async.Runner, error) {
			return &StatisticsJob{
				store:  deps.Store,
				opts:   StatisticsOptionsFrom(cfg.Statistics, deps.dayLocation()),
				logger: log,
			}, nil
		},
	})

	if deps.Geocoder != nil {
		c.Register(async.JobType{
			Name:        TypeGeocoding,
			Description: "Reverse geocode every point that has no address yet",
			Category:    CategoryGeocoding,
			Build: func(p async.Params) (async.Runner, error) {
				return &GeocodingJob{
					store:      deps.Store,
					geocoder:   deps.Geocoder,
					bufferSize: cfg.Geocoding.BufferSize,
					logger:     log,
				}, nil
			},
		})
	}

	c.Register(async.JobType{
		Name:        TypeFillSpeed,
		Description: "Compute missing speeds from consecutive points",
		Category:    CategorySpeed,
		Build: func(p async.Params) (async.Runner, error) {
			return &FillSpeedJob{store: deps.Store, batchSize: cfg.Statistics.BatchSize, logger: log}, nil
		},
	})

	c.Register(async.JobType{
		Name:        TypeFilterLargeAccuracy,
		Description: "Delete points less accurate than max_accuracy meters",
		Category:    async.Exclusive,
		Params: []async.ParamSpec{
			{Name: "max_accuracy", Type: async.ParamFloat, Optional: true,
				Description: "Horizontal accuracy threshold in meters (default filters.max_horizontal_accuracy)"},
		},
		Build: func(p async.Params) (async.Runner, error) {
			maxAccuracy := cfg.Filters.MaxHorizontalAccuracy
			if p.Has("max_accuracy") {
				maxAccuracy = p.Float("max_accuracy")
			}
			return &FilterLargeAccuracyJob{store: deps.Store, maxAccuracy: maxAccuracy, logger: log}, nil
		},
	})

	c.Register(async.JobType{
		Name:        TypeFilterZeroPoints,
		Description: "Delete points recorded at latitude 0, longitude 0",
		Category:    async.Exclusive,
		Build: func(p async.Params) (async.Runner, error) {
			return &FilterZeroPointsJob{store: deps.Store, logger: log}, nil
		},
	})

	c.Register(async.JobType{
		Name:        TypeImport,
		Description: "Fetch a location file and store its points",
		Category:    CategoryImport,
		Params: []async.ParamSpec{
			{Name: "import_id", Type: async.ParamString, Description: "Import record to fill (uuid)"},
			{Name: "source", Type: async.ParamString, Description: "Path under import.source_directory or http(s) URL of an Overland or batch JSON file"},
		},
		Build: func(p async.Params) (async.Runner, error) {
			importID := p.String("import_id")
			if err := ValidateImportID(importID); err != nil {
				return nil, err
			}
			return NewImportJob(deps.Store, importID, p.String("source"), ImportOptionsFrom(cfg.Import), log), nil
		},
	})
}

// StandingTypes returns the job types the daily recurrence keeps queued per user
func StandingTypes(geocodingEnabled bool) []string {
	types := []string{TypeGenerateFullStatistics}
	if geocodingEnabled {
		types = append(types, TypeGeocoding)
	}
	return types
}

// shouldStop reports whether the body should return at the next checkpoint
func shouldStop(ctx context.Context, job *async.Job) bool {
	return job.StopRequested() || ctx.Err() != nil
}

// stopped converts a checkpoint exit into the body's return value.
// A requested stop is a clean exit; a cancelled parent is reported as is.
func stopped(ctx context.Context, job *async.Job) error {
	if job.StopRequested() {
		return nil
	}
	return ctx.Err()
}
