package commands

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/am/geotime"
	"github.com/teranos/waypoint/db"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/geocode"
	"github.com/teranos/waypoint/jobs"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/pulse/async"
)

// runtime holds what every job-running command shares: the migrated
// database, the point store, the optional geocoder and the job catalog
type runtime struct {
	cfg      *am.Config
	db       *sql.DB
	dbPath   string
	store    *location.Store
	geocoder *geocode.Client // nil when geocoding.host is empty
	catalog  *async.Catalog
	location *time.Location
}

// resolveDatabasePath picks the flag, then WAYPOINT_DB_PATH, then config
func resolveDatabasePath(flagPath string, cfg *am.Config) string {
	if flagPath != "" {
		return flagPath
	}
	if path, err := am.GetDatabasePath(); err == nil && path != "" {
		return path
	}
	return cfg.GetDatabasePath()
}

// openDatabase opens and migrates the database for commands that need no jobs
func openDatabase(flagPath string, log *zap.SugaredLogger) (*sql.DB, string, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to load config")
	}
	path := resolveDatabasePath(flagPath, cfg)
	database, err := db.OpenWithMigrations(path, log)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, path, nil
}

// newRuntime opens the database and registers every job type
func newRuntime(cfg *am.Config, flagPath string, log *zap.SugaredLogger) (*runtime, error) {
	loc, err := geotime.Resolve(cfg.Statistics.Timezone)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid statistics.timezone"),
			"use UTC, local or an IANA name such as Europe/Berlin")
	}

	path := resolveDatabasePath(flagPath, cfg)
	database, err := db.OpenWithMigrations(path, log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	rt := &runtime{
		cfg:      cfg,
		db:       database,
		dbPath:   path,
		store:    location.NewStore(database),
		catalog:  async.NewCatalog(),
		location: loc,
	}

	deps := jobs.Deps{Store: rt.store, Config: cfg, Location: loc, Logger: log}
	if cfg.Geocoding.Enabled() {
		client, err := geocode.New(geocode.ConfigFrom(cfg.Geocoding), log)
		if err != nil {
			database.Close()
			return nil, err
		}
		rt.geocoder = client
		deps.Geocoder = client
	}
	jobs.Register(rt.catalog, deps)

	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}
