package jobs

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/internal/util"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

// Progress split between the scan and persisting the rows
const scanShare = 0.9

// StatisticsOptions tunes daily aggregation
type StatisticsOptions struct {
	MinCountry time.Duration // presence needed before a country counts as visited
	MinCity    time.Duration
	BatchSize  int            // rows per transaction
	PageSize   int            // points read per query
	Location   *time.Location // day boundaries
}

// DefaultStatisticsOptions returns 5 min / 60 min thresholds and 500-row batches in UTC
func DefaultStatisticsOptions() StatisticsOptions {
	return StatisticsOptions{
		MinCountry: 5 * time.Minute,
		MinCity:    60 * time.Minute,
		BatchSize:  500,
		PageSize:   1000,
		Location:   time.UTC,
	}
}

// StatisticsOptionsFrom builds options from the statistics config section
func StatisticsOptionsFrom(c am.StatisticsConfig, loc *time.Location) StatisticsOptions {
	opts := DefaultStatisticsOptions()
	if c.MinCountryMinutes > 0 {
		opts.MinCountry = time.Duration(c.MinCountryMinutes * float64(time.Minute))
	}
	if c.MinCityMinutes > 0 {
		opts.MinCity = time.Duration(c.MinCityMinutes * float64(time.Minute))
	}
	if c.BatchSize > 0 {
		opts.BatchSize = c.BatchSize
	}
	if loc != nil {
		opts.Location = loc
	}
	return opts
}

type dayKey struct {
	year  int
	month time.Month
	day   int
}

type dayAccumulator struct {
	distance  float64
	countries map[string]time.Duration
	cities    map[string]time.Duration
}

// StatisticsAggregator folds a time-ordered point stream into per-day summaries.
// Distance between two points is credited to the later point's day, and so is
// the elapsed time spent in a country or city both points share.
type StatisticsAggregator struct {
	userID string
	opts   StatisticsOptions
	days   map[dayKey]*dayAccumulator
	prev   *location.Point
}

// NewStatisticsAggregator creates an empty aggregator for userID
func NewStatisticsAggregator(userID string, opts StatisticsOptions) *StatisticsAggregator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &StatisticsAggregator{
		userID: userID,
		opts:   opts,
		days:   make(map[dayKey]*dayAccumulator),
	}
}

// Add consumes the next point. Points must arrive in timestamp order.
func (a *StatisticsAggregator) Add(p location.Point) {
	local := p.Timestamp.In(a.opts.Location)
	key := dayKey{local.Year(), local.Month(), local.Day()}
	acc, ok := a.days[key]
	if !ok {
		acc = &dayAccumulator{
			countries: make(map[string]time.Duration),
			cities:    make(map[string]time.Duration),
		}
		a.days[key] = acc
	}

	if prev := a.prev; prev != nil {
		acc.distance += prev.DistanceTo(p)

		if elapsed := p.Timestamp.Sub(prev.Timestamp); elapsed > 0 {
			if p.Country != "" && p.Country == prev.Country {
				acc.countries[p.Country] += elapsed
			}
			if p.City != "" && p.City == prev.City {
				acc.cities[p.City] += elapsed
			}
		}
	}

	a.prev = &p
}

// Results returns one statistic per day seen, ordered by date
func (a *StatisticsAggregator) Results() []location.DailyStatistic {
	keys := make([]dayKey, 0, len(a.days))
	for k := range a.days {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		if keys[i].month != keys[j].month {
			return keys[i].month < keys[j].month
		}
		return keys[i].day < keys[j].day
	})

	out := make([]location.DailyStatistic, 0, len(keys))
	for _, k := range keys {
		acc := a.days[k]
		out = append(out, location.DailyStatistic{
			UserID:           a.userID,
			Year:             k.year,
			Month:            int(k.month),
			Day:              k.day,
			DistanceMeters:   acc.distance,
			VisitedCountries: visited(acc.countries, a.opts.MinCountry),
			VisitedCities:    visited(acc.cities, a.opts.MinCity),
		})
	}
	return out
}

// visited returns names whose presence exceeds threshold, sorted
func visited(presence map[string]time.Duration, threshold time.Duration) []string {
	names := []string{}
	for name, d := range presence {
		if d > threshold {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// StatisticsStore is the storage the statistics job needs
type StatisticsStore interface {
	CountPoints(ctx context.Context, userID string, f location.PointFilter) (int, error)
	EachPoint(ctx context.Context, userID string, f location.PointFilter, pageSize int, fn func(location.Point) error) error
	DeleteDailyStatistics(ctx context.Context, userID string) error
	InsertDailyStatistics(ctx context.Context, stats []location.DailyStatistic) error
}

// StatisticsJob rebuilds a user's daily statistics from scratch.
// Checkpoints: between points while scanning and between row batches while persisting.
type StatisticsJob struct {
	store  StatisticsStore
	opts   StatisticsOptions
	logger *zap.SugaredLogger
}

// NewStatisticsJob creates the runner directly, bypassing the catalog
func NewStatisticsJob(store StatisticsStore, opts StatisticsOptions, log *zap.SugaredLogger) *StatisticsJob {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StatisticsJob{store: store, opts: opts, logger: log}
}

// errCheckpoint ends a scan early at a stop checkpoint
var errCheckpoint = errors.New("stop requested")

func (s *StatisticsJob) Run(ctx context.Context, job *async.Job) error {
	userID := job.UserID()
	log := logger.ChildLogger(s.logger, logger.FieldJobID, job.ID(), logger.FieldUserID, userID)
	emitter := job.Emitter()

	total, err := s.store.CountPoints(ctx, userID, location.AllPoints)
	if err != nil {
		return err
	}

	if err := s.store.DeleteDailyStatistics(ctx, userID); err != nil {
		return err
	}

	emitter.EmitStage("scan", "Aggregating points")
	agg := NewStatisticsAggregator(userID, s.opts)
	processed := 0
	err = s.store.EachPoint(ctx, userID, location.AllPoints, s.opts.PageSize, func(p location.Point) error {
		if shouldStop(ctx, job) {
			return errCheckpoint
		}
		agg.Add(p)
		processed++
		if total > 0 {
			job.SetProgress(util.Lerp(0, scanShare, float64(processed)/float64(total)))
		}
		return nil
	})
	if errors.Is(err, errCheckpoint) {
		log.Infow("Statistics scan stopped", logger.FieldCount, processed)
		return stopped(ctx, job)
	}
	if err != nil {
		return err
	}
	job.SetProgress(scanShare)

	emitter.EmitStage("persist", "Writing daily statistics")
	rows := agg.Results()
	written := 0
	for start := 0; start < len(rows); start += s.batchSize() {
		if shouldStop(ctx, job) {
			log.Infow("Statistics persist stopped", "rows_written", written, "rows_total", len(rows))
			return stopped(ctx, job)
		}
		end := min(start+s.batchSize(), len(rows))
		if err := s.store.InsertDailyStatistics(ctx, rows[start:end]); err != nil {
			return err
		}
		written = end
		job.SetProgress(util.Lerp(scanShare, 1, float64(written)/float64(len(rows))))
	}

	log.Infow("Statistics generated", "points", processed, "days", len(rows))
	emitter.EmitComplete(map[string]interface{}{"points": processed, "days": len(rows)})
	return nil
}

func (s *StatisticsJob) batchSize() int {
	if s.opts.BatchSize <= 0 {
		return 500
	}
	return s.opts.BatchSize
}
