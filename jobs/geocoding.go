package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/geocode"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
	"github.com/teranos/waypoint/pulse/budget"
)

// DefaultGeocodingBufferSize is the number of responses committed per transaction
const DefaultGeocodingBufferSize = 100

// GeocodingStore is the storage the geocoding job needs
type GeocodingStore interface {
	CountPoints(ctx context.Context, userID string, f location.PointFilter) (int, error)
	EachPoint(ctx context.Context, userID string, f location.PointFilter, pageSize int, fn func(location.Point) error) error
	UpdateAddresses(ctx context.Context, updates []location.AddressUpdate) error
}

// geocoded pairs a point with its provider response
type geocoded struct {
	pointID  int64
	response *geocode.Response
}

// GeocodingJob reverse geocodes a user's points that have no address yet.
// One provider call per point; responses are buffered and committed per batch.
// Checkpoint: between points. A failed call leaves the point for the next run.
type GeocodingJob struct {
	store      GeocodingStore
	geocoder   geocode.Reverser
	bufferSize int
	logger     *zap.SugaredLogger
}

// NewGeocodingJob creates the runner directly, bypassing the catalog
func NewGeocodingJob(store GeocodingStore, geocoder geocode.Reverser, bufferSize int, log *zap.SugaredLogger) *GeocodingJob {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &GeocodingJob{store: store, geocoder: geocoder, bufferSize: bufferSize, logger: log}
}

func (g *GeocodingJob) Run(ctx context.Context, job *async.Job) error {
	userID := job.UserID()
	log := logger.ChildLogger(g.logger, logger.FieldJobID, job.ID(), logger.FieldUserID, userID)

	total, err := g.store.CountPoints(ctx, userID, location.NeedsGeocoding)
	if err != nil {
		return err
	}
	if total == 0 {
		log.Debugw("No points need geocoding")
		return nil
	}

	size := g.bufferSize
	if size <= 0 {
		size = DefaultGeocodingBufferSize
	}
	buffer := NewBatchBuffer(size, func(ctx context.Context, batch []geocoded) error {
		updates := make([]location.AddressUpdate, len(batch))
		for i, r := range batch {
			updates[i] = location.AddressUpdate{PointID: r.pointID, Address: r.response.Address()}
		}
		if err := g.store.UpdateAddresses(ctx, updates); err != nil {
			return errors.Wrapf(err, "commit %d geocoded points", len(batch))
		}
		log.Debugw("Geocoded batch committed", logger.FieldBatchSize, len(batch))
		return nil
	})

	job.Emitter().EmitStage("geocode", "Reverse geocoding points")
	var processed, failed int
	var quotaErr error
	err = g.store.EachPoint(ctx, userID, location.NeedsGeocoding, size, func(p location.Point) error {
		if shouldStop(ctx, job) {
			return errCheckpoint
		}

		resp, err := g.geocoder.Reverse(ctx, p.Latitude, p.Longitude)
		processed++
		job.SetProgress(float64(processed) / float64(total))
		switch {
		case errors.Is(err, budget.ErrQuotaExceeded):
			quotaErr = err
			return errCheckpoint
		case err != nil:
			if shouldStop(ctx, job) {
				return errCheckpoint
			}
			failed++
			log.Warnw("Reverse geocoding failed, point skipped",
				logger.FieldPointID, p.ID,
				logger.FieldError, err)
			return nil
		}
		return buffer.Add(ctx, geocoded{pointID: p.ID, response: resp})
	})

	checkpoint := errors.Is(err, errCheckpoint)
	if err != nil && !checkpoint {
		return err
	}

	// Responses already paid for are committed even when stopping.
	if err := buffer.Flush(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	summary := map[string]interface{}{
		"points":  processed,
		"failed":  failed,
		"batches": buffer.Flushes(),
	}
	switch {
	case quotaErr != nil:
		log.Warnw("Geocoding quota exhausted, remaining points wait for the next run",
			logger.FieldError, quotaErr,
			"points", processed)
		job.Emitter().EmitInfo("geocoding quota exhausted")
		return nil
	case checkpoint:
		log.Infow("Geocoding stopped", "points", processed, "batches", buffer.Flushes())
		return stopped(ctx, job)
	}

	log.Infow("Geocoding finished", "points", processed, "failed", failed, "batches", buffer.Flushes())
	job.Emitter().EmitComplete(summary)
	return nil
}
