package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

// SpeedStore is the storage the speed job needs
type SpeedStore interface {
	CountPoints(ctx context.Context, userID string, f location.PointFilter) (int, error)
	EachPoint(ctx context.Context, userID string, f location.PointFilter, pageSize int, fn func(location.Point) error) error
	UpdateSpeeds(ctx context.Context, updates []location.SpeedUpdate) error
}

// FillSpeedJob derives speed for points that have none from the distance and
// time to the previous point. Points with a recorded speed are left alone, so
// reruns only touch new points. Checkpoint: between points.
type FillSpeedJob struct {
	store     SpeedStore
	batchSize int
	logger    *zap.SugaredLogger
}

// NewFillSpeedJob creates the runner directly, bypassing the catalog
func NewFillSpeedJob(store SpeedStore, batchSize int, log *zap.SugaredLogger) *FillSpeedJob {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FillSpeedJob{store: store, batchSize: batchSize, logger: log}
}

// SpeedBetween returns meters per second from prev to cur, false when no time elapsed
func SpeedBetween(prev, cur location.Point) (float64, bool) {
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return prev.DistanceTo(cur) / dt, true
}

func (f *FillSpeedJob) Run(ctx context.Context, job *async.Job) error {
	userID := job.UserID()
	log := logger.ChildLogger(f.logger, logger.FieldJobID, job.ID(), logger.FieldUserID, userID)

	total, err := f.store.CountPoints(ctx, userID, location.AllPoints)
	if err != nil {
		return err
	}

	size := f.batchSize
	if size <= 0 {
		size = 500
	}
	buffer := NewBatchBuffer(size, func(ctx context.Context, batch []location.SpeedUpdate) error {
		return errors.Wrapf(f.store.UpdateSpeeds(ctx, batch), "commit %d speeds", len(batch))
	})

	var prev *location.Point
	var processed, filled int
	err = f.store.EachPoint(ctx, userID, location.AllPoints, 1000, func(p location.Point) error {
		if shouldStop(ctx, job) {
			return errCheckpoint
		}
		processed++
		job.SetProgress(float64(processed) / float64(total))

		if p.Speed == nil && prev != nil {
			if speed, ok := SpeedBetween(*prev, p); ok {
				filled++
				if err := buffer.Add(ctx, location.SpeedUpdate{PointID: p.ID, Speed: speed}); err != nil {
					return err
				}
			}
		}
		prev = &p
		return nil
	})

	checkpoint := errors.Is(err, errCheckpoint)
	if err != nil && !checkpoint {
		return err
	}
	if err := buffer.Flush(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if checkpoint {
		log.Infow("Speed fill stopped", "points", processed, "filled", filled)
		return stopped(ctx, job)
	}

	log.Infow("Speed fill finished", "points", processed, "filled", filled)
	job.Emitter().EmitComplete(map[string]interface{}{"points": processed, "filled": filled})
	return nil
}
