package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

// FilterStore is the storage the cleanup jobs need
type FilterStore interface {
	DeletePointsAboveAccuracy(ctx context.Context, userID string, maxAccuracy float64) (int64, error)
	DeleteZeroPoints(ctx context.Context, userID string) (int64, error)
}

// FilterLargeAccuracyJob deletes points whose horizontal accuracy is worse than maxAccuracy.
// A single statement; there is no checkpoint.
type FilterLargeAccuracyJob struct {
	store       FilterStore
	maxAccuracy float64
	logger      *zap.SugaredLogger
}

func (f *FilterLargeAccuracyJob) Run(ctx context.Context, job *async.Job) error {
	removed, err := f.store.DeletePointsAboveAccuracy(ctx, job.UserID(), f.maxAccuracy)
	if err != nil {
		return err
	}
	f.logger.Infow("Inaccurate points removed",
		logger.FieldJobID, job.ID(),
		logger.FieldUserID, job.UserID(),
		"max_accuracy", f.maxAccuracy,
		logger.FieldCount, removed)
	job.Emitter().EmitComplete(map[string]interface{}{"removed": removed, "max_accuracy": f.maxAccuracy})
	return nil
}

// FilterZeroPointsJob deletes points recorded at (0, 0)
type FilterZeroPointsJob struct {
	store  FilterStore
	logger *zap.SugaredLogger
}

func (f *FilterZeroPointsJob) Run(ctx context.Context, job *async.Job) error {
	removed, err := f.store.DeleteZeroPoints(ctx, job.UserID())
	if err != nil {
		return err
	}
	f.logger.Infow("Zero points removed",
		logger.FieldJobID, job.ID(),
		logger.FieldUserID, job.UserID(),
		logger.FieldCount, removed)
	job.Emitter().EmitComplete(map[string]interface{}{"removed": removed})
	return nil
}
