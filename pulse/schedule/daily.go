// Package schedule enqueues standing jobs when the scheduler's calendar day changes.
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

// UserLister returns every known user id
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// JobSubmitter is the part of async.Manager the recurrence needs
type JobSubmitter interface {
	HasPending(userID, typeName string) bool
	Submit(typeName string, params map[string]interface{}, userID string) (*async.Job, error)
}

// Daily ensures every user has one pending-or-running job of each standing type.
// It is level triggered: a type already queued or running for a user is skipped.
type Daily struct {
	users  UserLister
	jobs   JobSubmitter
	types  []string
	logger *zap.SugaredLogger
}

// Result summarizes one recurrence pass
type Result struct {
	Users    int
	Enqueued int
	Skipped  int
	Failed   int
}

// NewDaily creates the recurrence for the given standing job types
func NewDaily(users UserLister, jobs JobSubmitter, types []string, log *zap.SugaredLogger) *Daily {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Daily{
		users:  users,
		jobs:   jobs,
		types:  types,
		logger: log.Named("schedule"),
	}
}

// Attach registers the recurrence with the manager's day-change hook
func (d *Daily) Attach(m *async.Manager) {
	m.OnDayChange(func(ctx context.Context, day time.Time) {
		if _, err := d.Run(ctx, day); err != nil {
			d.logger.Errorw("Daily recurrence failed", logger.FieldError, err)
		}
	})
}

// Run enqueues the missing standing jobs for every user.
// Per-user submit failures are logged and the pass continues.
func (d *Daily) Run(ctx context.Context, day time.Time) (Result, error) {
	var res Result

	userIDs, err := d.users.ListUserIDs(ctx)
	if err != nil {
		return res, errors.Wrap(err, "failed to list users for daily recurrence")
	}
	res.Users = len(userIDs)

	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		for _, typeName := range d.types {
			if d.jobs.HasPending(userID, typeName) {
				res.Skipped++
				continue
			}
			job, err := d.jobs.Submit(typeName, nil, userID)
			if err != nil {
				res.Failed++
				d.logger.Warnw("Failed to enqueue standing job",
					logger.FieldUserID, userID,
					logger.FieldJobType, typeName,
					logger.FieldError, err)
				continue
			}
			res.Enqueued++
			d.logger.Debugw("Standing job enqueued",
				logger.FieldUserID, userID,
				logger.FieldJobType, typeName,
				logger.FieldJobID, job.ID())
		}
	}

	d.logger.Infow("Daily recurrence",
		"day", day.Format("2006-01-02"),
		"users", res.Users,
		"enqueued", res.Enqueued,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}
