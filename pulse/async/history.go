package async

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/waypoint/errors"
)

// JobRun is the persisted record of a finished job
type JobRun struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	UserID     string     `json:"user,omitempty"`
	Category   string     `json:"category"`
	State      JobState   `json:"state"`
	Progress   float64    `json:"progress"`
	Error      string     `json:"error,omitempty"`
	ErrorCode  ErrorCode  `json:"error_code,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
}

// HistoryRecorder persists finished jobs. The in-memory queue itself is never persisted.
type HistoryRecorder interface {
	Record(ctx context.Context, run JobRun) error
	List(ctx context.Context, limit int) ([]JobRun, error)
}

// runFromJob builds the history record of a terminal job
func runFromJob(j *Job) JobRun {
	run := JobRun{
		ID:         j.ID(),
		Type:       j.Type(),
		UserID:     j.UserID(),
		Category:   j.Category().String(),
		State:      j.State(),
		Progress:   j.Progress(),
		FinishedAt: j.FinishedAt(),
	}
	if started := j.StartedAt(); !started.IsZero() {
		run.StartedAt = &started
	}
	if err := j.Err(); err != nil {
		run.Error = err.Error()
		run.ErrorCode = ClassifyError(err)
	} else if j.StopRequested() {
		run.ErrorCode = ErrorCodeCancelled
	}
	return run
}

// HistoryStore keeps job runs in the job_runs table, pruned to a fixed size
type HistoryStore struct {
	db    *sql.DB
	limit int
}

// NewHistoryStore creates a store keeping at most limit runs; limit <= 0 keeps everything
func NewHistoryStore(db *sql.DB, limit int) *HistoryStore {
	return &HistoryStore{db: db, limit: limit}
}

// Record inserts a run and prunes the oldest rows beyond the limit
func (s *HistoryStore) Record(ctx context.Context, run JobRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin job history tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO job_runs
			(id, job_type, user_id, category, state, progress, error, error_code, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Type, nullString(run.UserID), run.Category, string(run.State), run.Progress,
		nullString(run.Error), nullString(string(run.ErrorCode)), nullTime(run.StartedAt), run.FinishedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "insert job run %s", run.ID)
	}

	if s.limit > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM job_runs WHERE id NOT IN (
				SELECT id FROM job_runs ORDER BY finished_at DESC LIMIT ?
			)`, s.limit)
		if err != nil {
			return errors.Wrap(err, "prune job runs")
		}
	}

	return errors.Wrap(tx.Commit(), "commit job run")
}

// List returns the most recent runs, newest first
func (s *HistoryStore) List(ctx context.Context, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_type, user_id, category, state, progress, error, error_code, started_at, finished_at
		FROM job_runs
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query job runs")
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var (
			run                     JobRun
			userID, errMsg, errCode sql.NullString
			state                   string
			startedAt               sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Type, &userID, &run.Category, &state, &run.Progress,
			&errMsg, &errCode, &startedAt, &run.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "scan job run")
		}
		run.UserID = userID.String
		run.State = JobState(state)
		run.Error = errMsg.String
		run.ErrorCode = ErrorCode(errCode.String)
		if startedAt.Valid {
			t := startedAt.Time
			run.StartedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "iterate job runs")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
