package async

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/waypoint/errors"
	wptest "github.com/teranos/waypoint/internal/testing"
)

func finishedJob(t *testing.T, typeName string, runErr error, finished time.Time) *Job {
	t.Helper()
	job := NewJob(typeName, "alice", Named("statistics"), nil)
	_, err := job.start(context.Background(), finished.Add(-time.Minute))
	require.NoError(t, err)
	job.SetProgress(0.5)
	job.finish(runErr, finished)
	return job
}

func TestHistoryStoreRecordAndList(t *testing.T) {
	db := wptest.CreateMigratedTestDB(t)
	store := NewHistoryStore(db, 0)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ok := finishedJob(t, "GenerateFullStatistics", nil, base)
	failed := finishedJob(t, "Geocoding", errors.New("unexpected status Bad Gateway"), base.Add(time.Minute))

	require.NoError(t, store.Record(ctx, runFromJob(ok)))
	require.NoError(t, store.Record(ctx, runFromJob(failed)))

	runs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, failed.ID(), runs[0].ID, "newest first")
	assert.Equal(t, JobStateFailed, runs[0].State)
	assert.Equal(t, ErrorCodeNetwork, runs[0].ErrorCode)
	assert.Equal(t, 0.5, runs[0].Progress)

	assert.Equal(t, ok.ID(), runs[1].ID)
	assert.Equal(t, JobStateDone, runs[1].State)
	assert.Equal(t, 1.0, runs[1].Progress)
	assert.Equal(t, "alice", runs[1].UserID)
	assert.Equal(t, "named:statistics", runs[1].Category)
	require.NotNil(t, runs[1].StartedAt)
	assert.True(t, runs[1].FinishedAt.Equal(base))
}

func TestHistoryStorePrunesToLimit(t *testing.T) {
	db := wptest.CreateMigratedTestDB(t)
	store := NewHistoryStore(db, 2)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var last *Job
	for i := 0; i < 4; i++ {
		last = finishedJob(t, "FillSpeed", nil, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Record(ctx, runFromJob(last)))
	}

	runs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, last.ID(), runs[0].ID)
}

func TestHistoryStoreInsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR REPLACE INTO job_runs")).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	store := NewHistoryStore(db, 10)
	job := finishedJob(t, "Geocoding", nil, time.Now())
	err = store.Record(context.Background(), runFromJob(job))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert job run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerHistoryWithoutStore(t *testing.T) {
	m := newTestManager(1)
	_, err := m.History(context.Background(), 5)
	assert.True(t, errors.IsServiceUnavailableError(err))
}
