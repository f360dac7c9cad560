package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	wptest "github.com/teranos/waypoint/internal/testing"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/pulse/async"
)

// createTestLogger creates a no-op logger for testing
func createTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestStore(t *testing.T) (*location.Store, string) {
	t.Helper()
	store := location.NewStore(wptest.CreateMigratedTestDB(t))
	user, err := store.CreateUser(context.Background(), "traveller@example.com", false)
	require.NoError(t, err)
	return store, user.ID
}

// runJob executes runner synchronously as userID's job
func runJob(t *testing.T, typeName, userID string, runner async.Runner) *async.Job {
	t.Helper()
	job := async.NewJob(typeName, userID, async.None, runner)
	async.Execute(context.Background(), job, createTestLogger(), nil)
	return job
}

func requireDone(t *testing.T, job *async.Job) {
	t.Helper()
	require.Equal(t, async.JobStateDone, job.State(), "job error: %v", job.Err())
}

// trackPoint builds a point with an optional place
func trackPoint(userID string, ts time.Time, lat, lon float64, country, city string) location.Point {
	return location.Point{
		UserID:    userID,
		Timestamp: ts,
		Latitude:  lat,
		Longitude: lon,
		Address:   location.Address{Country: country, City: city},
	}
}

func insertPoints(t *testing.T, store *location.Store, points ...location.Point) {
	t.Helper()
	_, err := store.InsertPoints(context.Background(), points)
	require.NoError(t, err)
}
