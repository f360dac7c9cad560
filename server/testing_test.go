package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

// waitRunner runs until stopped
func waitRunner(async.Params) (async.Runner, error) {
	return async.RunnerFunc(func(ctx context.Context, job *async.Job) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil
}

func testCatalog() *async.Catalog {
	c := async.NewCatalog()
	c.Register(async.JobType{
		Name:     "Sleep",
		Category: async.Named("sleep"),
		Build:    waitRunner,
	})
	c.Register(async.JobType{
		Name:     "Scale",
		Category: async.Exclusive,
		Params:   []async.ParamSpec{{Name: "factor", Type: async.ParamFloat}},
		Build:    waitRunner,
	})
	return c
}

type testEnv struct {
	server  *Server
	manager *async.Manager
	store   *location.Store
	http    *httptest.Server
}

// newTestEnv wires a server to a migrated database. With workers 0 the
// scheduler is not started and submitted jobs stay queued.
func newTestEnv(t *testing.T, workers int) *testEnv {
	t.Helper()

	db := wptest.CreateMigratedTestDB(t)
	store := location.NewStore(db)

	m := async.NewManager(async.ManagerConfig{Workers: workers, PollInterval: 5 * time.Millisecond}, testCatalog(), createTestLogger())
	m.SetHistory(async.NewHistoryStore(db, 100))
	if workers > 0 {
		require.NoError(t, m.Start(context.Background()))
	}
	t.Cleanup(func() { m.Stop(true) })

	s, err := New(Config{Manager: m, Store: store, Logger: createTestLogger()})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	return &testEnv{server: s, manager: m, store: store, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
