package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// createTestLogger creates a no-op logger for testing
func createTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// gateRunner blocks until released or stopped
type gateRunner struct {
	calls     atomic.Int32
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
	err       error
}

func newGateRunner() *gateRunner {
	return &gateRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateRunner) Run(ctx context.Context, job *Job) error {
	g.calls.Add(1)
	g.startOnce.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gateRunner) Release() {
	close(g.release)
}

// recordingHistory keeps runs in memory
type recordingHistory struct {
	mu   sync.Mutex
	runs []JobRun
}

func (h *recordingHistory) Record(_ context.Context, run JobRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return nil
}

func (h *recordingHistory) List(_ context.Context, limit int) ([]JobRun, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]JobRun, len(h.runs))
	copy(out, h.runs)
	return out, nil
}

func (h *recordingHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}

func newTestManager(workers int) *Manager {
	return NewManager(ManagerConfig{Workers: workers, PollInterval: 5 * time.Millisecond}, nil, createTestLogger())
}

func waitTerminal(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("job %s did not reach a terminal state (state=%s)", job.Type(), job.State())
	}
}

func requireRunning(t *testing.T, m *Manager, jobs ...*Job) {
	t.Helper()
	for _, job := range jobs {
		require.Equal(t, JobStateRunning, job.State(), "job %s", job.Type())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.running, len(jobs))
}
