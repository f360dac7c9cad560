// Package async runs background jobs in-process. A single control loop admits
// queued jobs under per-user concurrency categories and a worker budget, runs
// each on its own goroutine and reaps them when they reach a terminal state.
package async

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/internal/util"
	"github.com/teranos/waypoint/pulse"
)

// JobState represents the lifecycle position of a job
type JobState string

const (
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// IsTerminal reports whether the job will never run again
func (s JobState) IsTerminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// ErrCancelledBeforeStart is recorded on jobs removed from the queue by Cancel or Stop
var ErrCancelledBeforeStart = errors.New("job cancelled before start")

// Runner is the type-specific body of a job.
// Run is called exactly once. Implementations report progress through
// job.SetProgress and return early once job.StopRequested() is true or ctx is done.
type Runner interface {
	Run(ctx context.Context, job *Job) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, job *Job) error

// Run calls f(ctx, job)
func (f RunnerFunc) Run(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Job is one unit of background work.
// Identity fields are immutable; progress and the stop flag are atomics written
// by the job body; state transitions are guarded by mu.
type Job struct {
	id       string
	typeName string
	userID   string
	category Category
	runner   Runner
	emitter  pulse.ProgressEmitter

	progress      atomic.Uint64 // math.Float64bits
	stopRequested atomic.Bool

	mu         sync.Mutex
	state      JobState
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	err        error
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewJob creates a queued job. An empty userID marks a global job.
func NewJob(typeName, userID string, category Category, runner Runner) *Job {
	return &Job{
		id:        uuid.NewString(),
		typeName:  typeName,
		userID:    userID,
		category:  category,
		runner:    runner,
		emitter:   pulse.NopEmitter{},
		state:     JobStateQueued,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (j *Job) ID() string { return j.id }
func (j *Job) Type() string { return j.typeName }
func (j *Job) UserID() string { return j.userID }
func (j *Job) Category() Category { return j.category }
func (j *Job) IsGlobal() bool { return j.userID == "" }
func (j *Job) Done() <-chan struct{} { return j.done }

// SetEmitter attaches a progress emitter. Must be called before the job starts.
func (j *Job) SetEmitter(e pulse.ProgressEmitter) {
	if e == nil {
		e = pulse.NopEmitter{}
	}
	j.emitter = e
}

// Emitter returns the attached progress emitter, never nil
func (j *Job) Emitter() pulse.ProgressEmitter {
	return j.emitter
}

// Progress returns completion in [0, 1]
func (j *Job) Progress() float64 {
	return math.Float64frombits(j.progress.Load())
}

// SetProgress records completion. Values are clamped to [0, 1] and
// never move backwards.
func (j *Job) SetProgress(p float64) {
	if math.IsNaN(p) {
		p = 0
	}
	p = util.Clamp(p, 0, 1)
	for {
		old := j.progress.Load()
		if math.Float64frombits(old) >= p {
			return
		}
		if j.progress.CompareAndSwap(old, math.Float64bits(p)) {
			j.emitter.EmitProgress(p, nil)
			return
		}
	}
}

// StopRequested reports whether a cooperative stop was asked for
func (j *Job) StopRequested() bool {
	return j.stopRequested.Load()
}

// RequestStop sets the stop flag and cancels the job's context when running
func (j *Job) RequestStop() {
	j.stopRequested.Store(true)

	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the job is terminal or ctx is done
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the captured error of a failed job
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// StartedAt returns the start time; zero while queued
func (j *Job) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// FinishedAt returns the time the job became terminal; zero before that
func (j *Job) FinishedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}

// start moves Queued to Running and derives the job context from parent
func (j *Job) start(parent context.Context, now time.Time) (context.Context, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != JobStateQueued {
		return nil, errors.AssertionFailedf("job %s cannot start from state %s", j.id, j.state)
	}

	ctx, cancel := context.WithCancel(parent)
	j.state = JobStateRunning
	j.startedAt = now
	j.cancel = cancel

	if j.stopRequested.Load() {
		cancel()
	}
	return ctx, nil
}

// finish records the outcome of Run. A context cancellation caused by a
// requested stop counts as a clean exit.
func (j *Job) finish(runErr error, now time.Time) JobState {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.IsTerminal() {
		return j.state
	}

	stopped := j.stopRequested.Load()
	switch {
	case runErr == nil:
		j.state = JobStateDone
		if !stopped {
			j.progress.Store(math.Float64bits(1))
		}
	case stopped && errors.Is(runErr, context.Canceled):
		j.state = JobStateDone
	default:
		j.state = JobStateFailed
		j.err = runErr
	}

	j.finishedAt = now
	if j.cancel != nil {
		j.cancel()
	}
	close(j.done)
	return j.state
}

// abandon terminates a job that never left the queue
func (j *Job) abandon(now time.Time) {
	j.stopRequested.Store(true)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobStateQueued {
		return
	}
	j.state = JobStateFailed
	j.err = ErrCancelledBeforeStart
	j.finishedAt = now
	close(j.done)
}

// JobSnapshot is a point-in-time view of a queued or running job
type JobSnapshot struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user,omitempty"`
	Type      string     `json:"type"`
	Category  string     `json:"category"`
	Running   bool       `json:"running"`
	Progress  float64    `json:"progress"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	State     JobState   `json:"state"`
}

// Snapshot captures the job for listing. Queued jobs report progress 0.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	state := j.state
	started := j.startedAt
	j.mu.Unlock()

	snap := JobSnapshot{
		ID:       j.id,
		UserID:   j.userID,
		Type:     j.typeName,
		Category: j.category.String(),
		Running:  state == JobStateRunning,
		State:    state,
	}
	if state != JobStateQueued {
		snap.Progress = j.Progress()
		snap.StartedAt = &started
	}
	return snap
}
