package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/db"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/logger"
)

// ManagerConfig configures the scheduler
type ManagerConfig struct {
	Workers      int            // Max concurrently running jobs; 0 queues without running
	PollInterval time.Duration  // Control loop interval
	Location     *time.Location // Calendar used to detect day changes
	Clock        func() time.Time
}

// DefaultManagerConfig returns one worker polling every 100ms in UTC
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Workers:      1,
		PollInterval: 100 * time.Millisecond,
		Location:     time.UTC,
		Clock:        time.Now,
	}
}

// DayChangeFunc runs on the control loop when the calendar day changes
type DayChangeFunc func(ctx context.Context, day time.Time)

// Manager owns the queue of pending jobs and the running set.
// Only the control loop promotes and reaps; Enqueue and Cancel are the
// mutex-guarded entry points for everyone else.
type Manager struct {
	cfg     ManagerConfig
	catalog *Catalog
	history HistoryRecorder
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	queue      []*Job
	running    []*Job
	maxWorkers int
	dayHooks   []DayChangeFunc
	lastDay    int
	started    bool
	stopping   bool

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a stopped scheduler. catalog may be nil when jobs are
// only ever enqueued pre-built.
func NewManager(cfg ManagerConfig, catalog *Catalog, log *zap.SugaredLogger) *Manager {
	defaults := DefaultManagerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.Workers < 0 {
		cfg.Workers = 0
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		catalog:    catalog,
		logger:     log.Named("pulse"),
		maxWorkers: cfg.Workers,
		ctx:        ctx,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
	}
}

// SetHistory attaches the finished-job recorder. Call before Start.
func (m *Manager) SetHistory(h HistoryRecorder) {
	m.history = h
}

// Catalog returns the catalog used by Submit
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// OnDayChange registers a hook fired once per calendar-day boundary
func (m *Manager) OnDayChange(fn DayChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dayHooks = append(m.dayHooks, fn)
}

// SetMaxWorkers resizes the worker budget. Running jobs are never preempted.
func (m *Manager) SetMaxWorkers(n int) {
	if n < 0 {
		n = 0
	}
	m.mu.Lock()
	previous := m.maxWorkers
	m.maxWorkers = n
	m.mu.Unlock()

	if previous != n {
		m.logger.Infow("Worker budget changed", "from", previous, logger.FieldWorkers, n)
	}
}

// Workers returns the current worker budget
func (m *Manager) Workers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxWorkers
}

// Start launches the control loop. The loop ends when ctx is cancelled or
// Stop is called; cancelling ctx also cancels every running job's context.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("scheduler already started")
	}
	if m.stopping {
		m.mu.Unlock()
		return errors.Wrap(errors.ErrServiceUnavailable, "scheduler was stopped")
	}
	context.AfterFunc(ctx, m.cancel)
	m.started = true
	m.lastDay = m.now().In(m.cfg.Location).Day()
	workers := m.maxWorkers
	m.mu.Unlock()

	if warning := m.checkMemoryPressure(); warning != "" {
		m.logger.Warnw("Memory pressure warning", "warning", warning, logger.FieldWorkers, workers)
	}

	m.logger.Infow("Scheduler started",
		logger.FieldWorkers, workers,
		"poll_interval", m.cfg.PollInterval,
		"timezone", m.cfg.Location.String())

	go m.loop()
	return nil
}

func (m *Manager) loop() {
	defer close(m.loopDone)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.safeTick()
		}
	}
}

// safeTick keeps the loop alive across bookkeeping panics
func (m *Manager) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError(r)
			m.logger.Errorw("Scheduler iteration panicked",
				logger.FieldError, pe.Error(),
				logger.FieldStack, string(pe.Stack))
		}
	}()
	m.tick(m.now())
}

// tick is one control loop iteration: promote, reap, then the day check
func (m *Manager) tick(now time.Time) {
	m.promote(now)
	m.reap()
	m.checkDayChange(now)
}

// promote scans the queue in FIFO order and launches every admissible job
// while the worker budget allows. Jobs launched earlier in the same pass
// count against admission of later ones.
func (m *Manager) promote(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping || len(m.queue) == 0 {
		return
	}

	remaining := make([]*Job, 0, len(m.queue))
	for _, job := range m.queue {
		if len(m.running) < m.maxWorkers && Admit(job, m.running) {
			m.launch(job, now)
			continue
		}
		remaining = append(remaining, job)
	}
	m.queue = remaining
}

// launch must be called with mu held
func (m *Manager) launch(job *Job, now time.Time) {
	ctx, err := job.start(m.ctx, now)
	if err != nil {
		m.logger.Errorw("Dropping job that cannot start", logger.FieldJobID, job.ID(), logger.FieldError, err)
		return
	}
	m.running = append(m.running, job)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		runStarted(ctx, job, m.jobLogger(job), m.now)
		m.record(job)
	}()
}

// reap drops terminal jobs from the running set, releasing their slots
func (m *Manager) reap() {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.running[:0]
	for _, job := range m.running {
		if job.State().IsTerminal() {
			m.logger.Debugw("Reaped job", logger.FieldJobID, job.ID(), logger.FieldState, job.State())
			continue
		}
		kept = append(kept, job)
	}
	for i := len(kept); i < len(m.running); i++ {
		m.running[i] = nil
	}
	m.running = kept
}

func (m *Manager) checkDayChange(now time.Time) {
	local := now.In(m.cfg.Location)

	m.mu.Lock()
	if local.Day() == m.lastDay || m.stopping {
		m.mu.Unlock()
		return
	}
	m.lastDay = local.Day()
	hooks := make([]DayChangeFunc, len(m.dayHooks))
	copy(hooks, m.dayHooks)
	ctx := m.ctx
	m.mu.Unlock()

	m.logger.Infow("Calendar day changed", "day", local.Format("2006-01-02"))
	for _, hook := range hooks {
		hook(ctx, local)
	}
}

// Enqueue appends a queued job to the tail of the queue. No admission check
// happens here; the control loop decides when it runs.
func (m *Manager) Enqueue(job *Job) error {
	if job == nil {
		return errors.Wrap(errors.ErrInvalidRequest, "nil job")
	}
	if state := job.State(); state != JobStateQueued {
		return errors.Wrapf(errors.ErrInvalidRequest, "job %s is %s, only queued jobs can be enqueued", job.ID(), state)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return errors.Wrap(errors.ErrServiceUnavailable, "scheduler is stopping")
	}
	m.queue = append(m.queue, job)

	m.logger.Debugw("Job enqueued",
		logger.FieldJobID, job.ID(),
		logger.FieldJobType, job.Type(),
		logger.FieldUserID, job.UserID(),
		logger.FieldCategory, job.Category().String(),
		"queue_length", len(m.queue))
	return nil
}

// Submit builds a job through the catalog and enqueues it.
// Validation failures unwrap to errors.ErrInvalidRequest and carry a *ParamError.
func (m *Manager) Submit(typeName string, params map[string]interface{}, userID string) (*Job, error) {
	job, err := m.catalog.Build(typeName, params, userID)
	if err != nil {
		return nil, err
	}
	if err := m.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel stops a running job or removes a queued one before it ever runs.
// With blocking set, a running job is waited on until terminal, without timeout.
// Returns false when no queued or running job has that id.
func (m *Manager) Cancel(id string, blocking bool) bool {
	m.mu.Lock()
	var target, dequeued *Job
	for _, job := range m.running {
		if job.ID() == id {
			target = job
			break
		}
	}
	if target == nil {
		for i, job := range m.queue {
			if job.ID() == id {
				dequeued = job
				m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	switch {
	case dequeued != nil:
		dequeued.abandon(m.now())
		m.logger.Infow("Cancelled queued job", logger.FieldJobID, id, logger.FieldJobType, dequeued.Type())
		m.record(dequeued)
		return true

	case target != nil:
		m.logger.Infow("Stop requested", logger.FieldJobID, id, logger.FieldJobType, target.Type(), "blocking", blocking)
		target.RequestStop()
		if blocking {
			<-target.Done()
		}
		return true
	}
	return false
}

// Get returns the queued or running job with id
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.queue {
		if job.ID() == id {
			return job, true
		}
	}
	for _, job := range m.running {
		if job.ID() == id {
			return job, true
		}
	}
	return nil, false
}

// ListJobs snapshots every queued and running job, queue first
func (m *Manager) ListJobs() []JobSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]JobSnapshot, 0, len(m.queue)+len(m.running))
	for _, job := range m.queue {
		out = append(out, job.Snapshot())
	}
	for _, job := range m.running {
		out = append(out, job.Snapshot())
	}
	return out
}

// HasPending reports whether a non-terminal job of typeName exists for userID.
// The check is scoped to exactly that owner.
func (m *Manager) HasPending(userID, typeName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, jobs := range [][]*Job{m.queue, m.running} {
		for _, job := range jobs {
			if job.Type() == typeName && job.UserID() == userID && !job.State().IsTerminal() {
				return true
			}
		}
	}
	return false
}

// History returns recently finished jobs, newest first
func (m *Manager) History(ctx context.Context, limit int) ([]JobRun, error) {
	if m.history == nil {
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "job history is not configured")
	}
	return m.history.List(ctx, limit)
}

// Stop clears the queue, asks every running job to stop and ends the control
// loop. With blocking set it returns only after the loop has exited and every
// running job is terminal.
func (m *Manager) Stop(blocking bool) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		if blocking {
			m.waitStopped()
		}
		return
	}
	m.stopping = true
	dropped := m.queue
	m.queue = nil
	running := make([]*Job, len(m.running))
	copy(running, m.running)
	m.mu.Unlock()

	m.logger.Infow("Scheduler stopping",
		"dropped_queued", len(dropped),
		"running", len(running),
		"blocking", blocking)

	now := m.now()
	for _, job := range dropped {
		job.abandon(now)
		m.record(job)
	}
	for _, job := range running {
		job.RequestStop()
	}
	m.cancel()

	if blocking {
		m.waitStopped()
	}
}

// Shutdown stops the scheduler and waits for jobs until ctx expires
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Stop(false)

	done := make(chan struct{})
	go func() {
		m.waitStopped()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Infow("Scheduler stopped, all jobs exited")
		return nil
	case <-ctx.Done():
		m.logger.Warnw("Scheduler shutdown timed out, jobs may still be running", logger.FieldError, ctx.Err())
		return errors.Wrap(ctx.Err(), "scheduler shutdown")
	}
}

func (m *Manager) waitStopped() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	if started {
		<-m.loopDone
	}
	m.wg.Wait()
	m.reap()
}

func (m *Manager) record(job *Job) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.history.Record(ctx, runFromJob(job)); err != nil {
		if db.IsDatabaseClosed(err) {
			m.logger.Debugw("Job history skipped, database closed", logger.FieldJobID, job.ID())
			return
		}
		m.logger.Warnw("Failed to record job history", logger.FieldJobID, job.ID(), logger.FieldError, err)
	}
}

func (m *Manager) jobLogger(job *Job) *zap.SugaredLogger {
	return logger.ChildLogger(m.logger,
		logger.FieldJobID, job.ID(),
		logger.FieldJobType, job.Type(),
		logger.FieldUserID, job.UserID())
}

func (m *Manager) now() time.Time {
	return m.cfg.Clock()
}

// Execute runs job on the calling goroutine: Queued to Running, the body,
// then the terminal state. Errors and panics from the body mark the job
// Failed and are logged with a stack trace; they are never retried.
func Execute(ctx context.Context, job *Job, log *zap.SugaredLogger, clock func() time.Time) JobState {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	runCtx, err := job.start(ctx, clock())
	if err != nil {
		log.Errorw("Job cannot start", logger.FieldError, err)
		return job.State()
	}
	return runStarted(runCtx, job, log, clock)
}

// runStarted executes the body of a job already moved to Running
func runStarted(runCtx context.Context, job *Job, log *zap.SugaredLogger, clock func() time.Time) JobState {
	log.Infow("Job started", logger.FieldCategory, job.Category().String())
	runErr := runBody(runCtx, job)
	state := job.finish(runErr, clock())
	elapsed := job.FinishedAt().Sub(job.StartedAt())

	if state == JobStateFailed {
		fields := []interface{}{
			logger.FieldError, fmt.Sprintf("%+v", runErr),
			logger.FieldErrorCode, ClassifyError(runErr),
			logger.FieldDurationMS, elapsed.Milliseconds(),
		}
		var pe *PanicError
		if errors.As(runErr, &pe) {
			fields = append(fields, logger.FieldStack, string(pe.Stack))
		}
		log.Errorw("Job failed", fields...)
		job.Emitter().EmitError(job.Type(), runErr)
		return state
	}

	log.Infow("Job finished",
		logger.FieldState, state,
		logger.FieldProgress, job.Progress(),
		"stopped", job.StopRequested(),
		logger.FieldDurationMS, elapsed.Milliseconds())
	return state
}

func runBody(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return job.runner.Run(ctx, job)
}
