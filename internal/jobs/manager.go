// Package jobs implements the bounded job execution core: a concurrency-
// safe registry of job records, a fixed worker pool draining a bounded
// admission queue, and a periodic sweeper that evicts finished records.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Progress stages reported by executors. The manager maps them onto the
// record's percentage and detail line.
const (
	StageLLMStarted = "llm_started"
	StageLLMDone    = "llm_done"
	StageBlender    = "blender"
	StageFixing     = "fixing"
)

// ProgressFunc receives pipeline stage updates bound to one record.
type ProgressFunc func(stage string, attempt, maxAttempts int)

// Executor runs one submitted job to completion. The returned Result's
// Ok decides succeeded vs failed; a returned error means the run blew up
// before producing an outcome.
type Executor interface {
	Execute(ctx context.Context, request any, progress ProgressFunc) (Result, error)
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	Workers         int           // worker goroutines, default NumCPU clamped to [1,32]
	QueueSize       int           // admission queue capacity, default 64
	FinishedTTL     time.Duration // retention for terminal records, default 1h
	CleanupInterval time.Duration // sweeper tick, default 30s
	MaxJobRecords   int           // cap on retained terminal records, default 2000
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	o.Workers = min(max(o.Workers, 1), 32)
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.FinishedTTL <= 0 {
		o.FinishedTTL = time.Hour
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 30 * time.Second
	}
	if o.MaxJobRecords <= 0 {
		o.MaxJobRecords = 2000
	}
	return o
}

// Stats is a point-in-time view of the manager's load, served by /health.
type Stats struct {
	QueueDepth int `json:"queue_depth"`
	ActiveJobs int `json:"active_jobs"`
	Records    int `json:"records"`
	Workers    int `json:"workers"`
}

// Manager tracks and executes submitted jobs.
type Manager struct {
	opts   Options
	exec   Executor
	logger *slog.Logger

	mu    sync.Mutex
	jobs  map[string]*Record
	queue chan string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewManager creates a stopped manager. Call Start to launch the worker
// pool and the cleanup sweeper.
func NewManager(exec Executor, opts Options, logger *slog.Logger) *Manager {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		exec:   exec,
		logger: logger,
		jobs:   make(map[string]*Record),
		queue:  make(chan string, opts.QueueSize),
	}
}

// Start launches the worker pool and the sweeper. Idempotent.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	for i := range m.opts.Workers {
		m.wg.Add(1)
		go m.workerLoop(ctx, i)
	}
	m.wg.Add(1)
	go m.sweepLoop(ctx)

	m.logger.Info("job manager started", "workers", m.opts.Workers, "queue_size", m.opts.QueueSize)
}

// Shutdown signals all workers and the sweeper to stop and waits for them
// to drain. In-flight executions are not force-killed; entries still in
// the queue are simply never picked up.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("job manager stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job manager shutdown: %w", ctx.Err())
	}
}

// Submit admits a new job. The capacity check, id uniqueness check and
// enqueue happen under one lock so concurrent submitters can neither
// overrun the queue nor race on an id.
func (m *Manager) Submit(request any, jobID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == cap(m.queue) {
		return nil, ErrQueueFull
	}
	id := jobID
	if id == "" {
		id = uuid.New().String()
	}
	if _, exists := m.jobs[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}

	record := newRecord(id, request, time.Now().UTC())
	m.jobs[id] = record
	m.queue <- id

	m.logger.Info("job submitted", "job_id", id, "queue_depth", len(m.queue))
	return record, nil
}

// Get retrieves a job by id.
func (m *Manager) Get(id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return record, nil
}

// Cancel cancels a queued job. Cancelling an already-terminal job is a
// no-op returning the record unchanged; cancelling a running job fails
// with ErrCannotCancelRunning.
func (m *Manager) Cancel(id string) (*Record, error) {
	record, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	cancelled, err := record.tryCancel()
	if err != nil {
		return nil, err
	}
	if cancelled {
		record.finish(time.Now().UTC())
		m.logger.Info("job cancelled", "job_id", id)
	}
	return record, nil
}

// WaitForCompletion blocks until the job reaches a terminal status, the
// timeout elapses, or ctx is cancelled. A timeout never mutates the job.
func (m *Manager) WaitForCompletion(ctx context.Context, id string, timeout time.Duration) (*Record, error) {
	record, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-record.Done():
		return record, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: job %q after %s", ErrWaitTimeout, id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns snapshots of all tracked jobs, most recent first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	records := make([]*Record, 0, len(m.jobs))
	for _, r := range m.jobs {
		records = append(records, r)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(records))
	for _, r := range records {
		out = append(out, r.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Stats reports current queue depth and record counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	records := make([]*Record, 0, len(m.jobs))
	for _, r := range m.jobs {
		records = append(records, r)
	}
	queueDepth := len(m.queue)
	total := len(m.jobs)
	m.mu.Unlock()

	active := 0
	for _, r := range records {
		if !r.Status().Terminal() {
			active++
		}
	}
	return Stats{
		QueueDepth: queueDepth,
		ActiveJobs: active,
		Records:    total,
		Workers:    m.opts.Workers,
	}
}

func (m *Manager) workerLoop(ctx context.Context, idx int) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.runJob(ctx, idx, id)
		}
	}
}

// runJob executes one dequeued job. Failures and panics are captured on
// the record; nothing a single job does may take the worker loop down.
func (m *Manager) runJob(ctx context.Context, idx int, id string) {
	record, err := m.Get(id)
	if err != nil {
		// Swept or cancelled-and-evicted between enqueue and dequeue.
		return
	}
	if !record.tryStart(time.Now().UTC()) {
		return
	}

	defer record.finish(time.Now().UTC())
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("worker recovered from panic", "worker", idx, "job_id", id, "panic", r)
			record.fail(nil, &ErrorInfo{
				Message:    fmt.Sprintf("internal panic: %v", r),
				StatusCode: 500,
				Reason:     "panic",
			}, "Internal error")
		}
	}()

	result, err := m.exec.Execute(ctx, record.Request(), m.progressFunc(record))
	switch {
	case err != nil:
		m.logger.Error("job failed", "worker", idx, "job_id", id, "error", err)
		record.fail(nil, &ErrorInfo{
			Message:    err.Error(),
			StatusCode: 500,
		}, "Error: "+truncate(err.Error(), 200))
	case result.Ok():
		m.logger.Info("job succeeded", "worker", idx, "job_id", id)
		record.succeed(result)
	default:
		reason := "attempts_exhausted"
		if f, ok := result.(Failure); ok && f.FailureReason() != "" {
			reason = f.FailureReason()
		}
		m.logger.Warn("job failed after retries", "worker", idx, "job_id", id, "reason", reason)
		record.fail(result, &ErrorInfo{
			Message:    "ring generation failed after all retries",
			StatusCode: 500,
			Reason:     reason,
		}, "Failed after retries")
	}
}

// progressFunc maps pipeline stages onto the record's progress bar the
// same way the polling clients expect: LLM generation up to 18%, Blender
// attempts spread across 20-80%.
func (m *Manager) progressFunc(record *Record) ProgressFunc {
	var llmStart time.Time
	return func(stage string, attempt, maxAttempts int) {
		switch stage {
		case StageLLMStarted:
			llmStart = time.Now()
			record.setProgress(5, "LLM generating Blender code (streaming)...")
		case StageLLMDone:
			var elapsed time.Duration
			if !llmStart.IsZero() {
				elapsed = time.Since(llmStart).Round(100 * time.Millisecond)
			}
			record.setProgress(18, fmt.Sprintf("LLM done (%s). Preparing Blender...", elapsed))
		case StageBlender:
			record.setProgress(attemptProgress(attempt, maxAttempts),
				fmt.Sprintf("Running Blender (attempt %d/%d)", attempt, maxAttempts))
		case StageFixing:
			record.setProgress(attemptProgress(attempt, maxAttempts),
				fmt.Sprintf("Attempt %d failed, asking LLM to fix...", attempt))
		default:
			record.setProgress(-1, stage)
		}
	}
}

func attemptProgress(attempt, maxAttempts int) int {
	return 20 + 60*(attempt-1)/max(maxAttempts, 1)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
