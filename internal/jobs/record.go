package jobs

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal records are
// eligible for eviction by the cleanup sweeper and never transition again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Result is the outcome an executor produces for a job. The manager only
// inspects Ok to decide between succeeded and failed; everything else is
// opaque payload for the caller.
type Result interface {
	Ok() bool
}

// Failure is optionally implemented by results that can name why they
// failed, for example "budget_exhausted" or "oracle_call_failed". The
// manager copies the reason into the record's ErrorInfo so the HTTP
// surface can distinguish failure modes.
type Failure interface {
	FailureReason() string
}

// ErrorInfo describes a job failure in the shape the HTTP surface reports.
type ErrorInfo struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Reason     string `json:"reason,omitempty"`
}

// Record tracks one submitted job. Status, timestamps and result are
// mutated only by the worker that dequeued the record (or by Cancel while
// the record is still queued); everyone else reads through Snapshot.
type Record struct {
	id      string
	request any

	mu         sync.RWMutex
	status     Status
	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time
	progress   int
	detail     string
	result     Result
	errInfo    *ErrorInfo

	done     chan struct{}
	doneOnce sync.Once
}

func newRecord(id string, request any, now time.Time) *Record {
	return &Record{
		id:        id,
		request:   request,
		status:    StatusQueued,
		createdAt: now,
		done:      make(chan struct{}),
	}
}

// ID returns the immutable job id.
func (r *Record) ID() string { return r.id }

// Request returns the payload the job was submitted with.
func (r *Record) Request() any { return r.request }

// Done returns a channel that is closed exactly once, when the record
// reaches a terminal status. Late waiters observe an already-closed
// channel and never block.
func (r *Record) Done() <-chan struct{} { return r.done }

// Status returns the current status.
func (r *Record) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Snapshot is a consistent copy of the record's observable state.
type Snapshot struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Progress   int        `json:"progress"`
	Detail     string     `json:"detail"`
	Result     Result     `json:"result,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// Snapshot returns a thread-safe copy of the record state.
func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ID:         r.id,
		Status:     r.status,
		CreatedAt:  r.createdAt,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		Progress:   r.progress,
		Detail:     r.detail,
		Result:     r.result,
		Error:      r.errInfo,
	}
}

// tryStart transitions queued -> running. It returns false when the
// record was cancelled between submission and dequeue, in which case the
// worker must skip it. The check-and-transition is atomic so a concurrent
// Cancel can never interleave between them.
func (r *Record) tryStart(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusQueued {
		return false
	}
	r.status = StatusRunning
	r.startedAt = &now
	r.progress = 5
	r.detail = "Starting pipeline..."
	return true
}

// tryCancel transitions queued -> cancelled. Terminal records are left
// untouched (cancelled=false, err=nil); running records are rejected.
func (r *Record) tryCancel() (cancelled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.status == StatusQueued:
		r.status = StatusCancelled
		r.detail = "Cancelled before start"
		return true, nil
	case r.status.Terminal():
		return false, nil
	default:
		return false, ErrCannotCancelRunning
	}
}

// setProgress updates the progress percentage and detail line.
func (r *Record) setProgress(progress int, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if progress >= 0 {
		r.progress = progress
	}
	r.detail = detail
}

func (r *Record) succeed(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusSucceeded
	r.result = res
	r.progress = 100
	r.detail = "Generation complete"
}

// fail marks the record failed. res may be nil when the executor errored
// before producing any outcome; a failed run's last result is kept so the
// caller can inspect the retry log and final artifact.
func (r *Record) fail(res Result, info *ErrorInfo, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusFailed
	if res != nil {
		r.result = res
	}
	r.errInfo = info
	r.progress = 100
	r.detail = detail
}

// finish stamps finished_at and fires the completion signal. Safe to call
// on every exit path; the signal fires exactly once.
func (r *Record) finish(now time.Time) {
	r.mu.Lock()
	if r.finishedAt == nil {
		r.finishedAt = &now
	}
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })
}
