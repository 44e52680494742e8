package jobs

import "errors"

// Errors returned by Manager operations. Callers branch with errors.Is.
var (
	// ErrQueueFull is returned by Submit when the admission queue is at capacity.
	ErrQueueFull = errors.New("job queue is full, retry later")

	// ErrDuplicateJob is returned by Submit when the job id is already taken.
	ErrDuplicateJob = errors.New("duplicate job id")

	// ErrJobNotFound is returned when no record exists for the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrWaitTimeout is returned by WaitForCompletion when the timeout
	// elapses before the job reaches a terminal status.
	ErrWaitTimeout = errors.New("job did not finish in time")

	// ErrCannotCancelRunning is returned by Cancel for a job that has
	// already been picked up by a worker. There is no safe way to abort
	// an in-flight Blender or LLM call mid-stream.
	ErrCannotCancelRunning = errors.New("running jobs cannot be force-cancelled safely")
)
