package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResult struct {
	ok bool
}

func (r stubResult) Ok() bool { return r.ok }

type stubExecutor struct {
	fn func(ctx context.Context, req any, progress ProgressFunc) (Result, error)
}

func (s stubExecutor) Execute(ctx context.Context, req any, progress ProgressFunc) (Result, error) {
	if s.fn == nil {
		return stubResult{ok: true}, nil
	}
	return s.fn(ctx, req, progress)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestManager(t *testing.T, exec Executor, opts Options) *Manager {
	t.Helper()
	m := NewManager(exec, opts, quietLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

// waitForStatus polls until the record reaches the wanted status.
func waitForStatus(t *testing.T, m *Manager, id string, want Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		record, err := m.Get(id)
		require.NoError(t, err)
		if record.Status() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached status %s (now %s)", id, want, record.Status())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmitQueueFull(t *testing.T) {
	// Workers never started, so submissions stay queued.
	m := newTestManager(t, stubExecutor{}, Options{QueueSize: 3})

	for i := range 3 {
		_, err := m.Submit(i, "")
		require.NoError(t, err)
	}
	_, err := m.Submit(99, "")
	require.ErrorIs(t, err, ErrQueueFull)

	for _, snap := range m.List() {
		assert.Equal(t, StatusQueued, snap.Status)
	}
	assert.Len(t, m.List(), 3)
}

func TestSubmitDuplicateID(t *testing.T) {
	m := newTestManager(t, stubExecutor{}, Options{QueueSize: 8})

	first, err := m.Submit("payload", "ring-42")
	require.NoError(t, err)

	_, err = m.Submit("payload", "ring-42")
	require.ErrorIs(t, err, ErrDuplicateJob)

	// The first submission is unaffected.
	record, err := m.Get("ring-42")
	require.NoError(t, err)
	assert.Same(t, first, record)
	assert.Equal(t, StatusQueued, record.Status())
}

func TestGetNotFound(t *testing.T) {
	m := newTestManager(t, stubExecutor{}, Options{})
	_, err := m.Get("nope")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelQueuedUnblocksWait(t *testing.T) {
	m := newTestManager(t, stubExecutor{}, Options{QueueSize: 4})

	record, err := m.Submit(nil, "")
	require.NoError(t, err)

	waited := make(chan Snapshot, 1)
	go func() {
		r, err := m.WaitForCompletion(context.Background(), record.ID(), 5*time.Second)
		if err != nil {
			waited <- Snapshot{}
			return
		}
		waited <- r.Snapshot()
	}()

	// Give the waiter a moment to park on the done channel.
	time.Sleep(20 * time.Millisecond)

	cancelled, err := m.Cancel(record.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status())

	select {
	case snap := <-waited:
		assert.Equal(t, StatusCancelled, snap.Status)
		require.NotNil(t, snap.FinishedAt)
	case <-time.After(2 * time.Second):
		t.Fatal("wait_for_completion did not unblock after cancel")
	}
}

func TestCancelTerminalIsIdempotent(t *testing.T) {
	m := newTestManager(t, stubExecutor{}, Options{QueueSize: 4})

	record, err := m.Submit(nil, "")
	require.NoError(t, err)

	_, err = m.Cancel(record.ID())
	require.NoError(t, err)
	first := record.Snapshot()

	again, err := m.Cancel(record.ID())
	require.NoError(t, err)
	assert.Equal(t, first, again.Snapshot())
}

func TestCancelRunningRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	exec := stubExecutor{fn: func(ctx context.Context, req any, progress ProgressFunc) (Result, error) {
		close(entered)
		<-release
		return stubResult{ok: true}, nil
	}}
	m := newTestManager(t, exec, Options{Workers: 1, QueueSize: 4})
	m.Start()

	record, err := m.Submit(nil, "")
	require.NoError(t, err)
	<-entered

	_, err = m.Cancel(record.ID())
	require.ErrorIs(t, err, ErrCannotCancelRunning)

	snap := record.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	require.NotNil(t, snap.StartedAt)
	assert.Nil(t, snap.FinishedAt)

	close(release)
	waitForStatus(t, m, record.ID(), StatusSucceeded)
}

func TestWaitTimeoutLeavesJobUntouched(t *testing.T) {
	m := newTestManager(t, stubExecutor{}, Options{QueueSize: 4})

	record, err := m.Submit(nil, "")
	require.NoError(t, err)

	_, err = m.WaitForCompletion(context.Background(), record.ID(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.Equal(t, StatusQueued, record.Status())
}

func TestJobFailureDoesNotKillWorker(t *testing.T) {
	exec := stubExecutor{fn: func(ctx context.Context, req any, progress ProgressFunc) (Result, error) {
		if req == "boom" {
			return nil, errors.New("llm exploded")
		}
		return stubResult{ok: true}, nil
	}}
	m := newTestManager(t, exec, Options{Workers: 1, QueueSize: 8})
	m.Start()

	failing, err := m.Submit("boom", "")
	require.NoError(t, err)
	healthy, err := m.Submit("fine", "")
	require.NoError(t, err)

	waitForStatus(t, m, failing.ID(), StatusFailed)
	waitForStatus(t, m, healthy.ID(), StatusSucceeded)

	snap := failing.Snapshot()
	require.NotNil(t, snap.Error)
	assert.Equal(t, "llm exploded", snap.Error.Message)
	assert.Equal(t, 100, snap.Progress)
	require.NotNil(t, snap.FinishedAt)
}

func TestExecutorPanicCapturedOnRecord(t *testing.T) {
	exec := stubExecutor{fn: func(ctx context.Context, req any, progress ProgressFunc) (Result, error) {
		panic("unexpected geometry")
	}}
	m := newTestManager(t, exec, Options{Workers: 1, QueueSize: 4})
	m.Start()

	record, err := m.Submit(nil, "")
	require.NoError(t, err)

	finished, err := m.WaitForCompletion(context.Background(), record.ID(), 5*time.Second)
	require.NoError(t, err)

	snap := finished.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "panic", snap.Error.Reason)
	assert.Contains(t, snap.Error.Message, "unexpected geometry")
}

func TestCancelledJobSkippedByWorker(t *testing.T) {
	var executions atomic.Int32
	exec := stubExecutor{fn: func(ctx context.Context, req any, progress ProgressFunc) (Result, error) {
		executions.Add(1)
		return stubResult{ok: true}, nil
	}}
	m := newTestManager(t, exec, Options{Workers: 1, QueueSize: 4})

	record, err := m.Submit(nil, "")
	require.NoError(t, err)
	_, err = m.Cancel(record.ID())
	require.NoError(t, err)

	// Workers start only now, so the cancelled id is still in the queue.
	m.Start()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), executions.Load())
	assert.Equal(t, StatusCancelled, record.Status())
}

func TestTwoWorkersRunConcurrently(t *testing.T) {
	both := make(chan struct{}, 2)
	release := make(chan struct{})
	exec := stubExecutor{fn: func(ctx context.Context, req any, progress ProgressFunc) (Result, error) {
		both <- struct{}{}
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		return stubResult{ok: true}, nil
	}}
	m := newTestManager(t, exec, Options{Workers: 2, QueueSize: 4})
	m.Start()

	a, err := m.Submit(nil, "")
	require.NoError(t, err)
	b, err := m.Submit(nil, "")
	require.NoError(t, err)

	// Both executions must be in flight at the same time; with a serialized
	// pool the second send would never happen while the first is blocked.
	for range 2 {
		select {
		case <-both:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs did not run concurrently")
		}
	}
	close(release)

	waitForStatus(t, m, a.ID(), StatusSucceeded)
	waitForStatus(t, m, b.ID(), StatusSucceeded)
}

func TestProgressMapping(t *testing.T) {
	m := newTestManager(t, stubExecutor{}, Options{Workers: 1, QueueSize: 4})

	// Drive the progress callback directly against a submitted record so
	// the intermediate percentages are observable.
	record, err := m.Submit(nil, "")
	require.NoError(t, err)

	cb := m.progressFunc(record)
	var seen []int
	for _, step := range []struct {
		stage   string
		attempt int
	}{
		{StageLLMStarted, 0},
		{StageLLMDone, 0},
		{StageBlender, 1},
		{StageBlender, 3},
		{StageFixing, 3},
	} {
		cb(step.stage, step.attempt, 3)
		seen = append(seen, record.Snapshot().Progress)
	}

	assert.Equal(t, []int{5, 18, 20, 60, 60}, seen)
}
