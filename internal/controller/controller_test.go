package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelperm/pixelperm/internal/apiclient"
	"github.com/pixelperm/pixelperm/internal/domain"
)

const waitTimeout = 2 * time.Second

type progressEvent struct {
	display float64
	label   string
	elapsed float64
}

type completedEvent struct {
	taskID  string
	elapsed float64
}

// recorder collects controller callbacks on buffered channels.
type recorder struct {
	progress  chan progressEvent
	completed chan completedEvent
	failed    chan error
	canceled  chan struct{}
	health    chan bool
}

func newRecorder() *recorder {
	return &recorder{
		progress:  make(chan progressEvent, 64),
		completed: make(chan completedEvent, 8),
		failed:    make(chan error, 8),
		canceled:  make(chan struct{}, 8),
		health:    make(chan bool, 64),
	}
}

func (r *recorder) events() Events {
	return Events{
		OnProgress: func(display float64, label string, elapsed float64) {
			r.progress <- progressEvent{display, label, elapsed}
		},
		OnCompleted: func(taskID string, elapsed float64) {
			r.completed <- completedEvent{taskID, elapsed}
		},
		OnFailed:   func(err error) { r.failed <- err },
		OnCanceled: func() { r.canceled <- struct{}{} },
		OnHealth:   func(healthy bool) { r.health <- healthy },
	}
}

func (r *recorder) waitProgress(t *testing.T) progressEvent {
	t.Helper()
	select {
	case ev := <-r.progress:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for progress event")
		return progressEvent{}
	}
}

func (r *recorder) waitCompleted(t *testing.T) completedEvent {
	t.Helper()
	select {
	case ev := <-r.completed:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for completion event")
		return completedEvent{}
	}
}

func (r *recorder) waitFailed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.failed:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for failure event")
		return nil
	}
}

func (r *recorder) waitCanceled(t *testing.T) {
	t.Helper()
	select {
	case <-r.canceled:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for cancellation event")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testImages() (domain.ImagePayload, domain.ImagePayload) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	return domain.NewImagePayload(domain.ImageSource, pngHeader),
		domain.NewImagePayload(domain.ImageTarget, pngHeader)
}

func testConfig() Config {
	return Config{
		PollInterval:   5 * time.Millisecond,
		HealthInterval: 0, // heartbeat off unless a test starts it
		RequestTimeout: time.Second,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestController_SubmitToCompletion(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.UploadFn = func(ctx context.Context, source, target domain.ImagePayload, params domain.ParameterSet) (string, error) {
		return "abc", nil
	}

	var polls atomic.Int64
	backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
		if polls.Add(1) == 1 {
			return apiclient.StatusResponse{
				Status:   apiclient.StatusProcessing,
				Progress: 20,
			}, nil
		}
		return apiclient.StatusResponse{
			Status:      apiclient.StatusCompleted,
			TimeElapsed: floatPtr(12.4),
		}, nil
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	source, target := testImages()
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))

	assert.Equal(t, "abc", ctrl.Handle().ID)

	progress := rec.waitProgress(t)
	assert.InDelta(t, 11, progress.display, 1e-9) // remap(20)
	assert.Equal(t, "Initializing...", progress.label)

	completed := rec.waitCompleted(t)
	assert.Equal(t, "abc", completed.taskID)
	assert.InDelta(t, 12.4, completed.elapsed, 1e-9)

	handle := ctrl.Handle()
	assert.Equal(t, domain.PhaseCompleted, handle.Phase)
	assert.Equal(t, "abc", handle.ID)
	assert.InDelta(t, 12.4, handle.LastElapsedSeconds, 1e-9)
}

func TestController_Cancellation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cleanupErr error
	}{
		{"cleanup succeeds", nil},
		{"cleanup fails", errors.New("cleanup exploded")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			backend := NewMockBackend()
			backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
				return apiclient.StatusResponse{
					Status:   apiclient.StatusProcessing,
					Progress: 30,
				}, nil
			}
			backend.CleanupFn = func(ctx context.Context, taskID string) error {
				return tc.cleanupErr
			}

			rec := newRecorder()
			ctrl := New(backend, testConfig(), rec.events(), testLogger())
			defer ctrl.Close()

			source, target := testImages()
			require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))
			taskID := ctrl.Handle().ID

			// Wait for polling to actually be underway.
			rec.waitProgress(t)

			require.NoError(t, ctrl.Cancel())
			rec.waitCanceled(t)

			handle := ctrl.Handle()
			assert.Equal(t, domain.PhaseIdle, handle.Phase)
			assert.Empty(t, handle.ID)
			assert.Contains(t, backend.CleanupCalls(), taskID)

			// No further status requests after cancellation.
			calls := backend.StatusCalls(taskID)
			time.Sleep(10 * testConfig().PollInterval)
			assert.Equal(t, calls, backend.StatusCalls(taskID))
		})
	}
}

func TestController_SubmitDuringCancelCleanup(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
		return apiclient.StatusResponse{
			Status:   apiclient.StatusProcessing,
			Progress: 30,
		}, nil
	}

	cleanupStarted := make(chan struct{}, 1)
	releaseCleanup := make(chan struct{})
	var cleanups atomic.Int64
	backend.CleanupFn = func(ctx context.Context, taskID string) error {
		// Hold only the cancellation's cleanup open; later cleanup
		// requests (from the resubmission) return immediately.
		if cleanups.Add(1) == 1 {
			cleanupStarted <- struct{}{}
			<-releaseCleanup
		}
		return nil
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	source, target := testImages()
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))
	firstID := ctrl.Handle().ID
	rec.waitProgress(t)

	cancelDone := make(chan error, 1)
	go func() { cancelDone <- ctrl.Cancel() }()

	select {
	case <-cleanupStarted:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for cleanup request")
	}

	// Submit a new task while the cancellation is still cleaning up the
	// old one. The new task owns the handle from here on.
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))
	secondID := ctrl.Handle().ID
	assert.NotEqual(t, firstID, secondID)

	close(releaseCleanup)
	require.NoError(t, <-cancelDone)
	rec.waitCanceled(t)

	// The finished cancellation must not wipe the new task's handle.
	handle := ctrl.Handle()
	assert.Equal(t, domain.PhasePolling, handle.Phase)
	assert.Equal(t, secondID, handle.ID)

	// And the new task keeps being polled.
	calls := backend.StatusCalls(secondID)
	time.Sleep(10 * testConfig().PollInterval)
	assert.Greater(t, backend.StatusCalls(secondID), calls)
}

func TestController_CancelWithoutTask(t *testing.T) {
	t.Parallel()

	ctrl := New(NewMockBackend(), testConfig(), Events{}, testLogger())
	defer ctrl.Close()

	assert.ErrorIs(t, ctrl.Cancel(), domain.ErrNoActiveTask)
}

func TestController_StaleResponseDiscarded(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()

	pollStarted := make(chan struct{}, 1)
	releasePoll := make(chan struct{})
	var polls atomic.Int64

	backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
		if polls.Add(1) == 1 {
			pollStarted <- struct{}{}
			<-releasePoll
			// By the time this resolves the task has been canceled;
			// the result must be discarded.
			return apiclient.StatusResponse{
				Status:      apiclient.StatusCompleted,
				TimeElapsed: floatPtr(5),
			}, nil
		}
		return apiclient.StatusResponse{Status: apiclient.StatusProcessing}, nil
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	source, target := testImages()
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))

	select {
	case <-pollStarted:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for first poll")
	}

	// Cancel while the poll is in flight, then let it resolve.
	require.NoError(t, ctrl.Cancel())
	rec.waitCanceled(t)
	close(releasePoll)

	time.Sleep(10 * testConfig().PollInterval)

	handle := ctrl.Handle()
	assert.Equal(t, domain.PhaseIdle, handle.Phase)
	assert.Empty(t, handle.ID)

	select {
	case ev := <-rec.completed:
		t.Fatalf("stale completion applied: %+v", ev)
	default:
	}
}

func TestController_ResubmitRetiresPriorTask(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
		return apiclient.StatusResponse{
			Status:   apiclient.StatusProcessing,
			Progress: 40,
		}, nil
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	source, target := testImages()
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))
	firstID := ctrl.Handle().ID
	rec.waitProgress(t)

	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))
	secondID := ctrl.Handle().ID

	assert.NotEqual(t, firstID, secondID)
	assert.Contains(t, backend.CleanupCalls(), firstID, "prior task must be cleaned up before the new one exists")

	// The old id must never reappear in subsequent poll ticks.
	calls := backend.StatusCalls(firstID)
	time.Sleep(10 * testConfig().PollInterval)
	assert.Equal(t, calls, backend.StatusCalls(firstID))
	assert.Greater(t, backend.StatusCalls(secondID), 0)
}

func TestController_PollTransportErrorIsFatal(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
		return apiclient.StatusResponse{}, &domain.TransportError{
			Op:  "status",
			Err: errors.New("connection refused"),
		}
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	source, target := testImages()
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))
	taskID := ctrl.Handle().ID

	err := rec.waitFailed(t)
	var tErr *domain.TransportError
	require.True(t, errors.As(err, &tErr))

	assert.Equal(t, domain.PhaseFailed, ctrl.Handle().Phase)

	// A single failed poll aborts monitoring; no retry.
	calls := backend.StatusCalls(taskID)
	time.Sleep(10 * testConfig().PollInterval)
	assert.Equal(t, calls, backend.StatusCalls(taskID))
}

func TestController_ServerReportedErrorPassedVerbatim(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
		return apiclient.StatusResponse{
			Status: apiclient.StatusError,
			Error:  "assignment failed: dimension mismatch",
		}, nil
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	source, target := testImages()
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))

	err := rec.waitFailed(t)
	var sErr *domain.ServerReportedError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, "assignment failed: dimension mismatch", sErr.Message)
	assert.Equal(t, domain.PhaseFailed, ctrl.Handle().Phase)
}

func TestController_SubmitPreconditions(t *testing.T) {
	t.Parallel()

	source, target := testImages()

	t.Run("missing image", func(t *testing.T) {
		t.Parallel()

		backend := NewMockBackend()
		ctrl := New(backend, testConfig(), Events{}, testLogger())
		defer ctrl.Close()

		err := ctrl.Submit(context.Background(), source, domain.ImagePayload{}, domain.DefaultParameters())

		var pErr *domain.PreconditionError
		require.True(t, errors.As(err, &pErr))
		assert.Zero(t, backend.Uploads())
		assert.Equal(t, domain.PhaseIdle, ctrl.Handle().Phase)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		t.Parallel()

		backend := NewMockBackend()
		ctrl := New(backend, testConfig(), Events{}, testLogger())
		defer ctrl.Close()

		params := domain.DefaultParameters()
		params.Size = 31

		err := ctrl.Submit(context.Background(), source, target, params)

		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Zero(t, backend.Uploads())
	})

	t.Run("unhealthy server", func(t *testing.T) {
		t.Parallel()

		backend := NewMockBackend()
		backend.HealthFn = func(ctx context.Context) (bool, error) {
			return false, nil
		}

		ctrl := New(backend, testConfig(), Events{}, testLogger())
		defer ctrl.Close()

		err := ctrl.Submit(context.Background(), source, target, domain.DefaultParameters())

		var pErr *domain.PreconditionError
		require.True(t, errors.As(err, &pErr))
		assert.Zero(t, backend.Uploads())
	})
}

func TestController_SubmitUploadFailure(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.UploadFn = func(ctx context.Context, source, target domain.ImagePayload, params domain.ParameterSet) (string, error) {
		return "", &domain.TransportError{Op: "upload", Err: errors.New("boom")}
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	source, target := testImages()
	err := ctrl.Submit(context.Background(), source, target, domain.DefaultParameters())
	require.Error(t, err)

	rec.waitFailed(t)

	// No dangling task id after a failed submission.
	handle := ctrl.Handle()
	assert.Equal(t, domain.PhaseFailed, handle.Phase)
	assert.Empty(t, handle.ID)
}

func TestController_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	ctrl := New(backend, testConfig(), Events{}, testLogger())
	defer ctrl.Close()

	// With no task id held, release is a no-op both times.
	ctrl.release("")
	ctrl.release("")
	assert.Empty(t, backend.CleanupCalls())

	// Retiring with no active task issues no cleanup either.
	ctrl.retireCurrent()
	ctrl.retireCurrent()
	assert.Empty(t, backend.CleanupCalls())
}

func TestController_ElapsedFallsBackToWallClock(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.StatusFn = func(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
		// No server-reported elapsed time.
		return apiclient.StatusResponse{
			Status:   apiclient.StatusProcessing,
			Progress: 50,
		}, nil
	}

	rec := newRecorder()
	ctrl := New(backend, testConfig(), rec.events(), testLogger())
	defer ctrl.Close()

	started := time.Now()
	ctrl.now = func() time.Time { return started.Add(7 * time.Second) }

	source, target := testImages()
	require.NoError(t, ctrl.Submit(context.Background(), source, target, domain.DefaultParameters()))

	progress := rec.waitProgress(t)
	assert.InDelta(t, 0, progress.elapsed, 1e-9,
		"fixed clock: submission and poll see the same instant")

	// Move the clock forward; later ticks report the delta. The clock is
	// read under the controller's lock, so swap it under the same lock.
	ctrl.mu.Lock()
	ctrl.now = func() time.Time { return started.Add(16 * time.Second) }
	ctrl.mu.Unlock()

	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-rec.progress:
			if ev.elapsed > 8 {
				assert.InDelta(t, 9, ev.elapsed, 1e-9)
				return
			}
		case <-deadline:
			t.Fatal("wall-clock elapsed never reported")
		}
	}
}

func TestController_HealthHeartbeat(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	var healthy atomic.Bool
	healthy.Store(true)
	backend.HealthFn = func(ctx context.Context) (bool, error) {
		return healthy.Load(), nil
	}

	cfg := testConfig()
	cfg.HealthInterval = 5 * time.Millisecond

	rec := newRecorder()
	ctrl := New(backend, cfg, rec.events(), testLogger())
	ctrl.Start()
	defer ctrl.Close()

	select {
	case got := <-rec.health:
		assert.True(t, got)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for heartbeat")
	}

	healthy.Store(false)

	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-rec.health:
			if !got {
				// Heartbeat surfaced the degradation without touching phase.
				assert.Equal(t, domain.PhaseIdle, ctrl.Handle().Phase)
				return
			}
		case <-deadline:
			t.Fatal("heartbeat never reported unhealthy")
		}
	}
}

func TestController_CheckHealthHasNoSideEffects(t *testing.T) {
	t.Parallel()

	backend := NewMockBackend()
	backend.HealthFn = func(ctx context.Context) (bool, error) {
		return false, errors.New("unreachable")
	}

	ctrl := New(backend, testConfig(), Events{}, testLogger())
	defer ctrl.Close()

	before := ctrl.Handle()
	assert.False(t, ctrl.CheckHealth(context.Background()))
	assert.Equal(t, before, ctrl.Handle())
}
