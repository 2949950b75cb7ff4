package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pixelperm/pixelperm/internal/apiclient"
	"github.com/pixelperm/pixelperm/internal/domain"
	"github.com/pixelperm/pixelperm/internal/progress"
)

// Backend is the controller's view of the remote server. It is satisfied
// by *apiclient.Client.
type Backend interface {
	// Upload submits both images and parameters, returning the new task id.
	Upload(ctx context.Context, source, target domain.ImagePayload, params domain.ParameterSet) (string, error)

	// Status fetches the current state of a task.
	Status(ctx context.Context, taskID string) (apiclient.StatusResponse, error)

	// Cleanup releases server-side resources for a task, best effort.
	Cleanup(ctx context.Context, taskID string) error

	// Health reports whether the server is reachable and healthy.
	Health(ctx context.Context) (bool, error)
}

// Config holds the controller's timing knobs.
type Config struct {
	// PollInterval is the cadence of status polls while a task runs.
	PollInterval time.Duration

	// HealthInterval is the cadence of the background health heartbeat.
	// Zero disables the heartbeat.
	HealthInterval time.Duration

	// RequestTimeout bounds each request the controller issues on its
	// own (polls, cleanup, heartbeat checks).
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with the standard cadences.
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		HealthInterval: 30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Controller owns the lifecycle of at most one remote task. All state
// transitions happen behind its mutex, in the order their triggering
// events are processed.
type Controller struct {
	backend Backend
	events  Events
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	// opMu serializes Submit so two overlapping submissions cannot
	// interleave their retire/upload/record steps.
	opMu sync.Mutex

	mu         sync.Mutex
	handle     domain.TaskHandle
	generation uint64
	pollCancel context.CancelFunc

	heartbeatCancel context.CancelFunc
	wg              sync.WaitGroup
}

// New creates a Controller in the Idle phase. Call Start to launch the
// health heartbeat, and Close on teardown.
func New(backend Backend, cfg Config, events Events, logger *slog.Logger) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return &Controller{
		backend: backend,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		handle:  domain.TaskHandle{Phase: domain.PhaseIdle},
	}
}

// Start launches the background health heartbeat. It does not affect the
// task lifecycle.
func (c *Controller) Start() {
	if c.cfg.HealthInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.heartbeatCancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.heartbeat(ctx)
}

// Close tears the controller down: it stops the heartbeat, suppresses any
// running poll loop, and releases the current task best-effort. The
// controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
		c.heartbeatCancel = nil
	}
	c.mu.Unlock()

	c.retireCurrent()
	c.wg.Wait()
}

// Handle returns a snapshot of the current task handle.
func (c *Controller) Handle() domain.TaskHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Submit validates its inputs, retires any prior task, and starts a new
// one. Preconditions checked before any state change: both images
// present, parameters within range, server healthy. On upload failure the
// controller ends in Failed with no task id recorded.
func (c *Controller) Submit(
	ctx context.Context,
	source, target domain.ImagePayload,
	params domain.ParameterSet,
) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !source.Present() || !target.Present() {
		return &domain.PreconditionError{Reason: "both source and target images are required"}
	}
	if err := domain.ValidateParameters(params); err != nil {
		return err
	}
	if !c.CheckHealth(ctx) {
		return &domain.PreconditionError{Reason: "server is not available"}
	}

	// Retire the previous task fully before a new id can exist.
	c.retireCurrent()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.handle = domain.TaskHandle{
		Phase:     domain.PhaseSubmitting,
		StartedAt: c.now(),
	}
	c.mu.Unlock()

	taskID, err := c.backend.Upload(ctx, source, target, params)
	if err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.handle = domain.TaskHandle{Phase: domain.PhaseFailed}
		}
		c.mu.Unlock()

		c.logger.Error("task submission failed", "error", err)
		c.events.emitFailed(err)
		return err
	}

	c.mu.Lock()
	if c.generation != gen {
		// Torn down while the upload was in flight; release the orphan.
		c.mu.Unlock()
		c.release(taskID)
		return domain.ErrNoActiveTask
	}

	c.handle.ID = taskID
	c.handle.Phase = domain.PhasePolling

	pollCtx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel
	c.mu.Unlock()

	c.logger.Info("task submitted", "task_id", taskID)

	c.wg.Add(1)
	go c.pollLoop(pollCtx, gen, taskID)
	return nil
}

// Cancel requests cooperative cancellation of the current poll loop. It
// is only meaningful while Polling; otherwise it returns ErrNoActiveTask.
// The in-flight poll, if any, is not aborted; its continuation is
// suppressed. The controller ends in Idle regardless of the cleanup
// request's outcome.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.handle.Phase != domain.PhasePolling {
		c.mu.Unlock()
		return domain.ErrNoActiveTask
	}

	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.handle.Phase = domain.PhaseCanceling
	taskID := c.handle.ID
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.logger.Info("canceling task", "task_id", taskID)
	c.release(taskID)

	c.mu.Lock()
	// A submission that started while the cleanup request was in flight
	// owns the handle now; only reset it if this cancellation still does.
	if c.generation == gen {
		c.handle = domain.TaskHandle{Phase: domain.PhaseIdle}
	}
	c.mu.Unlock()

	c.events.emitCanceled()
	return nil
}

// CheckHealth asks the server whether it is healthy. It has no side
// effects on the controller's state.
func (c *Controller) CheckHealth(ctx context.Context) bool {
	healthy, err := c.backend.Health(ctx)
	if err != nil {
		c.logger.Warn("health check failed", "error", err)
		return false
	}
	return healthy
}

// retireCurrent suppresses any running poll loop, clears the handle, and
// releases the old task id best-effort. Safe to call with no active task.
func (c *Controller) retireCurrent() {
	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	taskID := c.handle.ID
	c.handle = domain.TaskHandle{Phase: domain.PhaseIdle}
	c.generation++
	c.mu.Unlock()

	c.release(taskID)
}

// release performs the fire-and-forget cleanup request. A missing task id
// makes it a no-op, so calling it repeatedly is safe. Failures are logged
// and never escalated: a future submission must not be blocked by a stale
// task that failed to clean up.
func (c *Controller) release(taskID string) {
	if taskID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	if err := c.backend.Cleanup(ctx, taskID); err != nil {
		c.logger.Warn("task cleanup failed", "task_id", taskID, "error", err)
	} else {
		c.logger.Debug("task cleaned up", "task_id", taskID)
	}
}

// pollLoop polls the task's status on a fixed cadence until the task
// reaches a terminal state, a poll fails, or the loop's context is
// canceled. A single failed poll is fatal; there is no retry.
func (c *Controller) pollLoop(ctx context.Context, gen uint64, taskID string) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.stillCurrent(ctx, gen, taskID) {
				return
			}

			// The request context is deliberately independent of the
			// loop's: cancellation never aborts an in-flight poll, it
			// only suppresses its continuation.
			reqCtx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			resp, err := c.backend.Status(reqCtx, taskID)
			cancel()

			if !c.applyPoll(ctx, gen, taskID, resp, err) {
				return
			}
		}
	}
}

// stillCurrent reports whether the loop identified by (gen, taskID) still
// owns the controller's current task.
func (c *Controller) stillCurrent(ctx context.Context, gen uint64, taskID string) bool {
	if ctx.Err() != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.handle.ID == taskID
}

// applyPoll applies one poll result. The identity re-check happens after
// the response arrived: a response for a task that has since been retired
// or canceled is discarded, never applied. Returns true when polling
// should continue.
func (c *Controller) applyPoll(
	ctx context.Context,
	gen uint64,
	taskID string,
	resp apiclient.StatusResponse,
	pollErr error,
) bool {
	c.mu.Lock()

	if ctx.Err() != nil || c.generation != gen || c.handle.ID != taskID {
		c.mu.Unlock()
		c.logger.Debug("discarding stale poll response", "task_id", taskID)
		return false
	}

	if pollErr != nil {
		c.handle.Phase = domain.PhaseFailed
		c.mu.Unlock()

		c.logger.Error("status poll failed", "task_id", taskID, "error", pollErr)
		c.events.emitFailed(pollErr)
		return false
	}

	switch resp.Status {
	case apiclient.StatusProcessing:
		elapsed := c.elapsedLocked(resp)
		c.handle.LastRawProgress = resp.Progress
		c.handle.LastElapsedSeconds = elapsed
		c.mu.Unlock()

		display := progress.Remap(resp.Progress)
		label := progress.LabelFor(resp.Progress)
		c.events.emitProgress(display, label, elapsed)
		return true

	case apiclient.StatusCompleted:
		elapsed := c.elapsedLocked(resp)
		c.handle.LastRawProgress = 100
		c.handle.LastElapsedSeconds = elapsed
		c.handle.Phase = domain.PhaseCompleted
		c.mu.Unlock()

		c.logger.Info("task completed", "task_id", taskID, "elapsed_seconds", elapsed)
		c.events.emitCompleted(taskID, elapsed)
		return false

	default: // apiclient.StatusError
		c.handle.Phase = domain.PhaseFailed
		c.mu.Unlock()

		err := &domain.ServerReportedError{TaskID: taskID, Message: resp.Error}
		c.logger.Error("task failed on server", "task_id", taskID, "error", resp.Error)
		c.events.emitFailed(err)
		return false
	}
}

// elapsedLocked prefers the server-reported elapsed time and falls back
// to the local wall-clock delta since submission. Caller holds c.mu.
func (c *Controller) elapsedLocked(resp apiclient.StatusResponse) float64 {
	if resp.TimeElapsed != nil {
		return *resp.TimeElapsed
	}
	return c.now().Sub(c.handle.StartedAt).Seconds()
}

// heartbeat surfaces connectivity degradation on a fixed interval. It
// never mutates the task phase.
func (c *Controller) heartbeat(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			healthy := c.CheckHealth(reqCtx)
			cancel()

			c.events.emitHealth(healthy)
		}
	}
}
