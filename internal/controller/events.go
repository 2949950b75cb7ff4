package controller

// Events carries the controller's outbound callbacks. Any field may be
// nil; nil callbacks are simply skipped. Callbacks are invoked without
// the controller's lock held, so they may call back into the controller.
type Events struct {
	// OnProgress reports display progress (after the re-acceleration
	// curve), the phase label, and elapsed seconds while polling.
	OnProgress func(displayPercent float64, label string, elapsedSeconds float64)

	// OnCompleted reports the finished task's id and total elapsed time.
	OnCompleted func(taskID string, elapsedSeconds float64)

	// OnFailed reports a submission, polling, or server-side failure.
	OnFailed func(err error)

	// OnCanceled reports that a cancellation finished and the controller
	// returned to idle.
	OnCanceled func()

	// OnHealth reports the result of each background health heartbeat.
	OnHealth func(healthy bool)
}

func (e Events) emitProgress(display float64, label string, elapsed float64) {
	if e.OnProgress != nil {
		e.OnProgress(display, label, elapsed)
	}
}

func (e Events) emitCompleted(taskID string, elapsed float64) {
	if e.OnCompleted != nil {
		e.OnCompleted(taskID, elapsed)
	}
}

func (e Events) emitFailed(err error) {
	if e.OnFailed != nil {
		e.OnFailed(err)
	}
}

func (e Events) emitCanceled() {
	if e.OnCanceled != nil {
		e.OnCanceled()
	}
}

func (e Events) emitHealth(healthy bool) {
	if e.OnHealth != nil {
		e.OnHealth(healthy)
	}
}
