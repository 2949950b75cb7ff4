package domain

import "time"

// Phase represents the controller's current position in the task
// lifecycle state machine.
type Phase string

// Possible lifecycle phases
const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseCanceling  Phase = "canceling"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether the phase is a resting state from which the
// only way forward is a fresh submission.
func (p Phase) Terminal() bool {
	return p == PhaseIdle || p == PhaseCompleted || p == PhaseFailed
}

// Active reports whether the phase describes an outstanding remote task.
// At most one active handle may exist per controller at any time.
func (p Phase) Active() bool {
	return !p.Terminal()
}

// TaskHandle identifies at most one outstanding remote job and carries the
// last observed facts about it. An empty ID means no task is associated
// with the handle. The controller exclusively owns and mutates the current
// handle; everything else receives copies.
type TaskHandle struct {
	ID                 string    `json:"id,omitempty"`
	Phase              Phase     `json:"phase"`
	StartedAt          time.Time `json:"started_at,omitempty"`
	LastRawProgress    float64   `json:"last_raw_progress"`
	LastElapsedSeconds float64   `json:"last_elapsed_seconds"`
}
