package domain

import (
	"errors"
	"fmt"
)

// Common errors returned across the client
var (
	// ErrNoActiveTask is returned when an operation requires an active
	// task but the controller holds none.
	ErrNoActiveTask = errors.New("no active task")

	// ErrAssetNotFound is returned when a requested entry is missing
	// from the local asset store.
	ErrAssetNotFound = errors.New("asset not found in local store")
)

// ValidationError reports a parameter that violates its declared range or
// enumeration. It is produced locally, before any request is made, and is
// never sent to the server.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%s: %s", e.Field, e.Value, e.Reason)
}

// TransportError reports a network or HTTP-level failure while talking to
// the backend. Op names the operation that failed (upload, status, cleanup,
// health).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerReportedError carries an error string reported by the backend's
// status endpoint. The message is passed through verbatim.
type ServerReportedError struct {
	TaskID  string
	Message string
}

func (e *ServerReportedError) Error() string {
	return e.Message
}

// PreconditionError reports a submission blocked before any request was
// made: missing images or an unhealthy server.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot submit: %s", e.Reason)
}
