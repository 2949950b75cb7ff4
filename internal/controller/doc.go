// Package controller implements the client-side task lifecycle state
// machine: submission, polling, cooperative cancellation, best-effort
// cleanup, and completion of at most one remote task at a time. All
// transitions are serialized behind a single mutex, and every
// asynchronous completion re-checks the identity of the task it belongs
// to before applying effects, so responses for retired tasks are
// discarded rather than applied.
package controller
