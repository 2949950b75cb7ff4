// Package progress maps the backend's raw completion percentage to the
// user-facing percentage and phase label. The backend reports coarse,
// front-loaded progress; the re-acceleration curve makes the displayed
// number advance steadily and land near 100% close to actual completion.
package progress
