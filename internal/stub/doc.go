// Package stub provides an in-memory implementation of the backend REST
// contract for local development and tests. It accepts uploads, walks a
// simulated processing pipeline through the real progress milestones, and
// serves placeholder artifacts.
package stub
