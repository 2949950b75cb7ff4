// Package assetstore persists the two input images and the last-used
// parameter set across sessions. It is a small key-value cache over an
// afero filesystem: fixed keys, no schema versioning, best-effort reads
// that report a missing entry instead of failing hard.
package assetstore
