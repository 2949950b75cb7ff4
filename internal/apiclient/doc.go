// Package apiclient implements the thin HTTP client for the pixel
// permutation backend: upload, status, cleanup, and health. It performs
// no retries and holds no task state; lifecycle decisions belong to the
// controller.
package apiclient
