package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/pixelperm/pixelperm/internal/apiclient"
	"github.com/pixelperm/pixelperm/internal/domain"
)

// MockBackend is a configurable Backend implementation for tests. Each
// operation delegates to its Fn field when set and otherwise falls back
// to a benign default. Calls are recorded so tests can assert on which
// task ids were polled and cleaned up.
type MockBackend struct {
	mu sync.Mutex

	UploadFn  func(ctx context.Context, source, target domain.ImagePayload, params domain.ParameterSet) (string, error)
	StatusFn  func(ctx context.Context, taskID string) (apiclient.StatusResponse, error)
	CleanupFn func(ctx context.Context, taskID string) error
	HealthFn  func(ctx context.Context) (bool, error)

	uploads      int
	statusCalls  map[string]int
	cleanupCalls []string
}

// NewMockBackend creates a MockBackend whose defaults accept every
// upload, report every task as processing at 0%, and stay healthy.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		statusCalls: make(map[string]int),
	}
}

func (m *MockBackend) Upload(
	ctx context.Context,
	source, target domain.ImagePayload,
	params domain.ParameterSet,
) (string, error) {
	m.mu.Lock()
	m.uploads++
	n := m.uploads
	m.mu.Unlock()

	if m.UploadFn != nil {
		return m.UploadFn(ctx, source, target, params)
	}
	return fmt.Sprintf("task-%d", n), nil
}

func (m *MockBackend) Status(ctx context.Context, taskID string) (apiclient.StatusResponse, error) {
	m.mu.Lock()
	m.statusCalls[taskID]++
	m.mu.Unlock()

	if m.StatusFn != nil {
		return m.StatusFn(ctx, taskID)
	}
	return apiclient.StatusResponse{Status: apiclient.StatusProcessing, Progress: 0}, nil
}

func (m *MockBackend) Cleanup(ctx context.Context, taskID string) error {
	m.mu.Lock()
	m.cleanupCalls = append(m.cleanupCalls, taskID)
	m.mu.Unlock()

	if m.CleanupFn != nil {
		return m.CleanupFn(ctx, taskID)
	}
	return nil
}

func (m *MockBackend) Health(ctx context.Context) (bool, error) {
	if m.HealthFn != nil {
		return m.HealthFn(ctx)
	}
	return true, nil
}

// StatusCalls returns how many times the given task id has been polled.
func (m *MockBackend) StatusCalls(taskID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls[taskID]
}

// CleanupCalls returns the task ids cleanup was requested for, in order.
func (m *MockBackend) CleanupCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cleanupCalls...)
}

// Uploads returns how many upload requests were made.
func (m *MockBackend) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}
