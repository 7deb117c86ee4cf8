package executor

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// MockProcessRunner is a mock implementation of ProcessRunner for testing.
// It is safe for concurrent use.
type MockProcessRunner struct {
	// RunFunc allows tests to provide custom behavior
	RunFunc func(ctx context.Context, dir, path string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)

	// Delay simulates slow process execution
	Delay time.Duration

	// ShouldTimeout if true, will block until context is cancelled
	ShouldTimeout bool

	mu       sync.Mutex
	calls    int
	lastDir  string
	lastPath string
	lastArgs []string
}

// Run executes the mock behavior.
func (m *MockProcessRunner) Run(ctx context.Context, dir, path string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	m.mu.Lock()
	m.calls++
	m.lastDir = dir
	m.lastPath = path
	m.lastArgs = append([]string(nil), args...)
	m.mu.Unlock()

	// Simulate timeout behavior
	if m.ShouldTimeout {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}

	// Simulate delay
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	// Use custom function if provided
	if m.RunFunc != nil {
		return m.RunFunc(ctx, dir, path, args, stdin)
	}

	// Default: return empty success
	return nil, nil, nil
}

// Calls returns how many times Run was called.
func (m *MockProcessRunner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the directory, path and args of the most recent call.
func (m *MockProcessRunner) LastCall() (dir, path string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDir, m.lastPath, append([]string(nil), m.lastArgs...)
}

// NewMockProcessRunner creates a new mock process runner.
func NewMockProcessRunner() *MockProcessRunner {
	return &MockProcessRunner{}
}

// NewTimeoutMockProcessRunner creates a mock that simulates a timeout.
func NewTimeoutMockProcessRunner() *MockProcessRunner {
	return &MockProcessRunner{
		ShouldTimeout: true,
	}
}

// NewDelayMockProcessRunner creates a mock that simulates a slow process.
func NewDelayMockProcessRunner(delay time.Duration) *MockProcessRunner {
	return &MockProcessRunner{
		Delay: delay,
	}
}

// NewErrorMockProcessRunner creates a mock that fails with errMsg on stderr.
func NewErrorMockProcessRunner(errMsg string) *MockProcessRunner {
	return &MockProcessRunner{
		RunFunc: func(ctx context.Context, dir, path string, args []string, stdin io.Reader) ([]byte, []byte, error) {
			return nil, []byte(errMsg), errors.New(errMsg)
		},
	}
}
