package testutil

import (
	"context"
	"sync"

	"gefen/provider"
)

// Call records one Generate invocation.
type Call struct {
	Query   string
	History []provider.Turn
}

// MockSource implements provider.Source for testing
type MockSource struct {
	// Configurable response
	GenerateFunc func(ctx context.Context, query string, history []provider.Turn) (string, error)

	mu    sync.Mutex
	calls []Call
}

// NewMockSource creates a mock that always answers reply
func NewMockSource(reply string) *MockSource {
	return &MockSource{
		GenerateFunc: func(context.Context, string, []provider.Turn) (string, error) {
			return reply, nil
		},
	}
}

// FailingSource creates a mock that always returns err
func FailingSource(err error) *MockSource {
	return &MockSource{
		GenerateFunc: func(context.Context, string, []provider.Turn) (string, error) {
			return "", err
		},
	}
}

// BlockingSource creates a mock that only returns once ctx is done
func BlockingSource() *MockSource {
	return &MockSource{
		GenerateFunc: func(ctx context.Context, _ string, _ []provider.Turn) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// GatedSource creates a mock that waits for a value on release before replying.
// It honours ctx while waiting.
func GatedSource(release <-chan string) *MockSource {
	return &MockSource{
		GenerateFunc: func(ctx context.Context, _ string, _ []provider.Turn) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case reply := <-release:
				return reply, nil
			}
		},
	}
}

func (m *MockSource) Generate(ctx context.Context, query string, history []provider.Turn) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Query: query, History: append([]provider.Turn(nil), history...)})
	m.mu.Unlock()
	return m.GenerateFunc(ctx, query, history)
}

// Calls returns every recorded invocation in order.
func (m *MockSource) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times Generate was invoked.
func (m *MockSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
