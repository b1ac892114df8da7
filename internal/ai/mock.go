package ai

import (
	"context"
	"sync"

	"github.com/arnold17091984/accounting-automation/internal/service"
)

// MockInferencer is a scripted service.Inferencer for tests.
type MockInferencer struct {
	// Results maps transaction id to the result to return.
	Results map[string]service.InferenceResult
	// Err is returned on every call when set.
	Err error
	// FailuresBeforeSuccess makes the first N calls fail with Err.
	FailuresBeforeSuccess int

	mu    sync.Mutex
	calls int
}

// Infer returns the scripted results for the requested transactions.
func (m *MockInferencer) Infer(_ context.Context, req service.InferenceRequest) ([]service.InferenceResult, error) {
	m.mu.Lock()
	m.calls++
	calls := m.calls
	m.mu.Unlock()

	if m.Err != nil && (m.FailuresBeforeSuccess == 0 || calls <= m.FailuresBeforeSuccess) {
		return nil, m.Err
	}

	var results []service.InferenceResult
	for _, txn := range req.Transactions {
		if r, ok := m.Results[txn.ID]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}

// Calls reports how many times Infer was invoked.
func (m *MockInferencer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
