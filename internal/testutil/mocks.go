package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// MockPoster is a scripted service.LedgerPoster.
type MockPoster struct {
	// Err fails every post when set.
	Err error
	// FailuresBeforeSuccess makes the first N posts fail with Err.
	FailuresBeforeSuccess int

	mu     sync.Mutex
	posted []model.Transaction
	calls  int
}

// Post records the transaction and returns a synthetic ledger reference.
func (m *MockPoster) Post(_ context.Context, txn model.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil && (m.FailuresBeforeSuccess == 0 || m.calls <= m.FailuresBeforeSuccess) {
		return "", m.Err
	}
	m.posted = append(m.posted, txn)
	return fmt.Sprintf("LEDGER-%d", len(m.posted)), nil
}

// Posted returns the successfully posted transactions.
func (m *MockPoster) Posted() []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Transaction, len(m.posted))
	copy(out, m.posted)
	return out
}

// Calls reports total post attempts including failures.
func (m *MockPoster) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockNotifier records notifications instead of delivering them.
type MockNotifier struct {
	mu        sync.Mutex
	Approvals []model.ApprovalRequest
	Alerts    []model.AlertRecord
}

// NotifyApproval records the approval request.
func (m *MockNotifier) NotifyApproval(_ context.Context, req model.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Approvals = append(m.Approvals, req)
	return nil
}

// NotifyAlert records the alert.
func (m *MockNotifier) NotifyAlert(_ context.Context, alert model.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, alert)
	return nil
}

// AlertCount returns how many alerts were delivered.
func (m *MockNotifier) AlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// StaticStats is a service.StatsProvider returning fixed statistics.
type StaticStats struct {
	Result service.CategoryStats
	Err    error
}

// Stats returns the configured statistics.
func (s *StaticStats) Stats(_ context.Context, _, _, _ string, _ int) (service.CategoryStats, error) {
	return s.Result, s.Err
}
