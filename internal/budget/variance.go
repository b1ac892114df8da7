// Package budget maintains budget-vs-actual variance and threshold alerting.
// Actuals are running totals updated incrementally as transactions post; a
// full recompute from posted transactions must always agree with them.
package budget

import (
	"context"
	"fmt"
	"sync"

	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// Engine owns budget actuals and alerting for every (entity, account,
// period) scope. Concurrent posts to the same scope serialize on a per-key
// mutex; different scopes never contend.
type Engine struct {
	storage  service.Storage
	notifier service.Notifier
	cfg      *config.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a variance engine. The notifier may be nil; emitted
// alerts are then persisted but not delivered.
func NewEngine(storage service.Storage, notifier service.Notifier, cfg *config.Store) *Engine {
	return &Engine{
		storage:  storage,
		notifier: notifier,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(entity, account string, period model.Period) *sync.Mutex {
	key := fmt.Sprintf("%s:%s:%s", entity, account, period)
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// ApplyPosted folds a posted transaction into its scope's running actual and
// returns the fresh snapshot. The increment is O(1) regardless of history
// size. Scope is keyed by the transaction's occurred-on date.
func (e *Engine) ApplyPosted(ctx context.Context, txn *model.Transaction) (*model.VarianceSnapshot, error) {
	entity := txn.Entity
	account := txn.Classification.AccountCode
	period := txn.PeriodOf()

	l := e.lockFor(entity, account, period)
	l.Lock()
	defer l.Unlock()

	actual, err := e.storage.AddToActual(ctx, entity, account, period, txn.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to apply posted amount: %w", err)
	}

	budget, err := e.storage.GetBudgetAmount(ctx, entity, account, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget: %w", err)
	}

	snap := model.NewVarianceSnapshot(entity, account, period, budget, actual)
	return &snap, nil
}

// Snapshot reads the current variance for a scope without mutating it.
func (e *Engine) Snapshot(ctx context.Context, entity, account string, period model.Period) (*model.VarianceSnapshot, error) {
	budget, err := e.storage.GetBudgetAmount(ctx, entity, account, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget: %w", err)
	}
	actual, err := e.storage.GetActual(ctx, entity, account, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load actual: %w", err)
	}
	snap := model.NewVarianceSnapshot(entity, account, period, budget, actual)
	return &snap, nil
}

// Recompute derives the snapshot from first principles: the full sum of
// posted transactions in scope. It must equal the incrementally maintained
// actual; a mismatch means a posting skipped ApplyPosted.
func (e *Engine) Recompute(ctx context.Context, entity, account string, period model.Period) (*model.VarianceSnapshot, error) {
	l := e.lockFor(entity, account, period)
	l.Lock()
	defer l.Unlock()

	actual, err := e.storage.SumPostedAmount(ctx, entity, account, period)
	if err != nil {
		return nil, fmt.Errorf("failed to sum posted amounts: %w", err)
	}
	budget, err := e.storage.GetBudgetAmount(ctx, entity, account, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget: %w", err)
	}

	snap := model.NewVarianceSnapshot(entity, account, period, budget, actual)
	return &snap, nil
}

// SetBudget upserts the budgeted amount for a scope.
func (e *Engine) SetBudget(ctx context.Context, entry *model.BudgetEntry) error {
	return e.storage.UpsertBudgetEntry(ctx, entry)
}
