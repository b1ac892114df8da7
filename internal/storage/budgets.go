package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

// UpsertBudgetEntry saves the budgeted amount for one (entity, account,
// year, month) key, replacing any existing entry.
func (s *SQLiteStorage) UpsertBudgetEntry(ctx context.Context, entry *model.BudgetEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("budget entry cannot be nil")
	}
	if err := validateString(entry.Entity, "entity"); err != nil {
		return err
	}
	if err := validateString(entry.AccountCode, "account code"); err != nil {
		return err
	}
	if entry.Month < 1 || entry.Month > 12 {
		return fmt.Errorf("month %d out of range", entry.Month)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_entries (entity, account_code, year, month, amount_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity, account_code, year, month) DO UPDATE SET
			amount_cents = excluded.amount_cents
	`, entry.Entity, entry.AccountCode, entry.Year, entry.Month, toCents(entry.Amount))
	if err != nil {
		return fmt.Errorf("failed to upsert budget entry: %w", err)
	}
	return nil
}

// GetBudgetAmount returns the budgeted amount for a scope, zero when no
// entry exists.
func (s *SQLiteStorage) GetBudgetAmount(ctx context.Context, entity, accountCode string, period model.Period) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}

	var cents int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM budget_entries
		WHERE entity = ? AND account_code = ? AND year = ? AND month = ?
	`, entity, accountCode, period.Year, period.Month).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get budget amount: %w", err)
	}
	return fromCents(cents), nil
}

// AddToActual applies an atomic increment to the running actual for a
// budget scope and returns the new total. The upsert-increment is a single
// statement, so concurrent posts to the same scope never lose updates.
func (s *SQLiteStorage) AddToActual(ctx context.Context, entity, accountCode string, period model.Period, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}
	if err := validateString(entity, "entity"); err != nil {
		return decimal.Zero, err
	}
	if err := validateString(accountCode, "account code"); err != nil {
		return decimal.Zero, err
	}

	var cents int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO budget_actuals (entity, account_code, year, month, amount_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity, account_code, year, month) DO UPDATE SET
			amount_cents = amount_cents + excluded.amount_cents
		RETURNING amount_cents
	`, entity, accountCode, period.Year, period.Month, toCents(amount)).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to add to actual: %w", err)
	}
	return fromCents(cents), nil
}

// GetActual returns the incrementally maintained actual for a scope.
func (s *SQLiteStorage) GetActual(ctx context.Context, entity, accountCode string, period model.Period) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}

	var cents int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM budget_actuals
		WHERE entity = ? AND account_code = ? AND year = ? AND month = ?
	`, entity, accountCode, period.Year, period.Month).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get actual: %w", err)
	}
	return fromCents(cents), nil
}
