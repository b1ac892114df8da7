package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

// InsertAlertIfAbsent creates an alert record unless one already exists for
// the same (entity, account, period, threshold) key. Reports whether a row
// was inserted; the unique index makes re-crossing a threshold within a
// period a no-op even under concurrent writers.
func (s *SQLiteStorage) InsertAlertIfAbsent(ctx context.Context, alert *model.AlertRecord) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if alert == nil {
		return false, fmt.Errorf("alert cannot be nil")
	}
	if alert.TriggeredAt.IsZero() {
		alert.TriggeredAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(entity, account_code, year, month, threshold_pct,
			 actual_cents, budget_cents, utilization, triggered_at, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(entity, account_code, year, month, threshold_pct) DO NOTHING
	`, alert.Entity, alert.AccountCode, alert.Period.Year, alert.Period.Month,
		alert.ThresholdPct, toCents(alert.Actual), toCents(alert.Budget),
		alert.Utilization, alert.TriggeredAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err == nil {
		alert.ID = id
	}
	return true, nil
}

// GetAlerts lists alert records for a budget scope.
func (s *SQLiteStorage) GetAlerts(ctx context.Context, entity, accountCode string, period model.Period) ([]model.AlertRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity, account_code, year, month, threshold_pct,
		       actual_cents, budget_cents, utilization, triggered_at, acknowledged
		FROM alerts
		WHERE entity = ? AND account_code = ? AND year = ? AND month = ?
		ORDER BY threshold_pct
	`, entity, accountCode, period.Year, period.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []model.AlertRecord
	for rows.Next() {
		var (
			a            model.AlertRecord
			actualCents  int64
			budgetCents  int64
		)
		if err := rows.Scan(&a.ID, &a.Entity, &a.AccountCode, &a.Period.Year, &a.Period.Month,
			&a.ThresholdPct, &actualCents, &budgetCents, &a.Utilization,
			&a.TriggeredAt, &a.Acknowledged); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Actual = fromCents(actualCents)
		a.Budget = fromCents(budgetCents)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as acknowledged by an operator.
func (s *SQLiteStorage) AcknowledgeAlert(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
