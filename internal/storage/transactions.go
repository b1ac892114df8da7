package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

const txnColumns = `id, hash, source, source_detail, entity, date, description, merchant,
	amount_cents, currency, account_code, account_name, category, method, confidence,
	duplicate, duplicate_reason, anomaly, anomaly_reason, anomaly_severity,
	approved, approver, decided_at, status`

// SaveTransaction persists a single transaction.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if err := validateString(txn.ID, "transaction id"); err != nil {
		return err
	}
	return s.saveTransactionTx(ctx, s.db, txn)
}

// SaveTransactions persists a batch of transactions in one database
// transaction. A duplicate id fails the whole batch.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range txns {
		if err := s.saveTransactionTx(ctx, tx, &txns[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveTransactionTx(ctx context.Context, q queryable, txn *model.Transaction) error {
	if txn.Status == "" {
		txn.Status = model.TxnCreated
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+txnColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID, txn.Hash(), txn.Source, txn.SourceDetail, txn.Entity, txn.Date,
		txn.Description, txn.Merchant, toCents(txn.Amount), txn.Currency,
		txn.Classification.AccountCode, txn.Classification.AccountName,
		txn.Classification.Category, txn.Classification.Method, txn.Classification.Confidence,
		txn.Flags.Duplicate, txn.Flags.DuplicateReason,
		txn.Flags.Anomaly, txn.Flags.AnomalyReason, txn.Flags.AnomalySeverity,
		txn.Approved, txn.Approver, txn.DecidedAt, txn.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
	}
	return nil
}

func scanTransaction(row interface{ Scan(...any) error }) (*model.Transaction, error) {
	var (
		txn       model.Transaction
		cents     int64
		decidedAt sql.NullTime
	)
	err := row.Scan(
		&txn.ID, new(string), &txn.Source, &txn.SourceDetail, &txn.Entity, &txn.Date,
		&txn.Description, &txn.Merchant, &cents, &txn.Currency,
		&txn.Classification.AccountCode, &txn.Classification.AccountName,
		&txn.Classification.Category, &txn.Classification.Method, &txn.Classification.Confidence,
		&txn.Flags.Duplicate, &txn.Flags.DuplicateReason,
		&txn.Flags.Anomaly, &txn.Flags.AnomalyReason, &txn.Flags.AnomalySeverity,
		&txn.Approved, &txn.Approver, &decidedAt, &txn.Status,
	)
	if err != nil {
		return nil, err
	}
	txn.Amount = fromCents(cents)
	if decidedAt.Valid {
		txn.DecidedAt = &decidedAt.Time
	}
	return &txn, nil
}

// GetTransactionByID retrieves a transaction by id.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactionsByStatus lists transactions in a lifecycle status, oldest first.
func (s *SQLiteStorage) GetTransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txnColumns+` FROM transactions WHERE status = ? ORDER BY date, id
	`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

// GetRecentTransactions returns an entity's transactions whose occurred-on
// date falls within the window around the given date, any source.
func (s *SQLiteStorage) GetRecentTransactions(ctx context.Context, entity string, around time.Time, window time.Duration) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(entity, "entity"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE entity = ? AND date BETWEEN ? AND ?
		ORDER BY date, id
	`, entity, around.Add(-window), around.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// UpdateTransactionClassification writes the cascade's result. Posted and
// rejected transactions are immutable.
func (s *SQLiteStorage) UpdateTransactionClassification(ctx context.Context, id string, c model.Classification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET account_code = ?, account_name = ?, category = ?, method = ?, confidence = ?,
		    status = CASE WHEN status = 'created' THEN 'classified' ELSE status END
		WHERE id = ? AND status NOT IN ('posted', 'rejected')
	`, c.AccountCode, c.AccountName, c.Category, c.Method, c.Confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}
	return requireRow(result)
}

// UpdateTransactionFlags writes duplicate/anomaly gating signals.
func (s *SQLiteStorage) UpdateTransactionFlags(ctx context.Context, id string, flags model.TransactionFlags) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET duplicate = ?, duplicate_reason = ?, anomaly = ?, anomaly_reason = ?, anomaly_severity = ?,
		    status = CASE WHEN status = 'classified' THEN 'flagged' ELSE status END
		WHERE id = ? AND status NOT IN ('posted', 'rejected')
	`, flags.Duplicate, flags.DuplicateReason, flags.Anomaly, flags.AnomalyReason, flags.AnomalySeverity, id)
	if err != nil {
		return fmt.Errorf("failed to update flags: %w", err)
	}
	return requireRow(result)
}

// UpdateTransactionStatus moves a transaction along its lifecycle.
func (s *SQLiteStorage) UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = ? WHERE id = ? AND status NOT IN ('posted', 'rejected')
	`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return requireRow(result)
}

// SetTransactionApproval records the workflow's decision on a transaction.
func (s *SQLiteStorage) SetTransactionApproval(ctx context.Context, id string, approved bool, approver string, decidedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET approved = ?, approver = ?, decided_at = ?
		WHERE id = ? AND status NOT IN ('posted', 'rejected')
	`, approved, approver, decidedAt, id)
	if err != nil {
		return fmt.Errorf("failed to set approval: %w", err)
	}
	return requireRow(result)
}

// SumPostedAmount totals posted transaction amounts for a budget scope,
// scoped by occurred-on date. Backs the variance engine's full recompute.
func (s *SQLiteStorage) SumPostedAmount(ctx context.Context, entity, accountCode string, period model.Period) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}

	var cents int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		WHERE entity = ? AND account_code = ? AND status = 'posted'
		  AND CAST(strftime('%Y', date) AS INTEGER) = ?
		  AND CAST(strftime('%m', date) AS INTEGER) = ?
	`, entity, accountCode, period.Year, period.Month).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum posted amounts: %w", err)
	}
	return fromCents(cents), nil
}

// GetAcceptedExemplars returns the most recently posted classified
// transactions for an entity, used as few-shot context for AI inference.
func (s *SQLiteStorage) GetAcceptedExemplars(ctx context.Context, entity string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE entity = ? AND status = 'posted' AND account_code != ''
		ORDER BY date DESC LIMIT ?
	`, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exemplars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
