package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

const approvalColumns = `id, request_type, reference_id, entity, amount_cents, status,
	requester, decider, notes, reasons, requested_at, decided_at`

// CreateApproval persists a new approval request in its initial state.
func (s *SQLiteStorage) CreateApproval(ctx context.Context, req *model.ApprovalRequest) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("approval request cannot be nil")
	}
	if err := validateString(req.ID, "request id"); err != nil {
		return err
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.Type, req.ReferenceID, req.Entity, toCents(req.Amount), req.Status,
		req.Requester, req.Decider, req.DecisionNotes, strings.Join(req.Reasons, "; "),
		req.RequestedAt, req.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

// GetApproval retrieves an approval request by id.
func (s *SQLiteStorage) GetApproval(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, id)
	req, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return req, nil
}

// DecideApproval performs the atomic check-and-set from pending to a
// terminal state. It reports false when the request was no longer pending,
// which guarantees that the first decision wins under concurrent callbacks.
func (s *SQLiteStorage) DecideApproval(ctx context.Context, id string, status model.ApprovalStatus, decider, notes string, decidedAt time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if !model.ValidDecision(model.StatusPending, status) {
		return false, fmt.Errorf("invalid decision state %q", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, decider = ?, notes = ?, decided_at = ?
		WHERE id = ? AND status = 'pending'
	`, status, decider, notes, decidedAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to decide approval: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ResetApprovalToPending reverts an approved request whose downstream
// posting failed, attaching the error note for operators.
func (s *SQLiteStorage) ResetApprovalToPending(ctx context.Context, id, errorNote string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = 'pending', decider = '', decided_at = NULL, notes = ?
		WHERE id = ? AND status IN ('approved', 'auto_approved')
	`, errorNote, id)
	if err != nil {
		return fmt.Errorf("failed to reset approval: %w", err)
	}
	return requireRow(result)
}

// ListPendingApprovals lists pending requests, optionally scoped to an
// entity, oldest first.
func (s *SQLiteStorage) ListPendingApprovals(ctx context.Context, entity string) ([]model.ApprovalRequest, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE status = 'pending'`
	args := []any{}
	if entity != "" {
		query += ` AND entity = ?`
		args = append(args, entity)
	}
	query += ` ORDER BY requested_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reqs []model.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func scanApproval(row interface{ Scan(...any) error }) (*model.ApprovalRequest, error) {
	var (
		req       model.ApprovalRequest
		cents     int64
		reasons   string
		decidedAt sql.NullTime
	)
	err := row.Scan(
		&req.ID, &req.Type, &req.ReferenceID, &req.Entity, &cents, &req.Status,
		&req.Requester, &req.Decider, &req.DecisionNotes, &reasons,
		&req.RequestedAt, &decidedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Amount = fromCents(cents)
	if reasons != "" {
		req.Reasons = strings.Split(reasons, "; ")
	}
	if decidedAt.Valid {
		req.DecidedAt = &decidedAt.Time
	}
	return &req, nil
}
