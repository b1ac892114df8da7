// Package approval implements the approval workflow: auto-approval gating,
// human decisions with first-wins semantics, and ledger posting.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// systemRequester is recorded on auto-approved requests so the audit trail
// distinguishes machine decisions from human ones.
const systemRequester = "system"

// Workflow gates transaction posting behind approval requests. Every
// transaction gets a request; the only question is whether the system or a
// human decides it.
type Workflow struct {
	storage  service.Storage
	poster   service.LedgerPoster
	notifier service.Notifier
	cfg      *config.Store
	now      func() time.Time
}

// NewWorkflow wires the approval workflow. The notifier may be nil.
func NewWorkflow(storage service.Storage, poster service.LedgerPoster, notifier service.Notifier, cfg *config.Store) *Workflow {
	return &Workflow{
		storage:  storage,
		poster:   poster,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates the approval request for a classified transaction. The
// request auto-approves only when every condition holds: amount at or under
// the ceiling, classification confidence at or over auto-accept, no
// duplicate or anomaly flag, and the budget not exhausted by this
// transaction. Anything short of that full conjunction goes to a human.
//
// projectedUtilization is the scope's utilization percent if this
// transaction posts; pass nil when the scope has no budget. Callers may add
// extraReasons; any reason forces a human decision.
func (w *Workflow) Submit(ctx context.Context, txn *model.Transaction, projectedUtilization *float64, extraReasons ...string) (*model.ApprovalRequest, error) {
	cfg := w.cfg.Snapshot()
	reasons := w.gatingReasons(txn, projectedUtilization, cfg)
	reasons = append(reasons, extraReasons...)

	req := &model.ApprovalRequest{
		ID:          uuid.NewString(),
		Type:        model.RequestExpense,
		ReferenceID: txn.ID,
		Entity:      txn.Entity,
		Amount:      txn.Amount,
		Requester:   systemRequester,
		Reasons:     reasons,
		RequestedAt: w.now(),
	}
	if txn.Flags.RequiresReview() {
		req.Type = model.RequestReview
	}

	if len(reasons) == 0 {
		decidedAt := w.now()
		req.Status = model.StatusAutoApproved
		req.Decider = systemRequester
		req.DecidedAt = &decidedAt
	} else {
		req.Status = model.StatusPending
	}

	if err := w.storage.CreateApproval(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}

	if req.Status == model.StatusPending && w.notifier != nil {
		if err := w.notifier.NotifyApproval(ctx, *req); err != nil {
			slog.Warn("approval notification failed", "request_id", req.ID, "error", err)
		}
	}
	return req, nil
}

// gatingReasons returns the empty slice only when auto-approval is allowed.
func (w *Workflow) gatingReasons(txn *model.Transaction, projectedUtilization *float64, cfg *config.Config) []string {
	var reasons []string

	if txn.Amount.GreaterThan(cfg.Thresholds.AutoApproveCeiling) {
		reasons = append(reasons, fmt.Sprintf("amount %s exceeds auto-approve ceiling %s",
			txn.Amount.StringFixed(2), cfg.Thresholds.AutoApproveCeiling.StringFixed(2)))
	}
	if txn.Classification.Confidence < cfg.Thresholds.AutoAccept {
		reasons = append(reasons, fmt.Sprintf("classification confidence %.2f below %.2f",
			txn.Classification.Confidence, cfg.Thresholds.AutoAccept))
	}
	if txn.Flags.Duplicate {
		reasons = append(reasons, "possible duplicate: "+txn.Flags.DuplicateReason)
	}
	if txn.Flags.Anomaly {
		reasons = append(reasons, fmt.Sprintf("%s anomaly: %s",
			txn.Flags.AnomalySeverity, txn.Flags.AnomalyReason))
	}
	if cfg.EnforceBudgetBlock && projectedUtilization != nil && *projectedUtilization >= 100 {
		reasons = append(reasons, fmt.Sprintf("would bring budget utilization to %.1f%%",
			*projectedUtilization))
	}
	return reasons
}

// Decide records a human decision. The underlying update only succeeds when
// the request is still pending, so concurrent decisions race safely and the
// first one wins; the loser gets ErrDecisionConflict. Rejections require a
// non-empty reason.
func (w *Workflow) Decide(ctx context.Context, id string, approve bool, decider, notes string) (*model.ApprovalRequest, error) {
	status := model.StatusApproved
	if !approve {
		status = model.StatusRejected
		if notes == "" {
			return nil, common.ErrReasonRequired
		}
	}

	applied, err := w.storage.DecideApproval(ctx, id, status, decider, notes, w.now())
	if err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}
	if !applied {
		return nil, common.ErrDecisionConflict
	}

	req, err := w.storage.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("approval decided",
		"request_id", id,
		"reference_id", req.ReferenceID,
		"status", status,
		"decider", decider)
	return req, nil
}

// PostApproved posts an approved transaction to the ledger with bounded
// retry. On exhausted retries the approval reverts to pending with the error
// note attached and the transaction returns to its review state, so nothing
// posts twice and nothing is lost. No budget mutation happens here; the
// caller applies the posted amount only after this succeeds.
func (w *Workflow) PostApproved(ctx context.Context, req *model.ApprovalRequest, txn *model.Transaction) (string, error) {
	var ledgerRef string
	err := common.WithRetry(ctx, func() error {
		ref, postErr := w.poster.Post(ctx, *txn)
		if postErr != nil {
			return postErr
		}
		ledgerRef = ref
		return nil
	}, service.RetryOptions{MaxAttempts: 3})

	if err != nil {
		note := fmt.Sprintf("posting failed: %v", err)
		if resetErr := w.storage.ResetApprovalToPending(ctx, req.ID, note); resetErr != nil {
			slog.Error("failed to revert approval after posting failure",
				"request_id", req.ID, "error", resetErr)
		}
		revertTo := model.TxnClassified
		if txn.Flags.RequiresReview() {
			revertTo = model.TxnFlagged
		}
		if revertErr := w.storage.UpdateTransactionStatus(ctx, txn.ID, revertTo); revertErr != nil {
			slog.Error("failed to revert transaction after posting failure",
				"transaction_id", txn.ID, "error", revertErr)
		}
		return "", fmt.Errorf("%w: %v", common.ErrPostingFailed, err)
	}

	if err := w.storage.UpdateTransactionStatus(ctx, txn.ID, model.TxnPosted); err != nil {
		return "", fmt.Errorf("posted to ledger as %s but failed to record status: %w", ledgerRef, err)
	}
	txn.Status = model.TxnPosted

	slog.Info("transaction posted",
		"transaction_id", txn.ID,
		"ledger_ref", ledgerRef,
		"amount", txn.Amount.StringFixed(2))
	return ledgerRef, nil
}
