// Package engine orchestrates the transaction pipeline: validation,
// classification, duplicate and anomaly detection, approval gating, ledger
// posting and budget variance. Transactions are processed independently; a
// failure in one never aborts the batch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/approval"
	"github.com/arnold17091984/accounting-automation/internal/budget"
	"github.com/arnold17091984/accounting-automation/internal/classify"
	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/detect"
	"github.com/arnold17091984/accounting-automation/internal/lookup"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// Engine runs the end-to-end pipeline for ingested transactions.
type Engine struct {
	storage  service.Storage
	cascade  *classify.Cascade
	index    *lookup.Index
	dups     *detect.DuplicateDetector
	scanner  *detect.AnomalyScanner
	stats    service.StatsProvider
	budgets  *budget.Engine
	workflow *approval.Workflow
	cfg      *config.Store
}

// New wires the pipeline components into an engine.
func New(
	storage service.Storage,
	cascade *classify.Cascade,
	index *lookup.Index,
	dups *detect.DuplicateDetector,
	scanner *detect.AnomalyScanner,
	statsProvider service.StatsProvider,
	budgets *budget.Engine,
	workflow *approval.Workflow,
	cfg *config.Store,
) *Engine {
	return &Engine{
		storage:  storage,
		cascade:  cascade,
		index:    index,
		dups:     dups,
		scanner:  scanner,
		stats:    statsProvider,
		budgets:  budgets,
		workflow: workflow,
		cfg:      cfg,
	}
}

// Process runs the pipeline over a batch. Malformed transactions are
// rejected up front; valid ones proceed independently, with any
// per-transaction failure logged, counted and isolated.
func (e *Engine) Process(ctx context.Context, txns []model.Transaction) (*service.CompletionStats, error) {
	start := time.Now()
	stats := &service.CompletionStats{Total: len(txns)}

	valid := make([]*model.Transaction, 0, len(txns))
	for i := range txns {
		txn := &txns[i]
		if err := e.validate(txn); err != nil {
			slog.Warn("rejected malformed transaction", "transaction_id", txn.ID, "error", err)
			stats.Rejected++
			continue
		}
		txn.Status = model.TxnCreated
		if err := e.storage.SaveTransaction(ctx, txn); err != nil {
			slog.Error("failed to save transaction", "transaction_id", txn.ID, "error", err)
			stats.Rejected++
			continue
		}
		valid = append(valid, txn)
	}

	outcomes := e.cascade.ClassifyBatch(ctx, valid)

	for i, txn := range valid {
		if err := e.processOne(ctx, txn, outcomes[i], stats); err != nil {
			slog.Error("pipeline failed for transaction",
				"transaction_id", txn.ID, "error", err)
		}
	}

	stats.Duration = time.Since(start)
	slog.Info("batch processed",
		"total", stats.Total,
		"classified", stats.Classified,
		"auto_approved", stats.AutoApproved,
		"routed_to_human", stats.RoutedToHuman,
		"duplicates", stats.Duplicates,
		"anomalies", stats.Anomalies,
		"rejected", stats.Rejected,
		"learned_rules", stats.LearnedRules,
		"duration", stats.Duration)
	return stats, nil
}

// processOne takes one classified transaction through detection, approval
// and, when approved, posting and budget application.
func (e *Engine) processOne(ctx context.Context, txn *model.Transaction, outcome model.Outcome, stats *service.CompletionStats) error {
	txn.Classification = outcome.Classification
	if err := e.storage.UpdateTransactionClassification(ctx, txn.ID, txn.Classification); err != nil {
		return fmt.Errorf("failed to record classification: %w", err)
	}
	txn.Status = model.TxnClassified
	stats.Classified++

	if outcome.Kind == model.OutcomeAIAccepted {
		if learned, err := e.index.Learn(ctx, txn, txn.Classification); err != nil {
			slog.Warn("rule learning failed", "transaction_id", txn.ID, "error", err)
		} else if learned {
			stats.LearnedRules++
		}
	}

	if err := e.detect(ctx, txn, stats); err != nil {
		return err
	}

	projected, err := e.projectedUtilization(ctx, txn)
	var extraReasons []string
	if err != nil {
		// Unknown budget state never auto-approves.
		slog.Warn("could not project budget utilization; routing to review",
			"transaction_id", txn.ID, "error", err)
		extraReasons = append(extraReasons, "budget state unavailable: "+err.Error())
	}

	req, err := e.workflow.Submit(ctx, txn, projected, extraReasons...)
	if err != nil {
		return fmt.Errorf("failed to submit for approval: %w", err)
	}

	if req.Status != model.StatusAutoApproved {
		stats.RoutedToHuman++
		return nil
	}

	stats.AutoApproved++
	return e.settle(ctx, txn, req, *req.DecidedAt)
}

// detect runs duplicate and anomaly checks and persists flags when either
// fires. Detection failures degrade to review routing, never to a drop.
func (e *Engine) detect(ctx context.Context, txn *model.Transaction, stats *service.CompletionStats) error {
	window := e.cfg.Snapshot().Duplicate.Window
	recent, err := e.storage.GetRecentTransactions(ctx, txn.Entity, txn.Date, window)
	if err != nil {
		return fmt.Errorf("failed to load recent transactions: %w", err)
	}
	if dup := e.dups.Check(txn, recent); dup.IsDuplicate {
		txn.Flags.Duplicate = true
		txn.Flags.DuplicateReason = dup.Reason
		stats.Duplicates++
	}

	catStats, err := e.stats.Stats(ctx, txn.Entity, txn.Classification.Category, txn.Merchant,
		e.cfg.Snapshot().Anomaly.StatsLookbackMonth)
	if err != nil {
		slog.Warn("stats unavailable, anomaly scan skipped", "transaction_id", txn.ID, "error", err)
	} else if anomaly := e.scanner.Scan(txn, catStats); anomaly.Flag {
		txn.Flags.Anomaly = true
		txn.Flags.AnomalyReason = anomaly.Reason
		txn.Flags.AnomalySeverity = anomaly.Severity
		stats.Anomalies++
	}

	if txn.Flags.Duplicate || txn.Flags.Anomaly {
		if err := e.storage.UpdateTransactionFlags(ctx, txn.ID, txn.Flags); err != nil {
			return fmt.Errorf("failed to record flags: %w", err)
		}
		txn.Status = model.TxnFlagged
	}
	return nil
}

// projectedUtilization computes the scope's utilization percent if this
// transaction were to post. Nil means no budget is set for the scope.
func (e *Engine) projectedUtilization(ctx context.Context, txn *model.Transaction) (*float64, error) {
	snap, err := e.budgets.Snapshot(ctx, txn.Entity, txn.Classification.AccountCode, txn.PeriodOf())
	if err != nil {
		return nil, err
	}
	if !snap.Budget.IsPositive() {
		return nil, nil
	}
	projected := snap.Actual.Add(txn.Amount).Div(snap.Budget).InexactFloat64() * 100
	return &projected, nil
}

// settle moves a decided-approved transaction through posting, budget
// application and threshold alerting.
func (e *Engine) settle(ctx context.Context, txn *model.Transaction, req *model.ApprovalRequest, decidedAt time.Time) error {
	if err := e.storage.SetTransactionApproval(ctx, txn.ID, true, req.Decider, decidedAt); err != nil {
		return fmt.Errorf("failed to record approval on transaction: %w", err)
	}
	if err := e.storage.UpdateTransactionStatus(ctx, txn.ID, model.TxnApproved); err != nil {
		return fmt.Errorf("failed to mark transaction approved: %w", err)
	}
	txn.Status = model.TxnApproved

	if _, err := e.workflow.PostApproved(ctx, req, txn); err != nil {
		// Approval and transaction were already reverted; the budget was
		// never touched.
		return err
	}

	snap, err := e.budgets.ApplyPosted(ctx, txn)
	if err != nil {
		return fmt.Errorf("posted but failed to apply budget: %w", err)
	}
	if _, err := e.budgets.CheckThresholds(ctx, snap); err != nil {
		slog.Warn("threshold check failed", "transaction_id", txn.ID, "error", err)
	}
	return nil
}

// Decide applies a human decision to a pending approval and settles the
// underlying transaction. Approvals post and hit the budget; rejections
// terminate the transaction. A human-corrected classification is recorded
// and becomes lookup-rule learning input.
func (e *Engine) Decide(ctx context.Context, requestID string, approve bool, decider, notes string, corrected *model.Classification) error {
	req, err := e.workflow.Decide(ctx, requestID, approve, decider, notes)
	if err != nil {
		return err
	}

	txn, err := e.storage.GetTransactionByID(ctx, req.ReferenceID)
	if err != nil {
		return fmt.Errorf("approval %s references unknown transaction: %w", requestID, err)
	}

	if !approve {
		if err := e.storage.UpdateTransactionStatus(ctx, txn.ID, model.TxnRejected); err != nil {
			return fmt.Errorf("failed to mark transaction rejected: %w", err)
		}
		return nil
	}

	if corrected != nil {
		corrected.Method = model.MethodHuman
		if corrected.Confidence == 0 {
			corrected.Confidence = 1.0
		}
		if err := e.storage.UpdateTransactionClassification(ctx, txn.ID, *corrected); err != nil {
			return fmt.Errorf("failed to record corrected classification: %w", err)
		}
		txn.Classification = *corrected
	}

	if _, err := e.index.Learn(ctx, txn, txn.Classification); err != nil {
		slog.Warn("rule learning failed", "transaction_id", txn.ID, "error", err)
	}

	return e.settle(ctx, txn, req, *req.DecidedAt)
}

// validate rejects malformed input before anything is persisted.
func (e *Engine) validate(txn *model.Transaction) error {
	if txn.ID == "" {
		return common.NewInputError("id", "must not be empty")
	}
	if txn.Entity == "" {
		return common.NewInputError("entity", "must not be empty")
	}
	if !e.cfg.Snapshot().HasEntity(txn.Entity) {
		return common.NewInputError("entity", fmt.Sprintf("unknown entity %q", txn.Entity))
	}
	if txn.Date.IsZero() {
		return common.NewInputError("date", "must be set")
	}
	if txn.Amount.IsZero() {
		return common.NewInputError("amount", "must be non-zero")
	}
	if txn.Source == "" {
		return common.NewInputError("source", "must be set")
	}
	return nil
}
