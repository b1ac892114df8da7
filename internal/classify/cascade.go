// Package classify implements the classification cascade: deterministic
// merchant lookup, then AI inference, then confidence-gated human review.
package classify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/lookup"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// emptyMerchantCap limits confidence when only description keywords were
// available to classify with.
const emptyMerchantCap = 0.6

// Cascade resolves raw transactions to classifications. It never fails for
// well-formed input: when every path is exhausted the result is a
// confidence-0 classification routed to human review, not a dropped
// transaction.
type Cascade struct {
	index      *lookup.Index
	inferencer service.Inferencer
	storage    service.Storage
	cfg        *config.Store
}

// NewCascade wires the cascade stages together.
func NewCascade(index *lookup.Index, inferencer service.Inferencer, storage service.Storage, cfg *config.Store) *Cascade {
	return &Cascade{index: index, inferencer: inferencer, storage: storage, cfg: cfg}
}

// Classify runs the cascade for a single transaction.
func (c *Cascade) Classify(ctx context.Context, txn *model.Transaction) model.Outcome {
	outcomes := c.ClassifyBatch(ctx, []*model.Transaction{txn})
	return outcomes[0]
}

// ClassifyBatch classifies a batch. Transactions are independent: an AI
// failure for one chunk degrades those transactions to human review and
// never aborts the rest of the batch.
func (c *Cascade) ClassifyBatch(ctx context.Context, txns []*model.Transaction) []model.Outcome {
	cfg := c.cfg.Snapshot()
	outcomes := make([]model.Outcome, len(txns))

	// Stage 1: deterministic lookup.
	var pending []int
	for i, txn := range txns {
		if outcome, ok := c.tryLookup(ctx, txn); ok {
			outcomes[i] = outcome
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return outcomes
	}

	// Stage 2: AI inference in bounded chunks.
	batchSize := cfg.AI.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 30
	}
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		chunkTxns := make([]model.Transaction, len(chunk))
		for j, i := range chunk {
			chunkTxns[j] = *txns[i]
		}

		results := c.infer(ctx, chunkTxns, cfg)
		for _, i := range chunk {
			outcomes[i] = c.gate(txns[i], results[txns[i].ID], cfg)
		}
	}

	return outcomes
}

// tryLookup attempts stage 1. The empty-merchant edge case falls back to
// description keywords with a capped confidence.
func (c *Cascade) tryLookup(ctx context.Context, txn *model.Transaction) (model.Outcome, bool) {
	merchantText := txn.Merchant
	capped := false
	if model.NormalizeMerchant(merchantText) == "" {
		merchantText = txn.Description
		capped = true
	}

	rule, err := c.index.Resolve(ctx, merchantText, txn.Entity)
	if err != nil {
		slog.Warn("merchant lookup failed", "transaction_id", txn.ID, "error", err)
		return model.Outcome{}, false
	}
	if rule == nil {
		return model.Outcome{}, false
	}

	classification := rule.Classify()
	if capped && classification.Confidence > emptyMerchantCap {
		classification.Confidence = emptyMerchantCap
	}
	return model.Outcome{Kind: model.OutcomeLookup, Rule: rule, Classification: classification}, true
}

// infer calls the AI capability with few-shot context. A transient failure
// is retried with bounded backoff; unparsable output gets exactly one
// stricter retry before the chunk degrades to confidence 0.
func (c *Cascade) infer(ctx context.Context, txns []model.Transaction, cfg *config.Config) map[string]*service.InferenceResult {
	byID := make(map[string]*service.InferenceResult, len(txns))
	if len(txns) == 0 {
		return byID
	}

	entity := txns[0].Entity
	req := service.InferenceRequest{
		Entity:       entity,
		Accounts:     accountRefs(cfg),
		Transactions: txns,
	}

	exemplars, err := c.storage.GetAcceptedExemplars(ctx, entity, cfg.AI.ExemplarLimit)
	if err != nil {
		slog.Warn("failed to load exemplars", "entity", entity, "error", err)
	}
	for _, ex := range exemplars {
		req.Exemplars = append(req.Exemplars, service.Exemplar{
			Description: ex.Description,
			Merchant:    ex.Merchant,
			AccountCode: ex.Classification.AccountCode,
			Category:    ex.Classification.Category,
		})
	}

	results, err := c.callWithRetry(ctx, req)
	if errors.Is(err, common.ErrUnparsableResponse) {
		req.Strict = true
		results, err = c.callWithRetry(ctx, req)
	}
	if err != nil {
		slog.Warn("AI inference exhausted, routing chunk to review",
			"entity", entity,
			"count", len(txns),
			"error", err)
		return byID
	}

	for i := range results {
		byID[results[i].TransactionID] = &results[i]
	}
	return byID
}

func (c *Cascade) callWithRetry(ctx context.Context, req service.InferenceRequest) ([]service.InferenceResult, error) {
	timeout := c.cfg.Snapshot().AI.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var results []service.InferenceResult
	err := common.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var inferErr error
		results, inferErr = c.inferencer.Infer(callCtx, req)
		if errors.Is(inferErr, common.ErrUnparsableResponse) {
			// Parse failures get the strict retry path, not backoff.
			return common.Permanent(inferErr)
		}
		return inferErr
	}, service.RetryOptions{MaxAttempts: 3})

	return results, err
}

// gate applies the confidence gate to an AI result (stage 3). Missing
// results mean the inference path failed for this transaction.
func (c *Cascade) gate(txn *model.Transaction, result *service.InferenceResult, cfg *config.Config) model.Outcome {
	if result == nil {
		return model.Outcome{Kind: model.OutcomeNeedsReview, Classification: model.Unclassified()}
	}

	classification := model.Classification{
		AccountCode: result.AccountCode,
		AccountName: result.AccountName,
		Category:    result.Category,
		Method:      model.MethodAI,
		Confidence:  result.Confidence,
	}
	if model.NormalizeMerchant(txn.Merchant) == "" && classification.Confidence > emptyMerchantCap {
		classification.Confidence = emptyMerchantCap
	}

	if classification.Confidence >= cfg.Thresholds.AutoAccept {
		return model.Outcome{Kind: model.OutcomeAIAccepted, Classification: classification}
	}
	return model.Outcome{Kind: model.OutcomeNeedsReview, Classification: classification}
}

func accountRefs(cfg *config.Config) []service.AccountRef {
	refs := make([]service.AccountRef, len(cfg.ChartOfAccounts))
	for i, acct := range cfg.ChartOfAccounts {
		refs[i] = service.AccountRef{Code: acct.Code, Name: acct.Name, Category: acct.Category}
	}
	return refs
}
