package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnold17091984/accounting-automation/internal/ai"
	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/lookup"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
	"github.com/arnold17091984/accounting-automation/internal/testutil"
)

func newCascade(t *testing.T, mock *ai.MockInferencer) (*Cascade, service.Storage) {
	t.Helper()
	store := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig(t)
	index := lookup.NewIndex(store, cfg.Snapshot().Thresholds.Learn)
	return NewCascade(index, mock, store, cfg), store
}

func TestClassify_LookupShortCircuitsAI(t *testing.T) {
	mock := &ai.MockInferencer{}
	cascade, store := newCascade(t, mock)
	ctx := context.Background()

	rule := &model.MerchantRule{
		Pattern: "OFFICE WAREHOUSE", Entity: "main",
		AccountCode: "5100", Category: "supplies", Confidence: 0.95,
	}
	_, err := store.InsertRuleIfAbsent(ctx, rule)
	require.NoError(t, err)

	txn := testutil.NewTransaction("t1")
	outcome := cascade.Classify(ctx, &txn)

	assert.Equal(t, model.OutcomeLookup, outcome.Kind)
	assert.Equal(t, "5100", outcome.Classification.AccountCode)
	assert.Equal(t, model.MethodLookup, outcome.Classification.Method)
	assert.Equal(t, 0, mock.Calls(), "a lookup hit must not invoke the AI")
}

func TestClassify_AIAcceptedAtThreshold(t *testing.T) {
	mock := &ai.MockInferencer{Results: map[string]service.InferenceResult{
		"t1": {TransactionID: "t1", AccountCode: "5300", Category: "meals", Confidence: 0.80},
	}}
	cascade, _ := newCascade(t, mock)

	txn := testutil.NewTransaction("t1", testutil.WithMerchant("NEW RESTAURANT"))
	outcome := cascade.Classify(context.Background(), &txn)

	assert.Equal(t, model.OutcomeAIAccepted, outcome.Kind)
	assert.Equal(t, model.MethodAI, outcome.Classification.Method)
	assert.Equal(t, 0.80, outcome.Classification.Confidence)
}

func TestClassify_BelowThresholdNeedsReview(t *testing.T) {
	mock := &ai.MockInferencer{Results: map[string]service.InferenceResult{
		"t1": {TransactionID: "t1", AccountCode: "5300", Category: "meals", Confidence: 0.79},
	}}
	cascade, _ := newCascade(t, mock)

	txn := testutil.NewTransaction("t1", testutil.WithMerchant("NEW RESTAURANT"))
	outcome := cascade.Classify(context.Background(), &txn)

	assert.Equal(t, model.OutcomeNeedsReview, outcome.Kind)
	assert.True(t, outcome.MandatoryReview())
	// The provisional classification travels with the outcome.
	assert.Equal(t, "5300", outcome.Classification.AccountCode)
}

func TestClassify_UnparsableGetsOneStrictRetry(t *testing.T) {
	mock := &ai.MockInferencer{
		Err:                   common.ErrUnparsableResponse,
		FailuresBeforeSuccess: 1,
		Results: map[string]service.InferenceResult{
			"t1": {TransactionID: "t1", AccountCode: "5300", Category: "meals", Confidence: 0.9},
		},
	}
	cascade, _ := newCascade(t, mock)

	txn := testutil.NewTransaction("t1", testutil.WithMerchant("NEW RESTAURANT"))
	outcome := cascade.Classify(context.Background(), &txn)

	assert.Equal(t, model.OutcomeAIAccepted, outcome.Kind)
	assert.Equal(t, 2, mock.Calls(), "exactly one strict retry after a parse failure")
}

func TestClassify_ExhaustedAIFallsThroughToReview(t *testing.T) {
	mock := &ai.MockInferencer{Err: errors.New("model output was prose")}
	cascade, _ := newCascade(t, mock)

	txn := testutil.NewTransaction("t1", testutil.WithMerchant("NEW RESTAURANT"))
	outcome := cascade.Classify(context.Background(), &txn)

	assert.Equal(t, model.OutcomeNeedsReview, outcome.Kind)
	assert.Equal(t, float64(0), outcome.Classification.Confidence)
	assert.Equal(t, "unclassified", outcome.Classification.Category)
}

func TestClassify_EmptyMerchantCapsConfidence(t *testing.T) {
	mock := &ai.MockInferencer{Results: map[string]service.InferenceResult{
		"t1": {TransactionID: "t1", AccountCode: "5300", Category: "meals", Confidence: 0.95},
	}}
	cascade, _ := newCascade(t, mock)

	txn := testutil.NewTransaction("t1", testutil.WithMerchant(""))
	outcome := cascade.Classify(context.Background(), &txn)

	assert.Equal(t, model.OutcomeNeedsReview, outcome.Kind,
		"capped confidence 0.6 is below auto-accept, so review is mandatory")
	assert.Equal(t, emptyMerchantCap, outcome.Classification.Confidence)
}

func TestClassifyBatch_PartialFailureIsolation(t *testing.T) {
	// Only t2 gets a result back; t1 is missing from the AI output.
	mock := &ai.MockInferencer{Results: map[string]service.InferenceResult{
		"t2": {TransactionID: "t2", AccountCode: "5200", Category: "utilities", Confidence: 0.9},
	}}
	cascade, _ := newCascade(t, mock)

	t1 := testutil.NewTransaction("t1", testutil.WithMerchant("VENDOR A"))
	t2 := testutil.NewTransaction("t2", testutil.WithMerchant("VENDOR B"))
	outcomes := cascade.ClassifyBatch(context.Background(), []*model.Transaction{&t1, &t2})

	require.Len(t, outcomes, 2)
	assert.Equal(t, model.OutcomeNeedsReview, outcomes[0].Kind)
	assert.Equal(t, model.OutcomeAIAccepted, outcomes[1].Kind)
}
