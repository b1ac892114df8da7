package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnold17091984/accounting-automation/internal/ai"
	"github.com/arnold17091984/accounting-automation/internal/approval"
	"github.com/arnold17091984/accounting-automation/internal/budget"
	"github.com/arnold17091984/accounting-automation/internal/classify"
	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/detect"
	"github.com/arnold17091984/accounting-automation/internal/lookup"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
	"github.com/arnold17091984/accounting-automation/internal/storage"
	"github.com/arnold17091984/accounting-automation/internal/testutil"
)

type pipeline struct {
	engine   *Engine
	store    *storage.SQLiteStorage
	poster   *testutil.MockPoster
	notifier *testutil.MockNotifier
	cfg      *config.Store
}

func newPipeline(t *testing.T, mock *ai.MockInferencer, stats service.CategoryStats) *pipeline {
	t.Helper()

	store := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig(t)
	poster := &testutil.MockPoster{}
	notifier := &testutil.MockNotifier{}
	snap := cfg.Snapshot()

	index := lookup.NewIndex(store, snap.Thresholds.Learn)
	cascade := classify.NewCascade(index, mock, store, cfg)
	dups := detect.NewDuplicateDetector(snap.Duplicate)
	scanner := detect.NewAnomalyScanner(snap.Anomaly)
	budgets := budget.NewEngine(store, notifier, cfg)
	workflow := approval.NewWorkflow(store, poster, notifier, cfg)
	statsProvider := &testutil.StaticStats{Result: stats}

	return &pipeline{
		engine:   New(store, cascade, index, dups, scanner, statsProvider, budgets, workflow, cfg),
		store:    store,
		poster:   poster,
		notifier: notifier,
		cfg:      cfg,
	}
}

func setBudget(t *testing.T, p *pipeline, amount string) {
	t.Helper()
	err := p.store.UpsertBudgetEntry(context.Background(), &model.BudgetEntry{
		Entity: "main", AccountCode: "5100", Year: 2026, Month: 3,
		Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
}

// benignStats keeps the anomaly scanner quiet for known activity.
var benignStats = service.CategoryStats{MerchantSeen: true}

func confidentAI(ids ...string) *ai.MockInferencer {
	results := make(map[string]service.InferenceResult, len(ids))
	for _, id := range ids {
		results[id] = service.InferenceResult{
			TransactionID: id, AccountCode: "5100",
			AccountName: "Office Supplies", Category: "supplies", Confidence: 0.92,
		}
	}
	return &ai.MockInferencer{Results: results}
}

func TestProcess_CleanTransactionAutoApprovesAndPosts(t *testing.T) {
	p := newPipeline(t, confidentAI("t1"), benignStats)
	ctx := context.Background()
	setBudget(t, p, "2000000")

	txn := testutil.NewTransaction("t1", testutil.WithAmount("9500.00"))
	stats, err := p.engine.Process(ctx, []model.Transaction{txn})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Classified)
	assert.Equal(t, 1, stats.AutoApproved)
	assert.Equal(t, 0, stats.RoutedToHuman)
	assert.Equal(t, 1, stats.LearnedRules, "0.92 clears the learn threshold")

	stored, err := p.store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TxnPosted, stored.Status)
	assert.True(t, stored.Approved)
	assert.Equal(t, "system", stored.Approver)
	require.Len(t, p.poster.Posted(), 1)

	actual, err := p.store.GetActual(ctx, "main", "5100", model.Period{Year: 2026, Month: 3})
	require.NoError(t, err)
	assert.True(t, actual.Equal(decimal.RequireFromString("9500.00")))
}

func TestProcess_DuplicateForcesPendingDespiteEligibility(t *testing.T) {
	p := newPipeline(t, confidentAI("form-1"), benignStats)
	ctx := context.Background()
	setBudget(t, p, "2000000")

	// A card transaction from this morning is already in the store.
	prior := testutil.NewTransaction("card-1",
		testutil.WithAmount("9500.00"),
		testutil.WithSource(model.SourceCard))
	require.NoError(t, p.store.SaveTransaction(ctx, &prior))

	// The same spend arrives again through an expense form.
	dup := testutil.NewTransaction("form-1",
		testutil.WithAmount("9500.00"),
		testutil.WithSource(model.SourceExpenseForm),
		testutil.WithDate(prior.Date.Add(3*time.Hour)))

	stats, err := p.engine.Process(ctx, []model.Transaction{dup})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 0, stats.AutoApproved)
	assert.Equal(t, 1, stats.RoutedToHuman)

	stored, err := p.store.GetTransactionByID(ctx, "form-1")
	require.NoError(t, err)
	assert.Equal(t, model.TxnFlagged, stored.Status)
	assert.True(t, stored.Flags.Duplicate)
	assert.Empty(t, p.poster.Posted(), "nothing posts without a human decision")

	pending, err := p.store.ListPendingApprovals(ctx, "main")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.RequestReview, pending[0].Type)
}

func TestProcess_MalformedInputRejected(t *testing.T) {
	p := newPipeline(t, confidentAI(), benignStats)
	ctx := context.Background()

	noEntity := testutil.NewTransaction("bad-1")
	noEntity.Entity = ""
	unknownEntity := testutil.NewTransaction("bad-2")
	unknownEntity.Entity = "ghost"
	zeroAmount := testutil.NewTransaction("bad-3", testutil.WithAmount("0"))

	stats, err := p.engine.Process(ctx, []model.Transaction{noEntity, unknownEntity, zeroAmount})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rejected)
	assert.Equal(t, 0, stats.Classified)

	_, err = p.store.GetTransactionByID(ctx, "bad-1")
	assert.ErrorIs(t, err, common.ErrNotFound, "rejected input is never persisted")
}

func TestProcess_LowConfidenceRoutesToHumanThenDecideApproves(t *testing.T) {
	mock := &ai.MockInferencer{Results: map[string]service.InferenceResult{
		"t1": {TransactionID: "t1", AccountCode: "5100", Category: "supplies", Confidence: 0.55},
	}}
	p := newPipeline(t, mock, benignStats)
	ctx := context.Background()
	setBudget(t, p, "2000000")

	txn := testutil.NewTransaction("t1", testutil.WithAmount("4500.00"))
	stats, err := p.engine.Process(ctx, []model.Transaction{txn})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RoutedToHuman)

	pending, err := p.store.ListPendingApprovals(ctx, "main")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	corrected := &model.Classification{AccountCode: "5300", Category: "meals"}
	err = p.engine.Decide(ctx, pending[0].ID, true, "maria", "checked the receipt", corrected)
	require.NoError(t, err)

	stored, err := p.store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TxnPosted, stored.Status)
	assert.Equal(t, model.MethodHuman, stored.Classification.Method)
	assert.Equal(t, "5300", stored.Classification.AccountCode)

	// The human correction became a lookup rule.
	rule, err := p.store.FindExactRule(ctx, model.NormalizeMerchant(txn.Merchant), "main")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "5300", rule.AccountCode)

	// Budget actual reflects the human-approved posting.
	actual, err := p.store.GetActual(ctx, "main", "5300", model.Period{Year: 2026, Month: 3})
	require.NoError(t, err)
	assert.True(t, actual.Equal(decimal.RequireFromString("4500.00")))
}

func TestDecide_RejectTerminatesTransaction(t *testing.T) {
	mock := &ai.MockInferencer{Results: map[string]service.InferenceResult{
		"t1": {TransactionID: "t1", AccountCode: "5100", Category: "supplies", Confidence: 0.55},
	}}
	p := newPipeline(t, mock, benignStats)
	ctx := context.Background()

	txn := testutil.NewTransaction("t1")
	_, err := p.engine.Process(ctx, []model.Transaction{txn})
	require.NoError(t, err)

	pending, err := p.store.ListPendingApprovals(ctx, "main")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	err = p.engine.Decide(ctx, pending[0].ID, false, "jose", "personal expense", nil)
	require.NoError(t, err)

	stored, err := p.store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TxnRejected, stored.Status)
	assert.Empty(t, p.poster.Posted())

	// Rejection is terminal; a second decision conflicts.
	err = p.engine.Decide(ctx, pending[0].ID, true, "maria", "", nil)
	assert.ErrorIs(t, err, common.ErrDecisionConflict)
}

func TestProcess_ExhaustedPostingRoutesBackToPending(t *testing.T) {
	p := newPipeline(t, confidentAI("t1"), benignStats)
	p.poster.Err = errors.New("ledger down")
	ctx := context.Background()
	setBudget(t, p, "2000000")

	txn := testutil.NewTransaction("t1", testutil.WithAmount("9500.00"))
	_, err := p.engine.Process(ctx, []model.Transaction{txn})
	require.NoError(t, err, "a posting failure is isolated, not a batch error")

	stored, err := p.store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TxnClassified, stored.Status, "reverted for re-decision")

	pending, err := p.store.ListPendingApprovals(ctx, "main")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "the approval is pending again, nothing was dropped")

	// The budget never saw the failed posting.
	actual, err := p.store.GetActual(ctx, "main", "5100", model.Period{Year: 2026, Month: 3})
	require.NoError(t, err)
	assert.True(t, actual.IsZero())
}

// budgetFailStore makes every budget read fail while the rest of the store
// behaves normally.
type budgetFailStore struct {
	service.Storage
}

func (budgetFailStore) GetBudgetAmount(context.Context, string, string, model.Period) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("budget table unavailable")
}

func TestProcess_UnknownBudgetStateRoutesToReview(t *testing.T) {
	store := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig(t)
	poster := &testutil.MockPoster{}
	notifier := &testutil.MockNotifier{}
	snap := cfg.Snapshot()

	index := lookup.NewIndex(store, snap.Thresholds.Learn)
	cascade := classify.NewCascade(index, confidentAI("t1"), store, cfg)
	dups := detect.NewDuplicateDetector(snap.Duplicate)
	scanner := detect.NewAnomalyScanner(snap.Anomaly)
	budgets := budget.NewEngine(budgetFailStore{store}, notifier, cfg)
	workflow := approval.NewWorkflow(store, poster, notifier, cfg)
	stats := &testutil.StaticStats{Result: benignStats}
	eng := New(store, cascade, index, dups, scanner, stats, budgets, workflow, cfg)

	ctx := context.Background()
	txn := testutil.NewTransaction("t1", testutil.WithAmount("9500.00"))
	res, err := eng.Process(ctx, []model.Transaction{txn})
	require.NoError(t, err)

	assert.Equal(t, 0, res.AutoApproved, "unknown budget state must not auto-approve")
	assert.Equal(t, 1, res.RoutedToHuman)
	assert.Empty(t, poster.Posted())

	pending, err := store.ListPendingApprovals(ctx, "main")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Contains(t, strings.Join(pending[0].Reasons, "; "), "budget state unavailable")
}

func TestProcess_BudgetAlertsFireOnPosting(t *testing.T) {
	p := newPipeline(t, confidentAI("t1"), benignStats)
	ctx := context.Background()
	setBudget(t, p, "10000")

	txn := testutil.NewTransaction("t1", testutil.WithAmount("9500.00"))
	_, err := p.engine.Process(ctx, []model.Transaction{txn})
	require.NoError(t, err)

	alerts, err := p.store.GetAlerts(ctx, "main", "5100", model.Period{Year: 2026, Month: 3})
	require.NoError(t, err)
	require.Len(t, alerts, 2, "95%% utilization crosses 70 and 90")
	assert.Equal(t, 2, p.notifier.AlertCount())
}
