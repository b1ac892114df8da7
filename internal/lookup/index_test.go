package lookup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/storage"
)

func newTestIndex(t *testing.T) (*Index, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return NewIndex(store, 0.90), store
}

func seedRule(t *testing.T, store *storage.SQLiteStorage, rule model.MerchantRule) model.MerchantRule {
	t.Helper()
	inserted, err := store.InsertRuleIfAbsent(context.Background(), &rule)
	require.NoError(t, err)
	require.True(t, inserted)
	return rule
}

func TestResolve_ExactMatchTiers(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	agnostic := seedRule(t, store, model.MerchantRule{
		Pattern: "GRAB PH", AccountCode: "5400", Category: "transport", Confidence: 0.85,
	})
	specific := seedRule(t, store, model.MerchantRule{
		Pattern: "GRAB PH", Entity: "main", AccountCode: "5450", Category: "delivery", Confidence: 0.80,
	})

	// Entity-specific beats agnostic even at lower confidence.
	rule, err := idx.Resolve(ctx, "grab ph", "main")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, specific.ID, rule.ID)

	// Other entities fall through to the agnostic rule.
	rule, err = idx.Resolve(ctx, "Grab PH", "branch")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, agnostic.ID, rule.ID)
}

func TestResolve_RegexFallback(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	seedRule(t, store, model.MerchantRule{
		Pattern: `^JOLLIBEE\b.*`, Entity: "", IsRegex: true,
		AccountCode: "5300", Category: "meals", Confidence: 0.9,
	})
	exact := seedRule(t, store, model.MerchantRule{
		Pattern: "JOLLIBEE BGC", Entity: "", AccountCode: "5301", Category: "meals", Confidence: 0.7,
	})

	// Exact match wins over regex regardless of confidence ordering.
	rule, err := idx.Resolve(ctx, "Jollibee BGC", "main")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, exact.ID, rule.ID)

	// No exact rule for this text; regex tier catches it.
	rule, err = idx.Resolve(ctx, "JOLLIBEE ORTIGAS BRANCH 4", "main")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.True(t, rule.IsRegex)
}

func TestResolve_MissAndEmpty(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	rule, err := idx.Resolve(ctx, "UNKNOWN VENDOR", "main")
	require.NoError(t, err)
	assert.Nil(t, rule)

	rule, err = idx.Resolve(ctx, "   ", "main")
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestResolve_InvalidRegexIsSkipped(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	seedRule(t, store, model.MerchantRule{
		Pattern: `([unclosed`, IsRegex: true, AccountCode: "x", Confidence: 1,
	})

	rule, err := idx.Resolve(ctx, "anything", "main")
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestLearn_ThresholdAndProvenance(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	txn := &model.Transaction{ID: "t1", Entity: "main", Merchant: "Office Warehouse"}

	// Below the learn threshold: nothing happens.
	learned, err := idx.Learn(ctx, txn, model.Classification{
		AccountCode: "5100", Category: "supplies", Method: model.MethodAI, Confidence: 0.85,
	})
	require.NoError(t, err)
	assert.False(t, learned)

	// At threshold: a learned rule appears under the normalized pattern.
	learned, err = idx.Learn(ctx, txn, model.Classification{
		AccountCode: "5100", Category: "supplies", Method: model.MethodAI, Confidence: 0.93,
	})
	require.NoError(t, err)
	assert.True(t, learned)

	rule, err := store.FindExactRule(ctx, "OFFICE WAREHOUSE", "main")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, model.ProvenanceLearned, rule.Provenance)

	// Learning again is a no-op; the existing rule is untouched.
	learned, err = idx.Learn(ctx, txn, model.Classification{
		AccountCode: "9999", Category: "other", Method: model.MethodHuman, Confidence: 1.0,
	})
	require.NoError(t, err)
	assert.False(t, learned)

	rule, err = store.FindExactRule(ctx, "OFFICE WAREHOUSE", "main")
	require.NoError(t, err)
	assert.Equal(t, "5100", rule.AccountCode, "existing rule must not be overwritten")
}

func TestLearn_OnlyAIAndHumanMethods(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	txn := &model.Transaction{ID: "t1", Entity: "main", Merchant: "SOME VENDOR"}
	learned, err := idx.Learn(ctx, txn, model.Classification{
		AccountCode: "5100", Method: model.MethodLookup, Confidence: 1.0,
	})
	require.NoError(t, err)
	assert.False(t, learned, "lookup hits must not re-learn themselves")
}
