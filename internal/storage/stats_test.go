package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

// postedTxn builds a posted transaction dated inside the stats lookback.
func postedTxn(id, merchant, category, amount string, daysAgo int) model.Transaction {
	txn := model.Transaction{
		ID:          id,
		Date:        time.Now().UTC().AddDate(0, 0, -daysAgo),
		Entity:      "main",
		Source:      model.SourceCard,
		Description: merchant,
		Merchant:    merchant,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "PHP",
		Status:      model.TxnPosted,
	}
	txn.Classification = model.Classification{
		AccountCode: "5100", Category: category,
		Method: model.MethodAI, Confidence: 0.9,
	}
	return txn
}

func TestStats_CategoryAggregates(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	for _, txn := range []model.Transaction{
		postedTxn("t1", "OFFICE WAREHOUSE", "supplies", "1000.00", 10),
		postedTxn("t2", "OFFICE WAREHOUSE", "supplies", "3000.00", 45),
		postedTxn("t3", "MERALCO", "utilities", "8000.00", 10),
	} {
		tx := txn
		if err := store.SaveTransaction(ctx, &tx); err != nil {
			t.Fatalf("SaveTransaction: %v", err)
		}
	}

	stats, err := store.Stats(ctx, "main", "supplies", "OFFICE WAREHOUSE", 6)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !stats.Avg.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("avg = %s, want 2000", stats.Avg)
	}
	if !stats.Max.Equal(decimal.RequireFromString("3000")) {
		t.Errorf("max = %s, want 3000", stats.Max)
	}
	if stats.SampleSize != 2 {
		t.Errorf("sample size = %d, want 2 distinct months", stats.SampleSize)
	}
	if !stats.MerchantSeen {
		t.Error("merchant with posted history should be seen")
	}
}

func TestStats_MerchantSeenIgnoresUnposted(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	inFlight := postedTxn("t1", "NEW VENDOR", "supplies", "500.00", 1)
	inFlight.Status = model.TxnClassified
	if err := store.SaveTransaction(ctx, &inFlight); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}

	stats, err := store.Stats(ctx, "main", "supplies", "NEW VENDOR", 6)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.MerchantSeen {
		t.Error("an unposted record must not vouch for a merchant")
	}
}

func TestStats_MerchantSeenSurvivesFormattingNoise(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	// Statement text with doubled internal spaces and mixed case.
	noisy := postedTxn("t1", "Office  Warehouse   Makati", "supplies", "1250.00", 5)
	if err := store.SaveTransaction(ctx, &noisy); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}

	stats, err := store.Stats(ctx, "main", "supplies", "OFFICE WAREHOUSE MAKATI", 6)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !stats.MerchantSeen {
		t.Error("spacing and case noise in stored merchant text must not hide history")
	}
}
