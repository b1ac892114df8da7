// Package testutil provides shared helpers for tests: in-memory databases,
// configuration fixtures and transaction builders.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/storage"
)

// SetupTestDB creates a migrated in-memory database with automatic cleanup.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// TestConfig returns a config store with defaults plus one entity and a
// small chart of accounts, enough for most pipeline tests. Overrides mutate
// the viper instance before loading.
func TestConfig(t *testing.T, overrides ...func(*viper.Viper)) *config.Store {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("entities", []map[string]any{
		{"code": "main", "name": "Main Trading"},
	})
	v.Set("chart_of_accounts", []map[string]any{
		{"code": "5100", "name": "Office Supplies", "category": "supplies"},
		{"code": "5200", "name": "Utilities", "category": "utilities"},
		{"code": "5300", "name": "Meals & Entertainment", "category": "meals"},
	})
	for _, override := range overrides {
		override(v)
	}

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("failed to load test config: %v", err)
	}
	return config.NewStore(cfg, v)
}

// TxnOption mutates a transaction fixture.
type TxnOption func(*model.Transaction)

// WithAmount sets the fixture amount from a string like "9500.00".
func WithAmount(amount string) TxnOption {
	return func(txn *model.Transaction) {
		txn.Amount = decimal.RequireFromString(amount)
	}
}

// WithMerchant sets the fixture merchant.
func WithMerchant(merchant string) TxnOption {
	return func(txn *model.Transaction) {
		txn.Merchant = merchant
	}
}

// WithDate sets the fixture occurred-on date.
func WithDate(date time.Time) TxnOption {
	return func(txn *model.Transaction) {
		txn.Date = date
	}
}

// WithSource sets the fixture source kind.
func WithSource(source model.SourceKind) TxnOption {
	return func(txn *model.Transaction) {
		txn.Source = source
	}
}

// WithClassification sets a full classification on the fixture.
func WithClassification(c model.Classification) TxnOption {
	return func(txn *model.Transaction) {
		txn.Classification = c
	}
}

// NewTransaction builds a valid transaction fixture for the test entity.
func NewTransaction(id string, opts ...TxnOption) model.Transaction {
	txn := model.Transaction{
		ID:          id,
		Date:        time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Entity:      "main",
		Source:      model.SourceCard,
		Description: "OFFICE WAREHOUSE MAKATI",
		Merchant:    "OFFICE WAREHOUSE",
		Amount:      decimal.RequireFromString("1250.00"),
		Currency:    "PHP",
		Status:      model.TxnCreated,
	}
	for _, opt := range opts {
		opt(&txn)
	}
	return txn
}
