// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.Transaction, error)
	// GetRecentTransactions returns transactions for an entity whose
	// occurred-on date falls within the window around the given date,
	// regardless of source. Used by duplicate detection.
	GetRecentTransactions(ctx context.Context, entity string, around time.Time, window time.Duration) ([]model.Transaction, error)
	UpdateTransactionClassification(ctx context.Context, id string, c model.Classification) error
	UpdateTransactionFlags(ctx context.Context, id string, flags model.TransactionFlags) error
	UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) error
	SetTransactionApproval(ctx context.Context, id string, approved bool, approver string, decidedAt time.Time) error
	// SumPostedAmount totals posted transaction amounts in scope; it backs
	// the full recompute path of the variance engine.
	SumPostedAmount(ctx context.Context, entity, accountCode string, period model.Period) (decimal.Decimal, error)
	// GetAcceptedExemplars returns recently accepted classifications for an
	// entity, used as few-shot context for AI inference.
	GetAcceptedExemplars(ctx context.Context, entity string, limit int) ([]model.Transaction, error)

	// Merchant rule operations
	InsertRuleIfAbsent(ctx context.Context, rule *model.MerchantRule) (bool, error)
	GetRulesForEntity(ctx context.Context, entity string) ([]model.MerchantRule, error)
	FindExactRule(ctx context.Context, pattern, entity string) (*model.MerchantRule, error)
	RecordRuleUse(ctx context.Context, ruleID int64) error

	// Budget operations
	UpsertBudgetEntry(ctx context.Context, entry *model.BudgetEntry) error
	GetBudgetAmount(ctx context.Context, entity, accountCode string, period model.Period) (decimal.Decimal, error)
	// AddToActual applies an O(1) atomic increment to the running actual
	// for a budget scope and returns the new total.
	AddToActual(ctx context.Context, entity, accountCode string, period model.Period, amount decimal.Decimal) (decimal.Decimal, error)
	GetActual(ctx context.Context, entity, accountCode string, period model.Period) (decimal.Decimal, error)

	// Alert operations
	InsertAlertIfAbsent(ctx context.Context, alert *model.AlertRecord) (bool, error)
	GetAlerts(ctx context.Context, entity, accountCode string, period model.Period) ([]model.AlertRecord, error)
	AcknowledgeAlert(ctx context.Context, id int64) error

	// Approval operations
	CreateApproval(ctx context.Context, req *model.ApprovalRequest) error
	GetApproval(ctx context.Context, id string) (*model.ApprovalRequest, error)
	// DecideApproval performs an atomic check-and-set from pending to a
	// terminal state. It reports false when the request was not pending,
	// which callers surface as a decision conflict.
	DecideApproval(ctx context.Context, id string, status model.ApprovalStatus, decider, notes string, decidedAt time.Time) (bool, error)
	// ResetApprovalToPending reverts an approved request whose downstream
	// posting failed, so it can be re-decided.
	ResetApprovalToPending(ctx context.Context, id, errorNote string) error
	ListPendingApprovals(ctx context.Context, entity string) ([]model.ApprovalRequest, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Inferencer is the AI inference capability consumed by the classification
// cascade. Implementations must honor the bounded batch size; errors and
// malformed output are the cascade's responsibility to absorb.
type Inferencer interface {
	Infer(ctx context.Context, req InferenceRequest) ([]InferenceResult, error)
}

// InferenceRequest carries entity context, the chart of accounts and
// few-shot exemplars alongside the transactions to classify.
type InferenceRequest struct {
	Entity       string
	Accounts     []AccountRef
	Exemplars    []Exemplar
	Transactions []model.Transaction
	Strict       bool // retry pass with a stricter output instruction
}

// AccountRef is a chart-of-accounts line given to the AI as context.
type AccountRef struct {
	Code     string
	Name     string
	Category string
}

// Exemplar is a historically-accepted classification used for few-shot
// prompting.
type Exemplar struct {
	Description string
	Merchant    string
	AccountCode string
	Category    string
}

// InferenceResult is one structured classification from the AI.
type InferenceResult struct {
	TransactionID string
	AccountCode   string
	AccountName   string
	Category      string
	Confidence    float64
}

// LedgerPoster posts approved transactions to the external ledger.
type LedgerPoster interface {
	Post(ctx context.Context, txn model.Transaction) (ledgerRef string, err error)
}

// Notifier delivers approval requests and alerts to the decision channel.
type Notifier interface {
	NotifyApproval(ctx context.Context, req model.ApprovalRequest) error
	NotifyAlert(ctx context.Context, alert model.AlertRecord) error
}

// CategoryStats is the read-only historical context consumed by the anomaly
// detector. All fields are inputs; scans over identical stats are
// deterministic.
type CategoryStats struct {
	Avg          decimal.Decimal
	Max          decimal.Decimal
	MonthlyTotal decimal.Decimal
	SampleSize   int  // number of prior months with data
	WeekdayOnly  bool // category historically confined to weekdays
	MerchantSeen bool // merchant has appeared before for this entity
}

// StatsProvider supplies historical statistics for anomaly detection.
type StatsProvider interface {
	Stats(ctx context.Context, entity, category, merchant string, lookbackMonths int) (CategoryStats, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// CompletionStats shows the results of a processing run.
type CompletionStats struct {
	Total         int
	Classified    int
	AutoApproved  int
	RoutedToHuman int
	Duplicates    int
	Anomalies     int
	Rejected      int
	LearnedRules  int
	Duration      time.Duration
}
