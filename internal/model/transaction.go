// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies where a transaction was ingested from.
type SourceKind string

// Transaction source constants.
const (
	SourceCard        SourceKind = "card"
	SourcePOS         SourceKind = "pos"
	SourcePayroll     SourceKind = "payroll"
	SourceExpenseForm SourceKind = "expense-form"
	SourceBank        SourceKind = "bank"
)

// TransactionStatus tracks a transaction through its lifecycle.
type TransactionStatus string

// Lifecycle status constants. Posted and rejected are terminal.
const (
	TxnCreated    TransactionStatus = "created"
	TxnClassified TransactionStatus = "classified"
	TxnFlagged    TransactionStatus = "flagged"
	TxnApproved   TransactionStatus = "approved"
	TxnRejected   TransactionStatus = "rejected"
	TxnPosted     TransactionStatus = "posted"
)

// txnTransitions defines the allowed lifecycle moves.
var txnTransitions = map[TransactionStatus][]TransactionStatus{
	TxnCreated:    {TxnClassified},
	TxnClassified: {TxnFlagged, TxnApproved, TxnRejected},
	TxnFlagged:    {TxnApproved, TxnRejected},
	TxnApproved:   {TxnPosted, TxnClassified, TxnFlagged}, // posting failure reverts to review
	TxnRejected:   {},
	TxnPosted:     {},
}

// CanTransition reports whether moving from one lifecycle status to another is allowed.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range txnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction represents a single financial transaction from any source.
// The identity fields are immutable once created; classification, flag and
// approval fields are mutated by their owning components until the
// transaction reaches a terminal status.
type Transaction struct {
	Date           time.Time
	DecidedAt      *time.Time
	ID             string
	Source         SourceKind
	SourceDetail   string // issuing bank or sub-type, may be empty
	Entity         string
	Description    string
	Merchant       string // may be empty; OCR and bank exports are noisy
	Currency       string
	Classification Classification
	Flags          TransactionFlags
	Approver       string
	Status         TransactionStatus
	Amount         decimal.Decimal
	Approved       bool
}

// TransactionFlags carries the duplicate and anomaly gating signals.
type TransactionFlags struct {
	DuplicateReason string
	AnomalyReason   string
	AnomalySeverity Severity
	Duplicate       bool
	Anomaly         bool
}

// RequiresReview reports whether any flag forces human adjudication.
func (f TransactionFlags) RequiresReview() bool {
	return f.Duplicate || (f.Anomaly && f.AnomalySeverity != SeverityLow)
}

// Hash creates a stable identity hash used for cross-source duplicate checks.
func (t *Transaction) Hash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Entity,
		t.Merchant,
		t.Source)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// PeriodOf returns the budget period the transaction belongs to, scoped
// strictly by its occurred-on date, never the posting date.
func (t *Transaction) PeriodOf() Period {
	return Period{Year: t.Date.Year(), Month: int(t.Date.Month())}
}

// Terminal reports whether the transaction can no longer be mutated.
func (t *Transaction) Terminal() bool {
	return t.Status == TxnPosted || t.Status == TxnRejected
}
