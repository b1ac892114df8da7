package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestType identifies what kind of action an approval gates.
type RequestType string

// Approval request type constants.
const (
	RequestExpense        RequestType = "expense"
	RequestTransfer       RequestType = "transfer"
	RequestBudgetOverride RequestType = "budget-override"
	RequestReview         RequestType = "review"
)

// ApprovalStatus is the state of an approval request. Pending is the only
// non-terminal state.
type ApprovalStatus string

// Approval state constants.
const (
	StatusPending      ApprovalStatus = "pending"
	StatusApproved     ApprovalStatus = "approved"
	StatusRejected     ApprovalStatus = "rejected"
	StatusAutoApproved ApprovalStatus = "auto_approved"
)

// approvalTransitions is the explicit transition table for the workflow.
var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	StatusPending:      {StatusApproved, StatusRejected},
	StatusApproved:     {},
	StatusRejected:     {},
	StatusAutoApproved: {},
}

// ValidDecision reports whether a request in state from may move to state to.
func ValidDecision(from, to ApprovalStatus) bool {
	for _, next := range approvalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transition.
func (s ApprovalStatus) Terminal() bool {
	return len(approvalTransitions[s]) == 0
}

// ApprovalRequest gates the posting of a transaction or fund movement
// pending a human (or system) decision.
type ApprovalRequest struct {
	RequestedAt   time.Time
	DecidedAt     *time.Time
	ID            string
	Type          RequestType
	ReferenceID   string // the transaction or action requiring approval
	Entity        string
	Requester     string
	Decider       string
	DecisionNotes string
	Reasons       []string // why gating was required
	Status        ApprovalStatus
	Amount        decimal.Decimal
}
