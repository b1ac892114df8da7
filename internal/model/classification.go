package model

// ClassificationMethod indicates which stage of the cascade produced a
// transaction's account assignment.
type ClassificationMethod string

// Classification method constants.
const (
	MethodLookup ClassificationMethod = "lookup"
	MethodAI     ClassificationMethod = "ai"
	MethodHuman  ClassificationMethod = "human"
)

// Classification is the account/category assignment for a transaction.
type Classification struct {
	AccountCode string
	AccountName string
	Category    string
	Method      ClassificationMethod
	Confidence  float64
}

// Unclassified is the fail-open classification used when every cascade path
// fails: confidence zero, routed to human review rather than dropped.
func Unclassified() Classification {
	return Classification{Category: "unclassified", Method: MethodAI, Confidence: 0}
}

// OutcomeKind tags the variant of a cascade result.
type OutcomeKind int

// Cascade outcome variants.
const (
	OutcomeLookup OutcomeKind = iota
	OutcomeAIAccepted
	OutcomeNeedsReview
)

// Outcome is the tagged result of running the classification cascade on a
// single transaction. Exactly one variant applies; NeedsReview carries the
// best provisional classification available.
type Outcome struct {
	Rule           *MerchantRule // set for OutcomeLookup
	Classification Classification
	Kind           OutcomeKind
}

// MandatoryReview reports whether the outcome requires human approval
// regardless of amount.
func (o Outcome) MandatoryReview() bool {
	return o.Kind == OutcomeNeedsReview
}
