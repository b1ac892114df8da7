package model

// Severity grades an anomaly finding.
type Severity string

// Anomaly severity constants. Any severity gates auto-approval; medium and
// above additionally mark the transaction as requiring review.
const (
	SeverityNone   Severity = ""
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// Exceeds reports whether s outranks other.
func (s Severity) Exceeds(other Severity) bool {
	return severityRank[s] > severityRank[other]
}

// DuplicateResult is the outcome of a duplicate check. A hit never
// auto-rejects; both records travel to human review for comparison.
type DuplicateResult struct {
	MatchedWith *Transaction
	Reason      string
	IsDuplicate bool
}

// AnomalyResult is the outcome of an anomaly scan. Multiple triggers may
// hit; the reason strings are joined and the highest severity wins.
type AnomalyResult struct {
	Reason   string
	Severity Severity
	Flag     bool
}
