// Package detect flags duplicate and anomalous transactions before they
// reach the approval workflow. Detection only flags; humans decide.
package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

// maxMerchantDistance is the edit-distance ceiling for fuzzy merchant
// matching after normalization.
const maxMerchantDistance = 3

// DuplicateDetector compares a transaction against its temporal neighbors.
// The relation is symmetric: if A matches B, B matches A.
type DuplicateDetector struct {
	tolerance decimal.Decimal
	window    time.Duration
}

// NewDuplicateDetector builds a detector from duplicate config.
func NewDuplicateDetector(cfg config.DuplicateConfig) *DuplicateDetector {
	tolerance := decimal.NewFromFloat(cfg.AmountTolerance)
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &DuplicateDetector{tolerance: tolerance, window: window}
}

// Check scans the candidate set for a likely duplicate of txn. Candidates
// from any source are compared; only same-entity records can match. A hit
// is a flag for review, never a rejection.
func (d *DuplicateDetector) Check(txn *model.Transaction, recent []model.Transaction) model.DuplicateResult {
	for i := range recent {
		cand := &recent[i]
		if cand.ID == txn.ID || cand.Entity != txn.Entity {
			continue
		}
		if cand.Status == model.TxnRejected {
			continue
		}
		if !d.withinWindow(txn.Date, cand.Date) {
			continue
		}
		if !d.amountsClose(txn.Amount, cand.Amount) {
			continue
		}
		if !merchantsCompatible(txn.Merchant, cand.Merchant) {
			continue
		}
		matched := *cand
		return model.DuplicateResult{
			IsDuplicate: true,
			MatchedWith: &matched,
			Reason: fmt.Sprintf("matches %s transaction %s: %s %s on %s",
				cand.Source, cand.ID,
				cand.Amount.StringFixed(2), cand.Currency,
				cand.Date.Format("2006-01-02")),
		}
	}
	return model.DuplicateResult{}
}

func (d *DuplicateDetector) withinWindow(a, b time.Time) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d.window
}

// amountsClose compares amounts within a relative tolerance of the larger
// magnitude, so the relation stays symmetric.
func (d *DuplicateDetector) amountsClose(a, b decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	larger := a.Abs()
	if b.Abs().GreaterThan(larger) {
		larger = b.Abs()
	}
	return diff.LessThanOrEqual(larger.Mul(d.tolerance))
}

// merchantsCompatible disqualifies a candidate only when both sides carry
// merchant text and the texts disagree. Expense forms and terse statement
// lines often have no merchant; those still match on entity, amount and
// window. Text comparison is normalized substring containment, then a small
// edit-distance allowance for statement formatting noise.
func merchantsCompatible(a, b string) bool {
	na, nb := model.NormalizeMerchant(a), model.NormalizeMerchant(b)
	if na == "" || nb == "" {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return editDistance(na, nb) <= maxMerchantDistance
}

// editDistance is the Levenshtein distance with a two-row table.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
