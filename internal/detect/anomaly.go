package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// AnomalyScanner evaluates a transaction against historical category
// statistics. Scans are deterministic: identical inputs always produce the
// same result, and the scanner never consults the wall clock.
type AnomalyScanner struct {
	cfg config.AnomalyConfig
}

// NewAnomalyScanner builds a scanner from anomaly config.
func NewAnomalyScanner(cfg config.AnomalyConfig) *AnomalyScanner {
	return &AnomalyScanner{cfg: cfg}
}

// Scan runs every rule and combines the findings: reasons accumulate, the
// highest severity wins, earlier rules win ties.
func (s *AnomalyScanner) Scan(txn *model.Transaction, stats service.CategoryStats) model.AnomalyResult {
	var reasons []string
	severity := model.SeverityNone

	record := func(sev model.Severity, reason string) {
		reasons = append(reasons, reason)
		if sev.Exceeds(severity) {
			severity = sev
		}
	}

	if sev, reason := s.checkDeviation(txn, stats); sev != model.SeverityNone {
		record(sev, reason)
	}
	if sev, reason := s.checkNewMerchant(txn, stats); sev != model.SeverityNone {
		record(sev, reason)
	}
	if sev, reason := s.checkRoundAmount(txn); sev != model.SeverityNone {
		record(sev, reason)
	}
	if sev, reason := s.checkWeekdayPattern(txn, stats); sev != model.SeverityNone {
		record(sev, reason)
	}

	if len(reasons) == 0 {
		return model.AnomalyResult{}
	}
	return model.AnomalyResult{
		Flag:     true,
		Severity: severity,
		Reason:   strings.Join(reasons, "; "),
	}
}

// checkDeviation flags spend far above the category average. Thin history
// produces no signal: fewer sample months than the minimum skips the rule
// entirely rather than guessing.
func (s *AnomalyScanner) checkDeviation(txn *model.Transaction, stats service.CategoryStats) (model.Severity, string) {
	if stats.SampleSize < s.cfg.MinSampleMonths {
		return model.SeverityNone, ""
	}
	if !stats.Avg.IsPositive() {
		return model.SeverityNone, ""
	}

	// Magnitude deviation: a large refund is as unusual as a large charge.
	deviation, _ := txn.Amount.Abs().Sub(stats.Avg).Div(stats.Avg).Float64()
	switch {
	case deviation >= s.cfg.DeviationCritical:
		return model.SeverityHigh, fmt.Sprintf("amount %.0f%% above category average of %s",
			deviation*100, stats.Avg.StringFixed(2))
	case deviation >= s.cfg.DeviationWarning:
		return model.SeverityMedium, fmt.Sprintf("amount %.0f%% above category average of %s",
			deviation*100, stats.Avg.StringFixed(2))
	}
	return model.SeverityNone, ""
}

// checkNewMerchant flags large first-time spends. Transactions without
// merchant text carry no identity to be "new" under, so the rule skips them.
func (s *AnomalyScanner) checkNewMerchant(txn *model.Transaction, stats service.CategoryStats) (model.Severity, string) {
	if stats.MerchantSeen || model.NormalizeMerchant(txn.Merchant) == "" {
		return model.SeverityNone, ""
	}
	amount := txn.Amount.Abs()
	switch {
	case s.cfg.NewMerchantBlock.IsPositive() && amount.GreaterThanOrEqual(s.cfg.NewMerchantBlock):
		return model.SeverityHigh, fmt.Sprintf("first transaction with merchant %q at %s",
			txn.Merchant, txn.Amount.StringFixed(2))
	case s.cfg.NewMerchantReview.IsPositive() && amount.GreaterThanOrEqual(s.cfg.NewMerchantReview):
		return model.SeverityMedium, fmt.Sprintf("first transaction with merchant %q at %s",
			txn.Merchant, txn.Amount.StringFixed(2))
	}
	return model.SeverityNone, ""
}

// checkRoundAmount flags exact multiples of the round unit. Round numbers
// are a weak fraud signal on their own, so this never exceeds low.
func (s *AnomalyScanner) checkRoundAmount(txn *model.Transaction) (model.Severity, string) {
	unit := s.cfg.RoundAmountUnit
	if !unit.IsPositive() || !txn.Amount.IsPositive() {
		return model.SeverityNone, ""
	}
	if !txn.Amount.Mod(unit).IsZero() {
		return model.SeverityNone, ""
	}
	return model.SeverityLow, fmt.Sprintf("round amount, multiple of %s", unit.StringFixed(0))
}

// checkWeekdayPattern flags weekend activity in a category that has only
// ever transacted on weekdays.
func (s *AnomalyScanner) checkWeekdayPattern(txn *model.Transaction, stats service.CategoryStats) (model.Severity, string) {
	if !stats.WeekdayOnly {
		return model.SeverityNone, ""
	}
	day := txn.Date.Weekday()
	if day != time.Saturday && day != time.Sunday {
		return model.SeverityNone, ""
	}
	sev := model.SeverityLow
	if stats.SampleSize >= s.cfg.MinSampleMonths {
		sev = model.SeverityMedium
	}
	return sev, fmt.Sprintf("%s activity in weekday-only category %q",
		strings.ToLower(day.String()), txn.Classification.Category)
}
