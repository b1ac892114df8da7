package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Period is a calendar month budget scope.
type Period struct {
	Year  int
	Month int
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ParsePeriod parses a YYYY-MM period string.
func ParsePeriod(s string) (Period, error) {
	var p Period
	if _, err := fmt.Sscanf(s, "%d-%d", &p.Year, &p.Month); err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	if p.Month < 1 || p.Month > 12 {
		return Period{}, fmt.Errorf("invalid period %q: month out of range", s)
	}
	return p, nil
}

// BudgetEntry is the budgeted amount for (entity, account, year, month).
// Unique per key; the annual view is the sum of the twelve monthly entries.
type BudgetEntry struct {
	Entity      string
	AccountCode string
	Year        int
	Month       int
	Amount      decimal.Decimal
}

// VarianceSnapshot is the derived budget-vs-actual state for one scope.
// It is recomputable from budget entries plus posted transactions and is
// never the source of truth.
type VarianceSnapshot struct {
	Entity      string
	AccountCode string
	Period      Period
	Budget      decimal.Decimal
	Actual      decimal.Decimal
	Variance    decimal.Decimal // budget - actual
	Utilization *float64        // actual/budget percent; nil when budget <= 0
}

// NewVarianceSnapshot derives a snapshot from a budget and actual amount.
func NewVarianceSnapshot(entity, account string, period Period, budget, actual decimal.Decimal) VarianceSnapshot {
	snap := VarianceSnapshot{
		Entity:      entity,
		AccountCode: account,
		Period:      period,
		Budget:      budget,
		Actual:      actual,
		Variance:    budget.Sub(actual),
	}
	if budget.IsPositive() {
		util := actual.Div(budget).InexactFloat64() * 100
		snap.Utilization = &util
	}
	return snap
}

// OverBudget reports whether actual spend exceeds budget.
func (s VarianceSnapshot) OverBudget() bool {
	return s.Actual.GreaterThan(s.Budget)
}

// AlertRecord is one threshold crossing for (entity, account, period,
// threshold). Created at most once per key; re-crossing within the same
// period never re-alerts.
type AlertRecord struct {
	TriggeredAt  time.Time
	Entity       string
	AccountCode  string
	Period       Period
	Budget       decimal.Decimal
	Actual       decimal.Decimal
	ID           int64
	ThresholdPct int
	Utilization  float64
	Acknowledged bool
}

// Key returns the uniqueness tuple for the alert.
func (a AlertRecord) Key() string {
	return fmt.Sprintf("%s:%s:%s:%d", a.Entity, a.AccountCode, a.Period, a.ThresholdPct)
}
