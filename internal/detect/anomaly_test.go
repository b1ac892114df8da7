package detect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
	"github.com/arnold17091984/accounting-automation/internal/testutil"
)

func newScanner() *AnomalyScanner {
	return NewAnomalyScanner(config.AnomalyConfig{
		DeviationWarning:  0.30,
		DeviationCritical: 0.50,
		MinSampleMonths:   3,
		NewMerchantReview: decimal.RequireFromString("10000"),
		NewMerchantBlock:  decimal.RequireFromString("50000"),
		RoundAmountUnit:   decimal.RequireFromString("10000"),
	})
}

// A Tuesday, so weekday-only checks stay quiet unless a test wants them.
var weekday = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func seenStats(avg string, months int) service.CategoryStats {
	return service.CategoryStats{
		Avg:          decimal.RequireFromString(avg),
		SampleSize:   months,
		MerchantSeen: true,
	}
}

func TestAnomaly_DeviationThresholds(t *testing.T) {
	s := newScanner()

	tests := []struct {
		name   string
		amount string
		want   model.Severity
	}{
		{"at average", "1000.00", model.SeverityNone},
		{"29% above", "1290.00", model.SeverityNone},
		{"30% above is medium", "1300.00", model.SeverityMedium},
		{"49% above stays medium", "1490.00", model.SeverityMedium},
		{"50% above is high", "1500.00", model.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := testutil.NewTransaction("t1",
				testutil.WithDate(weekday),
				testutil.WithAmount(tt.amount),
				testutil.WithMerchant("KNOWN VENDOR"))
			res := s.Scan(&txn, seenStats("1000.00", 6))
			assert.Equal(t, tt.want, res.Severity)
			assert.Equal(t, tt.want != model.SeverityNone, res.Flag)
		})
	}
}

func TestAnomaly_RefundMagnitudeTriggersDeviation(t *testing.T) {
	s := newScanner()

	// A large credit deviates by magnitude just like a large charge.
	refund := testutil.NewTransaction("t1",
		testutil.WithDate(weekday),
		testutil.WithAmount("-40000.00"),
		testutil.WithMerchant("KNOWN VENDOR"))
	res := s.Scan(&refund, seenStats("1000.00", 6))

	assert.True(t, res.Flag)
	assert.Equal(t, model.SeverityHigh, res.Severity)
	assert.Contains(t, res.Reason, "above category average")
}

func TestAnomaly_ThinHistorySkipsDeviation(t *testing.T) {
	s := newScanner()

	txn := testutil.NewTransaction("t1",
		testutil.WithDate(weekday),
		testutil.WithAmount("5000.00"))
	res := s.Scan(&txn, seenStats("1000.00", 2))
	assert.False(t, res.Flag, "fewer than 3 sample months means no deviation signal")
}

func TestAnomaly_NewMerchantCeilings(t *testing.T) {
	s := newScanner()

	tests := []struct {
		name   string
		amount string
		want   model.Severity
	}{
		{"small first purchase", "9999.99", model.SeverityNone},
		{"review ceiling", "10000.00", model.SeverityMedium},
		{"block ceiling", "50000.00", model.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := testutil.NewTransaction("t1",
				testutil.WithDate(weekday),
				testutil.WithAmount(tt.amount),
				testutil.WithMerchant("BRAND NEW VENDOR"))
			res := s.Scan(&txn, service.CategoryStats{MerchantSeen: false})
			assert.Equal(t, tt.want, res.Severity)
		})
	}
}

func TestAnomaly_NoMerchantTextSkipsNewMerchantRule(t *testing.T) {
	s := newScanner()

	txn := testutil.NewTransaction("t1",
		testutil.WithDate(weekday),
		testutil.WithAmount("15000.00"),
		testutil.WithMerchant(""))
	res := s.Scan(&txn, service.CategoryStats{MerchantSeen: false})

	assert.False(t, res.Flag, "nothing identifies a merchantless transaction as new")
}

func TestAnomaly_RoundAmountIsLow(t *testing.T) {
	s := newScanner()

	txn := testutil.NewTransaction("t1",
		testutil.WithDate(weekday),
		testutil.WithAmount("30000.00"),
		testutil.WithMerchant("KNOWN VENDOR"))
	res := s.Scan(&txn, service.CategoryStats{MerchantSeen: true})
	assert.True(t, res.Flag)
	assert.Equal(t, model.SeverityLow, res.Severity)

	notRound := testutil.NewTransaction("t2",
		testutil.WithDate(weekday),
		testutil.WithAmount("30001.00"),
		testutil.WithMerchant("KNOWN VENDOR"))
	assert.False(t, s.Scan(&notRound, service.CategoryStats{MerchantSeen: true}).Flag)
}

func TestAnomaly_WeekendInWeekdayOnlyCategory(t *testing.T) {
	s := newScanner()
	saturday := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	txn := testutil.NewTransaction("t1",
		testutil.WithDate(saturday),
		testutil.WithAmount("500.00"),
		testutil.WithMerchant("KNOWN VENDOR"),
		testutil.WithClassification(model.Classification{Category: "payroll"}))

	res := s.Scan(&txn, service.CategoryStats{MerchantSeen: true, WeekdayOnly: true, SampleSize: 6})
	assert.True(t, res.Flag)
	assert.Equal(t, model.SeverityMedium, res.Severity, "long weekday-only history upgrades the signal")

	thin := s.Scan(&txn, service.CategoryStats{MerchantSeen: true, WeekdayOnly: true, SampleSize: 1})
	assert.Equal(t, model.SeverityLow, thin.Severity)

	weekdayTxn := txn
	weekdayTxn.Date = weekday
	assert.False(t, s.Scan(&weekdayTxn, service.CategoryStats{MerchantSeen: true, WeekdayOnly: true, SampleSize: 6}).Flag)
}

func TestAnomaly_HighestSeverityWinsAndReasonsAccumulate(t *testing.T) {
	s := newScanner()

	// Round amount (low), new merchant at block ceiling (high).
	txn := testutil.NewTransaction("t1",
		testutil.WithDate(weekday),
		testutil.WithAmount("50000.00"),
		testutil.WithMerchant("BRAND NEW VENDOR"))
	res := s.Scan(&txn, service.CategoryStats{MerchantSeen: false})

	assert.Equal(t, model.SeverityHigh, res.Severity)
	assert.Contains(t, res.Reason, "first transaction")
	assert.Contains(t, res.Reason, "round amount")
}

func TestAnomaly_Deterministic(t *testing.T) {
	s := newScanner()
	txn := testutil.NewTransaction("t1",
		testutil.WithDate(weekday),
		testutil.WithAmount("1500.00"),
		testutil.WithMerchant("KNOWN VENDOR"))
	stats := seenStats("1000.00", 6)

	first := s.Scan(&txn, stats)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Scan(&txn, stats))
	}
}
