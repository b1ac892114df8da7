package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// Stats derives the historical context the anomaly scanner needs from posted
// transactions in the lookback window. SQLiteStorage therefore satisfies
// service.StatsProvider as well as service.Storage.
func (s *SQLiteStorage) Stats(ctx context.Context, entity, category, merchant string, lookbackMonths int) (service.CategoryStats, error) {
	var stats service.CategoryStats
	if err := validateContext(ctx); err != nil {
		return stats, err
	}
	if lookbackMonths <= 0 {
		lookbackMonths = 6
	}
	since := time.Now().UTC().AddDate(0, -lookbackMonths, 0)

	// Per-category aggregates over posted history.
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(amount_cents), 0),
			COALESCE(MAX(amount_cents), 0),
			COALESCE(SUM(amount_cents), 0),
			COUNT(DISTINCT strftime('%Y-%m', date))
		FROM transactions
		WHERE entity = ? AND category = ? AND status = 'posted' AND date >= ?
	`, entity, category, since)

	var avgCents float64
	var maxCents, totalCents int64
	if err := row.Scan(&avgCents, &maxCents, &totalCents, &stats.SampleSize); err != nil {
		return stats, fmt.Errorf("failed to aggregate category stats: %w", err)
	}
	stats.Avg = fromCents(int64(avgCents))
	stats.Max = fromCents(maxCents)
	stats.MonthlyTotal = fromCents(totalCents)
	if stats.SampleSize > 0 {
		stats.MonthlyTotal = stats.MonthlyTotal.DivRound(fromCents(int64(stats.SampleSize)*100), 2)
	}

	// Weekday confinement: strftime %w is 0=Sunday, 6=Saturday.
	var weekendCount int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM transactions
		WHERE entity = ? AND category = ? AND status = 'posted' AND date >= ?
		  AND strftime('%w', date) IN ('0', '6')
	`, entity, category, since).Scan(&weekendCount)
	if err != nil {
		return stats, fmt.Errorf("failed to check weekday pattern: %w", err)
	}
	stats.WeekdayOnly = stats.SampleSize > 0 && weekendCount == 0

	// "Seen" means a prior posted transaction; in-flight records do not
	// count, including the one currently being scanned. Stored merchant text
	// keeps its statement formatting, so the comparison normalizes both
	// sides the same way the lookup index does.
	target := model.NormalizeMerchant(merchant)
	if target != "" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT DISTINCT merchant FROM transactions
			WHERE entity = ? AND status = 'posted' AND merchant != ''
		`, entity)
		if err != nil {
			return stats, fmt.Errorf("failed to check merchant history: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var m string
			if err := rows.Scan(&m); err != nil {
				return stats, fmt.Errorf("failed to scan merchant: %w", err)
			}
			if model.NormalizeMerchant(m) == target {
				stats.MerchantSeen = true
				break
			}
		}
		if err := rows.Err(); err != nil {
			return stats, fmt.Errorf("failed to check merchant history: %w", err)
		}
	}

	return stats, nil
}
