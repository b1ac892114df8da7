package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

// CheckThresholds emits an alert for every configured threshold the snapshot
// has crossed that has not alerted before in this scope and period. The
// at-most-once guarantee holds under concurrent posters: the storage layer's
// unique index is the arbiter, not the in-process check.
func (e *Engine) CheckThresholds(ctx context.Context, snap *model.VarianceSnapshot) ([]model.AlertRecord, error) {
	if snap.Utilization == nil {
		// No budget set for this scope; nothing to alert against.
		return nil, nil
	}
	utilization := *snap.Utilization

	percents := e.cfg.Snapshot().AlertPercentsFor(snap.Entity, snap.AccountCode)

	var emitted []model.AlertRecord
	for _, pct := range percents {
		if utilization < float64(pct) {
			break // thresholds are ascending
		}

		alert := model.AlertRecord{
			Entity:       snap.Entity,
			AccountCode:  snap.AccountCode,
			Period:       snap.Period,
			ThresholdPct: pct,
			Budget:       snap.Budget,
			Actual:       snap.Actual,
			Utilization:  utilization,
			TriggeredAt:  time.Now().UTC(),
		}

		inserted, err := e.storage.InsertAlertIfAbsent(ctx, &alert)
		if err != nil {
			return emitted, fmt.Errorf("failed to record alert %s: %w", alert.Key(), err)
		}
		if !inserted {
			continue // already alerted for this key
		}

		slog.Info("budget threshold crossed",
			"entity", alert.Entity,
			"account", alert.AccountCode,
			"period", alert.Period.String(),
			"threshold_pct", pct,
			"utilization", fmt.Sprintf("%.1f%%", utilization))

		emitted = append(emitted, alert)
		if e.notifier != nil {
			if err := e.notifier.NotifyAlert(ctx, alert); err != nil {
				slog.Warn("alert notification failed", "key", alert.Key(), "error", err)
			}
		}
	}
	return emitted, nil
}
