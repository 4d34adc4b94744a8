package alerts

import (
	"log/slog"
	"time"

	"github.com/correlator-io/alertmon/internal/canonicalization"
)

const metaSuppressionIntervalKey = "alert_suppression_interval"

// SuppressionPolicy decides how long an alert class stays quiet after it was sent.
type SuppressionPolicy struct {
	// Default applies when meta declares no interval.
	Default time.Duration
	// Override makes Default win over meta.
	Override bool
}

// SuppressionInterval returns the alert_suppression_interval from meta, in hours.
// Test meta wins over model meta. ok is false when meta declares none or it is not a number.
func (a Alert) SuppressionInterval() (time.Duration, bool) {
	hours, ok, err := canonicalization.Float(a.UnifiedMeta()[metaSuppressionIntervalKey])
	if err != nil || !ok {
		return 0, false
	}

	return time.Duration(hours * float64(time.Hour)), true
}

// Interval returns the suppression interval that applies to alert.
func (p SuppressionPolicy) Interval(alert Alert) time.Duration {
	if p.Override {
		return p.Default
	}

	if interval, ok := alert.SuppressionInterval(); ok {
		return interval
	}

	return p.Default
}

// SortAlerts splits pending alerts into the ones to send and the ones to skip.
//
// An alert is skipped when a later alert of the same class is pending, or when
// its class was sent no longer ago than its suppression interval. Alerts without
// a class id are always sent. Both slices keep input order.
func SortAlerts(
	pending []Alert,
	lastSent map[string]time.Time,
	policy SuppressionPolicy,
	now time.Time,
	logger *slog.Logger,
) ([]Alert, []Alert) {
	if logger == nil {
		logger = slog.Default()
	}

	latest := make(map[string]int, len(pending))

	for i, alert := range pending {
		if alert.AlertClassID == "" {
			logger.Debug("Alert without a class id", slog.String("alert_id", alert.ID))

			continue
		}

		if j, ok := latest[alert.AlertClassID]; !ok || pending[j].DetectedAt.Before(alert.DetectedAt) {
			latest[alert.AlertClassID] = i
		}
	}

	send := make([]Alert, 0, len(pending))
	skip := make([]Alert, 0)

	for i, alert := range pending {
		if alert.AlertClassID == "" {
			send = append(send, alert)

			continue
		}

		if latest[alert.AlertClassID] != i || suppressed(alert, lastSent, policy, now) {
			skip = append(skip, alert)

			continue
		}

		send = append(send, alert)
	}

	return send, skip
}

func suppressed(alert Alert, lastSent map[string]time.Time, policy SuppressionPolicy, now time.Time) bool {
	sentAt, ok := lastSent[alert.AlertClassID]
	if !ok {
		return false
	}

	return now.Sub(sentAt) <= policy.Interval(alert)
}
