package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/correlator-io/alertmon/internal/canonicalization"
)

// Delivery statuses written back to pending alerts.
const (
	AlertStatusPending = "pending"
	AlertStatusSent    = "sent"
	AlertStatusSkipped = "skipped"
)

// markChunkSize bounds the id list of a single UPDATE.
const markChunkSize = 50

var (
	// ErrInvalidAlertStatus is returned when MarkAlerts is asked for a status other than sent or skipped.
	ErrInvalidAlertStatus = errors.New("invalid alert status")

	// ErrMarkFailed is returned when updating alert statuses fails.
	ErrMarkFailed = errors.New("alert status update failed")
)

// FetchPendingAlerts returns raw pending alert rows detected within the last daysBack days,
// oldest first.
func (s *ResultsStore) FetchPendingAlerts(ctx context.Context, daysBack int) ([]map[string]any, error) {
	startTime := time.Now()
	w := s.conn.Warehouse
	cutoff := s.cutoff(daysBack)

	query := fmt.Sprintf(`
		SELECT id, alert_class_id, type, detected_at, created_at, updated_at, status, sent_at, data
		FROM %s
		WHERE status = %s AND detected_at >= %s
		ORDER BY detected_at`,
		s.conn.table("pending_alerts"), w.Placeholder(1), w.Placeholder(2))

	ctx, cancel := s.conn.queryContext(ctx)
	defer cancel()

	rows, err := s.conn.queryMaps(ctx, query, AlertStatusPending, s.timeArg(cutoff))
	if err != nil {
		s.logger.Error("Failed to fetch pending alerts",
			slog.String("warehouse", w.String()),
			slog.String("error", err.Error()))

		return nil, fmt.Errorf("%w: pending alerts: %w", ErrFetchFailed, err)
	}

	s.logger.Debug("Fetched pending alerts",
		slog.Int("rows", len(rows)),
		slog.Time("cutoff", cutoff),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))

	return rows, nil
}

// LastSentTimes returns the latest sent_at of every alert class sent within the last daysBack days.
func (s *ResultsStore) LastSentTimes(ctx context.Context, daysBack int) (map[string]time.Time, error) {
	w := s.conn.Warehouse

	query := fmt.Sprintf(`
		SELECT alert_class_id, MAX(sent_at) AS last_sent_at
		FROM %s
		WHERE status = %s AND sent_at >= %s
		GROUP BY alert_class_id`,
		s.conn.table("pending_alerts"), w.Placeholder(1), w.Placeholder(2))

	ctx, cancel := s.conn.queryContext(ctx)
	defer cancel()

	rows, err := s.conn.queryMaps(ctx, query, AlertStatusSent, s.timeArg(s.cutoff(daysBack)))
	if err != nil {
		return nil, fmt.Errorf("%w: last sent times: %w", ErrFetchFailed, err)
	}

	lastSent := make(map[string]time.Time, len(rows))

	for _, row := range rows {
		classID := canonicalization.String(row["alert_class_id"])
		if classID == "" || row["last_sent_at"] == nil {
			continue
		}

		sentAt, err := canonicalization.ParseTimestamp(row["last_sent_at"])
		if err != nil {
			s.logger.Warn("Ignoring unparseable sent_at",
				slog.String("alert_class_id", classID),
				slog.String("error", err.Error()))

			continue
		}

		lastSent[classID] = sentAt
	}

	return lastSent, nil
}

// MarkAlerts sets the status of the given pending alerts. Marking as sent
// stamps sent_at. Ids are updated in chunks; the number of updated rows is returned.
func (s *ResultsStore) MarkAlerts(ctx context.Context, ids []string, status string) (int64, error) {
	if status != AlertStatusSent && status != AlertStatusSkipped {
		return 0, fmt.Errorf("%w: '%s' (valid: sent, skipped)", ErrInvalidAlertStatus, status)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	now := s.timeArg(s.now())

	var updated int64

	for start := 0; start < len(ids); start += markChunkSize {
		end := min(start+markChunkSize, len(ids))

		n, err := s.markChunk(ctx, ids[start:end], status, now)
		if err != nil {
			s.logger.Error("Failed to update alert statuses",
				slog.String("status", status),
				slog.Int("chunk_start", start),
				slog.Int("chunk_size", end-start),
				slog.String("error", err.Error()))

			return updated, fmt.Errorf("%w: %w", ErrMarkFailed, err)
		}

		updated += n
	}

	s.logger.Info("Updated alert statuses",
		slog.String("status", status),
		slog.Int("requested", len(ids)),
		slog.Int64("updated", updated))

	return updated, nil
}

func (s *ResultsStore) markChunk(ctx context.Context, ids []string, status string, now any) (int64, error) {
	w := s.conn.Warehouse
	table := s.conn.table("pending_alerts")

	var (
		query string
		args  []any
	)

	if status == AlertStatusSent {
		query = fmt.Sprintf(`UPDATE %s SET status = %s, sent_at = %s, updated_at = %s WHERE id IN (%s)`,
			table, w.Placeholder(1), w.Placeholder(2), w.Placeholder(3), w.Placeholders(4, len(ids)))
		args = append(args, status, now, now)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET status = %s, updated_at = %s WHERE id IN (%s)`,
			table, w.Placeholder(1), w.Placeholder(2), w.Placeholders(3, len(ids)))
		args = append(args, status, now)
	}

	for _, id := range ids {
		args = append(args, id)
	}

	ctx, cancel := s.conn.queryContext(ctx)
	defer cancel()

	result, err := s.conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
