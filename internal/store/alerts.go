package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// RecordAlerts stores alerts in one transaction and fills in their IDs.
func (s *SQLiteStore) RecordAlerts(ctx context.Context, alerts []domain.PerformanceAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return withRetry(ctx, "record alerts", retryAttempts, retryBase, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO performance_alerts (service, metric_type, value, threshold, alert_level, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		ids := make([]int64, len(alerts))
		for i, a := range alerts {
			result, err := stmt.ExecContext(ctx,
				a.Service, a.MetricType, a.Value, a.Threshold, string(a.Level), a.Status, a.Timestamp.UnixMilli(),
			)
			if err != nil {
				return err
			}
			if ids[i], err = result.LastInsertId(); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		for i := range alerts {
			alerts[i].ID = ids[i]
		}
		return nil
	})
}

// ListAlerts returns alerts matching filter, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]domain.PerformanceAlert, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Service != "" {
		where = append(where, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.MetricType != "" {
		where = append(where, "metric_type = ?")
		args = append(args, filter.MetricType)
	}
	if filter.Level != "" {
		where = append(where, "alert_level = ?")
		args = append(args, string(filter.Level))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	clause := whereClause(where)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM performance_alerts`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := `SELECT id, service, metric_type, value, threshold, alert_level, status, recorded_at FROM performance_alerts` +
		clause + ` ORDER BY recorded_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limitArg(filter.Limit), filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close alert rows", "error", closeErr)
		}
	}()

	var out []domain.PerformanceAlert
	for rows.Next() {
		var (
			a     domain.PerformanceAlert
			level string
			ts    int64
		)
		if err := rows.Scan(&a.ID, &a.Service, &a.MetricType, &a.Value, &a.Threshold, &level, &a.Status, &ts); err != nil {
			return nil, 0, fmt.Errorf("scan alert row: %w", err)
		}
		a.Level = domain.AlertLevel(level)
		a.Timestamp = time.UnixMilli(ts)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, total, nil
}
