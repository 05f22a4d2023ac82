package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

const sentimentColumns = `id, text, source, sentiment_score, sentiment_type, confidence, keywords_json, context_json, created_at, updated_at`

func scanSentiment(row rowScanner) (*domain.SentimentAnalysis, error) {
	var (
		a                    domain.SentimentAnalysis
		typ, keywords, ctx   string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&a.ID, &a.Text, &a.Source, &a.Score, &typ, &a.Confidence,
		&keywords, &ctx, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	a.Type = domain.SentimentType(typ)
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)
	if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	if ctx != "" && ctx != "{}" {
		if err := json.Unmarshal([]byte(ctx), &a.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	return &a, nil
}

func encodeSentiment(a *domain.SentimentAnalysis) (keywords, ctx string, err error) {
	kw := a.Keywords
	if kw == nil {
		kw = []string{}
	}
	b, err := json.Marshal(kw)
	if err != nil {
		return "", "", fmt.Errorf("encode keywords: %w", err)
	}
	ctx, err = marshalMap(a.Context)
	if err != nil {
		return "", "", fmt.Errorf("encode context: %w", err)
	}
	return string(b), ctx, nil
}

// CreateSentiment stores a sentiment analysis.
func (s *SQLiteStore) CreateSentiment(ctx context.Context, a *domain.SentimentAnalysis) error {
	keywords, sctx, err := encodeSentiment(a)
	if err != nil {
		return err
	}
	query := `INSERT INTO sentiment_analysis (` + sentimentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err = withRetry(ctx, "create sentiment", retryAttempts, retryBase, func() error {
		_, err := s.db.ExecContext(ctx, query,
			a.ID, a.Text, a.Source, a.Score, string(a.Type), a.Confidence,
			keywords, sctx, a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert sentiment: %w", err)
	}
	return nil
}

// GetSentiment retrieves an analysis by ID.
func (s *SQLiteStore) GetSentiment(ctx context.Context, id string) (*domain.SentimentAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sentimentColumns+` FROM sentiment_analysis WHERE id = ?`, id)
	a, err := scanSentiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan sentiment row: %w", err)
	}
	return a, nil
}

// ListSentiments returns analyses matching filter, newest first.
func (s *SQLiteStore) ListSentiments(ctx context.Context, filter SentimentFilter) ([]*domain.SentimentAnalysis, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Type != "" {
		where = append(where, "sentiment_type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Start.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Start.UnixMilli())
	}
	if !filter.End.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, filter.End.UnixMilli())
	}
	clause := whereClause(where)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sentiment_analysis`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sentiments: %w", err)
	}

	query := `SELECT ` + sentimentColumns + ` FROM sentiment_analysis` + clause + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limitArg(filter.Limit), filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query sentiments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close sentiment rows", "error", closeErr)
		}
	}()

	var out []*domain.SentimentAnalysis
	for rows.Next() {
		a, err := scanSentiment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sentiment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sentiments: %w", err)
	}
	return out, total, nil
}

// UpdateSentiment overwrites the mutable fields of an analysis. Text and
// creation time are immutable.
func (s *SQLiteStore) UpdateSentiment(ctx context.Context, a *domain.SentimentAnalysis) (bool, error) {
	keywords, sctx, err := encodeSentiment(a)
	if err != nil {
		return false, err
	}
	query := `
	UPDATE sentiment_analysis SET source = ?, sentiment_score = ?, sentiment_type = ?, confidence = ?,
		keywords_json = ?, context_json = ?, updated_at = ?
	WHERE id = ?`

	var rows int64
	err = withRetry(ctx, "update sentiment", retryAttempts, retryBase, func() error {
		result, err := s.db.ExecContext(ctx, query,
			a.Source, a.Score, string(a.Type), a.Confidence, keywords, sctx, a.UpdatedAt.UnixMilli(), a.ID,
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("update sentiment: %w", err)
	}
	return rows > 0, nil
}

// DeleteSentiment removes an analysis by ID.
func (s *SQLiteStore) DeleteSentiment(ctx context.Context, id string) (bool, error) {
	var rows int64
	err := withRetry(ctx, "delete sentiment", retryAttempts, retryBase, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM sentiment_analysis WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete sentiment: %w", err)
	}
	return rows > 0, nil
}
