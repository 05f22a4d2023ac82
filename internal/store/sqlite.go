package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

const (
	retryAttempts = 3
	retryBase     = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the API read while turns are being recorded.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		persona TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_created ON agents(created_at);

	CREATE TABLE IF NOT EXISTS performance_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		value REAL NOT NULL,
		labels_json TEXT NOT NULL DEFAULT '{}',
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_lookup ON performance_metrics(service, metric_type, recorded_at);

	CREATE TABLE IF NOT EXISTS performance_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		value REAL NOT NULL,
		threshold REAL NOT NULL,
		alert_level TEXT NOT NULL,
		status TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_recorded ON performance_alerts(recorded_at);

	CREATE TABLE IF NOT EXISTS sentiment_analysis (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		sentiment_score REAL NOT NULL,
		sentiment_type TEXT NOT NULL,
		confidence REAL NOT NULL,
		keywords_json TEXT NOT NULL DEFAULT '[]',
		context_json TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sentiment_created ON sentiment_analysis(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateAgent stores a new agent definition.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	cfg, err := marshalMap(agent.Config)
	if err != nil {
		return fmt.Errorf("encode agent config: %w", err)
	}
	query := `
	INSERT INTO agents (id, name, type, status, description, persona, model, config_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = withRetry(ctx, "create agent", retryAttempts, retryBase, func() error {
		_, err := s.db.ExecContext(ctx, query,
			agent.ID, agent.Name, string(agent.Type), agent.Status,
			agent.Description, agent.Persona, agent.Model, cfg,
			agent.CreatedAt.UnixMilli(), agent.UpdatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: agents.name") {
			return fmt.Errorf("%w: %s", ErrDuplicateName, agent.Name)
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

const agentColumns = `id, name, type, status, description, persona, model, config_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var (
		agent                domain.Agent
		agentType, cfg       string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&agent.ID, &agent.Name, &agentType, &agent.Status,
		&agent.Description, &agent.Persona, &agent.Model, &cfg,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	agent.Type = domain.AgentType(agentType)
	agent.CreatedAt = time.UnixMilli(createdAt)
	agent.UpdatedAt = time.UnixMilli(updatedAt)
	if cfg != "" && cfg != "{}" {
		if err := json.Unmarshal([]byte(cfg), &agent.Config); err != nil {
			return nil, fmt.Errorf("decode agent config: %w", err)
		}
	}
	return &agent, nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return agent, nil
}

// ListAgents returns agents matching filter, newest first.
func (s *SQLiteStore) ListAgents(ctx context.Context, filter AgentFilter) ([]*domain.Agent, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	clause := whereClause(where)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agents: %w", err)
	}

	query := `SELECT ` + agentColumns + ` FROM agents` + clause + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limitArg(filter.Limit), filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent rows", "error", closeErr)
		}
	}()

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, total, nil
}

// UpdateAgent overwrites the mutable fields of an agent.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *domain.Agent) (bool, error) {
	cfg, err := marshalMap(agent.Config)
	if err != nil {
		return false, fmt.Errorf("encode agent config: %w", err)
	}
	query := `
	UPDATE agents SET name = ?, type = ?, status = ?, description = ?, persona = ?,
		model = ?, config_json = ?, updated_at = ?
	WHERE id = ?`

	var rows int64
	err = withRetry(ctx, "update agent", retryAttempts, retryBase, func() error {
		result, err := s.db.ExecContext(ctx, query,
			agent.Name, string(agent.Type), agent.Status, agent.Description, agent.Persona,
			agent.Model, cfg, agent.UpdatedAt.UnixMilli(), agent.ID,
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: agents.name") {
			return false, fmt.Errorf("%w: %s", ErrDuplicateName, agent.Name)
		}
		return false, fmt.Errorf("update agent: %w", err)
	}
	return rows > 0, nil
}

// DeleteAgent removes an agent by ID.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) (bool, error) {
	var rows int64
	err := withRetry(ctx, "delete agent", retryAttempts, retryBase, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete agent: %w", err)
	}
	return rows > 0, nil
}

// RecordMetrics stores a batch of measurements in one transaction.
func (s *SQLiteStore) RecordMetrics(ctx context.Context, metrics []domain.PerformanceMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	return withRetry(ctx, "record metrics", retryAttempts, retryBase, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO performance_metrics (service, metric_type, value, labels_json, recorded_at)
		VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range metrics {
			labels, err := marshalLabels(m.Labels)
			if err != nil {
				return fmt.Errorf("encode labels: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, m.Service, m.MetricType, m.Value, labels, m.Timestamp.UnixMilli()); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// metricWhere builds the WHERE clause shared by ListMetrics and
// DeleteMetrics.
func metricWhere(filter MetricFilter) (string, []any) {
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
	if !filter.Start.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, filter.Start.UnixMilli())
	}
	if !filter.End.IsZero() {
		where = append(where, "recorded_at <= ?")
		args = append(args, filter.End.UnixMilli())
	}
	return whereClause(where), args
}

// ListMetrics returns measurements matching filter, newest first.
func (s *SQLiteStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]domain.PerformanceMetric, int, error) {
	clause, args := metricWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM performance_metrics`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count metrics: %w", err)
	}

	query := `SELECT id, service, metric_type, value, labels_json, recorded_at FROM performance_metrics` +
		clause + ` ORDER BY recorded_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limitArg(filter.Limit), filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query metrics: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close metric rows", "error", closeErr)
		}
	}()

	var out []domain.PerformanceMetric
	for rows.Next() {
		var (
			m      domain.PerformanceMetric
			labels string
			ts     int64
		)
		if err := rows.Scan(&m.ID, &m.Service, &m.MetricType, &m.Value, &labels, &ts); err != nil {
			return nil, 0, fmt.Errorf("scan metric row: %w", err)
		}
		if labels != "" && labels != "{}" {
			if err := json.Unmarshal([]byte(labels), &m.Labels); err != nil {
				return nil, 0, fmt.Errorf("decode labels: %w", err)
			}
		}
		m.Timestamp = time.UnixMilli(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate metrics: %w", err)
	}
	return out, total, nil
}

// DeleteMetrics removes measurements matching filter. Limit and Offset are
// ignored.
func (s *SQLiteStore) DeleteMetrics(ctx context.Context, filter MetricFilter) (int64, error) {
	clause, args := metricWhere(filter)
	var rows int64
	err := withRetry(ctx, "delete metrics", retryAttempts, retryBase, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM performance_metrics`+clause, args...)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete metrics: %w", err)
	}
	return rows, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// limitArg maps a non-positive limit to SQLite's "no limit".
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func marshalLabels(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}
