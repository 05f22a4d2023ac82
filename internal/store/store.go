// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// ErrDuplicateName is returned when an agent with the same name exists.
var ErrDuplicateName = errors.New("agent name already exists")

// AgentFilter narrows ListAgents.
type AgentFilter struct {
	Type   domain.AgentType
	Status string
	Limit  int
	Offset int
}

// MetricFilter narrows ListMetrics. Zero times are unbounded.
type MetricFilter struct {
	Service    string
	MetricType string
	Start      time.Time
	End        time.Time
	Limit      int
	Offset     int
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	Service    string
	MetricType string
	Level      domain.AlertLevel
	Status     string
	Limit      int
	Offset     int
}

// SentimentFilter narrows ListSentiments. Zero times are unbounded.
type SentimentFilter struct {
	Source string
	Type   domain.SentimentType
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

// Repository defines the interface for persisting agents and performance
// metrics.
type Repository interface {
	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// CreateAgent stores a new agent definition.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// GetAgent retrieves an agent by ID. It returns nil, nil when not found.
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)

	// ListAgents returns matching agents, newest first, and the total count
	// before pagination.
	ListAgents(ctx context.Context, filter AgentFilter) ([]*domain.Agent, int, error)

	// UpdateAgent overwrites the mutable fields of an existing agent. It
	// returns false when no agent has the given ID.
	UpdateAgent(ctx context.Context, agent *domain.Agent) (bool, error)

	// DeleteAgent removes an agent. It returns false when no agent has the
	// given ID.
	DeleteAgent(ctx context.Context, id string) (bool, error)

	// RecordMetrics stores a batch of measurements.
	RecordMetrics(ctx context.Context, metrics []domain.PerformanceMetric) error

	// ListMetrics returns matching measurements, newest first, and the total
	// count before pagination.
	ListMetrics(ctx context.Context, filter MetricFilter) ([]domain.PerformanceMetric, int, error)

	// DeleteMetrics removes every measurement matching the filter's service,
	// type and time range and returns how many were removed.
	DeleteMetrics(ctx context.Context, filter MetricFilter) (int64, error)

	// RecordAlerts stores threshold breaches and assigns their IDs.
	RecordAlerts(ctx context.Context, alerts []domain.PerformanceAlert) error

	// ListAlerts returns matching alerts, newest first, and the total count
	// before pagination.
	ListAlerts(ctx context.Context, filter AlertFilter) ([]domain.PerformanceAlert, int, error)

	// CreateSentiment stores a sentiment analysis.
	CreateSentiment(ctx context.Context, a *domain.SentimentAnalysis) error

	// GetSentiment retrieves an analysis by ID. It returns nil, nil when not
	// found.
	GetSentiment(ctx context.Context, id string) (*domain.SentimentAnalysis, error)

	// ListSentiments returns matching analyses, newest first, and the total
	// count before pagination.
	ListSentiments(ctx context.Context, filter SentimentFilter) ([]*domain.SentimentAnalysis, int, error)

	// UpdateSentiment overwrites the mutable fields of an analysis. It
	// returns false when no analysis has the given ID.
	UpdateSentiment(ctx context.Context, a *domain.SentimentAnalysis) (bool, error)

	// DeleteSentiment removes an analysis. It returns false when no
	// analysis has the given ID.
	DeleteSentiment(ctx context.Context, id string) (bool, error)
}
