package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/agent"
	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/stats"
)

// MetricsRecorder persists a set of performance metrics for every finished
// turn, plus an alert for each one over its threshold. Writes run on a
// background goroutine so turns never wait on disk.
type MetricsRecorder struct {
	repo       Repository
	thresholds map[string]stats.Threshold
	timeout    time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan []domain.PerformanceMetric
	wg     sync.WaitGroup
}

var _ agent.TurnObserver = (*MetricsRecorder)(nil)

// NewMetricsRecorder starts a recorder writing to repo.
func NewMetricsRecorder(repo Repository, logger *slog.Logger) *MetricsRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &MetricsRecorder{
		repo:       repo,
		thresholds: stats.DefaultThresholds,
		timeout:    5 * time.Second,
		logger:     logger,
		queue:      make(chan []domain.PerformanceMetric, 128),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// ObserveTurn implements agent.TurnObserver. Abandoned turns are not recorded.
func (r *MetricsRecorder) ObserveTurn(_ context.Context, report agent.TurnReport) {
	if report.Outcome == agent.OutcomeAbandoned {
		return
	}
	batch := TurnMetrics(report)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- batch:
	default:
		r.logger.Warn("Metrics queue full, dropping turn metrics", "conn_id", report.ConnID)
	}
}

// TurnMetrics converts a turn report into stored measurements.
func TurnMetrics(report agent.TurnReport) []domain.PerformanceMetric {
	ts := report.StartedAt.Add(report.Latency)
	labels := map[string]string{
		"provider": report.Provider,
		"model":    report.Model,
		"outcome":  string(report.Outcome),
	}
	if report.Agent != "" {
		labels["agent"] = report.Agent
	}
	metric := func(kind string, v float64) domain.PerformanceMetric {
		return domain.PerformanceMetric{
			Service:    domain.ServiceChat,
			MetricType: kind,
			Value:      v,
			Labels:     labels,
			Timestamp:  ts,
		}
	}

	out := []domain.PerformanceMetric{
		metric(domain.MetricTurnLatency, float64(report.Latency.Milliseconds())),
		metric(domain.MetricChunkCount, float64(report.Chunks)),
	}
	if report.Chunks > 0 {
		out = append(out, metric(domain.MetricFirstChunk, float64(report.FirstChunk.Milliseconds())))
	}
	if report.Outcome == agent.OutcomeFailed {
		out = append(out, metric(domain.MetricTurnFailed, 1))
	} else {
		out = append(out, metric(domain.MetricResponseLength, float64(len([]rune(report.Reply)))))
	}
	return out
}

// Close flushes pending writes and stops the recorder.
func (r *MetricsRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *MetricsRecorder) run() {
	defer r.wg.Done()
	for batch := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.repo.RecordMetrics(ctx, batch); err != nil {
			r.logger.Warn("Failed to record turn metrics", "error", err)
		} else {
			RaiseAlerts(ctx, r.repo, batch, r.thresholds, r.logger)
		}
		cancel()
	}
}

// RaiseAlerts stores an alert for every metric in batch over its threshold
// and logs each one. Failures are logged; the metrics themselves are already
// stored.
func RaiseAlerts(ctx context.Context, repo Repository, batch []domain.PerformanceMetric, thresholds map[string]stats.Threshold, logger *slog.Logger) []domain.PerformanceAlert {
	alerts := stats.CheckAlerts(batch, thresholds)
	if len(alerts) == 0 {
		return nil
	}
	if err := repo.RecordAlerts(ctx, alerts); err != nil {
		logger.Warn("Failed to record performance alerts", "error", err)
		return nil
	}
	for _, a := range alerts {
		logger.Warn("Performance alert",
			"level", a.Level,
			"service", a.Service,
			"metric_type", a.MetricType,
			"value", a.Value,
			"threshold", a.Threshold,
		)
	}
	return alerts
}
