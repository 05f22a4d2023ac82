package domain

import "time"

// Metric types recorded for every finished turn.
const (
	MetricTurnLatency    = "turn_latency_ms"
	MetricFirstChunk     = "first_chunk_ms"
	MetricChunkCount     = "chunk_count"
	MetricTurnFailed     = "turn_failed"
	MetricResponseLength = "response_chars"
	ServiceChat          = "chat"
)

// PerformanceMetric is one recorded measurement.
type PerformanceMetric struct {
	ID         int64             `json:"id"`
	Service    string            `json:"service"`
	MetricType string            `json:"metric_type"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
