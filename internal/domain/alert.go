package domain

import "time"

// AlertLevel grades a threshold breach.
type AlertLevel string

// Alert levels, from least to most severe.
const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// AlertStatusActive marks an alert nobody has acknowledged.
const AlertStatusActive = "active"

// PerformanceAlert records a metric that crossed a warning or critical
// threshold.
type PerformanceAlert struct {
	ID         int64      `json:"id"`
	Service    string     `json:"service"`
	MetricType string     `json:"metric_type"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Level      AlertLevel `json:"alert_level"`
	Status     string     `json:"status"`
	Timestamp  time.Time  `json:"timestamp"`
}
