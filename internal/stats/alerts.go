package stats

import (
	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// Threshold holds the warning and critical bounds for one metric type. A
// value at or above a bound triggers that level.
type Threshold struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds covers the externally reported metric types plus the
// per-turn latency, which is graded like response_time.
var DefaultThresholds = map[string]Threshold{
	"response_time":          {Warning: 1000, Critical: 3000},
	"cpu_usage":              {Warning: 70, Critical: 90},
	"memory_usage":           {Warning: 80, Critical: 95},
	"error_rate":             {Warning: 5, Critical: 10},
	domain.MetricTurnLatency: {Warning: 1000, Critical: 3000},
}

// CheckAlert grades m against thresholds. ok is false for metric types
// without a threshold and for values below the warning bound.
func CheckAlert(m domain.PerformanceMetric, thresholds map[string]Threshold) (domain.PerformanceAlert, bool) {
	th, found := thresholds[m.MetricType]
	if !found {
		return domain.PerformanceAlert{}, false
	}
	alert := domain.PerformanceAlert{
		Service:    m.Service,
		MetricType: m.MetricType,
		Value:      m.Value,
		Status:     domain.AlertStatusActive,
		Timestamp:  m.Timestamp,
	}
	switch {
	case m.Value >= th.Critical:
		alert.Level, alert.Threshold = domain.AlertCritical, th.Critical
	case m.Value >= th.Warning:
		alert.Level, alert.Threshold = domain.AlertWarning, th.Warning
	default:
		return domain.PerformanceAlert{}, false
	}
	return alert, true
}

// CheckAlerts returns an alert for every metric in the batch that breaches
// its threshold.
func CheckAlerts(metrics []domain.PerformanceMetric, thresholds map[string]Threshold) []domain.PerformanceAlert {
	var out []domain.PerformanceAlert
	for _, m := range metrics {
		if a, ok := CheckAlert(m, thresholds); ok {
			out = append(out, a)
		}
	}
	return out
}
