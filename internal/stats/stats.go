// Package stats aggregates stored performance metrics and agent definitions
// for the HTTP API.
package stats

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// Aggregation granularities.
const (
	Raw    = "raw"
	Hourly = "hourly"
	Daily  = "daily"
)

// ValidAggregation reports whether a is an accepted granularity.
func ValidAggregation(a string) bool {
	return a == Raw || a == Hourly || a == Daily
}

// Bucket is one aggregated group of metric values. Value is the mean.
type Bucket struct {
	Timestamp   string  `json:"timestamp"`
	Service     string  `json:"service"`
	MetricType  string  `json:"metric_type"`
	Value       float64 `json:"value"`
	Count       int     `json:"count"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Sum         float64 `json:"sum"`
	Aggregation string  `json:"aggregation_type"`
}

// Summary holds count/average/min/max/total over a set of values, rounded to
// two decimals.
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Total   float64 `json:"total"`
}

type bucketKey struct {
	slot       string
	service    string
	metricType string
}

// Aggregate groups metrics by hour or day (UTC) and metric type. Buckets are
// returned newest first. Raw or unknown granularities return nil.
func Aggregate(metrics []domain.PerformanceMetric, aggregation string) []Bucket {
	var layout string
	switch aggregation {
	case Hourly:
		layout = "2006-01-02T15:00:00"
	case Daily:
		layout = "2006-01-02"
	default:
		return nil
	}

	index := make(map[bucketKey]int)
	var out []Bucket
	for _, m := range metrics {
		key := bucketKey{
			slot:       m.Timestamp.UTC().Format(layout),
			service:    m.Service,
			metricType: m.MetricType,
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Bucket{
				Timestamp:   key.slot,
				Service:     m.Service,
				MetricType:  m.MetricType,
				Min:         math.Inf(1),
				Max:         math.Inf(-1),
				Aggregation: aggregation,
			})
		}
		b := &out[i]
		b.Count++
		b.Sum += m.Value
		b.Min = math.Min(b.Min, m.Value)
		b.Max = math.Max(b.Max, m.Value)
	}
	for i := range out {
		out[i].Value = out[i].Sum / float64(out[i].Count)
	}
	slices.SortStableFunc(out, func(a, b Bucket) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}

// Summarize computes summary statistics over values.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Count: len(values), Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range values {
		s.Total += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Average = round2(s.Total / float64(len(values)))
	s.Min = round2(s.Min)
	s.Max = round2(s.Max)
	s.Total = round2(s.Total)
	return s
}

// MetricValues extracts the values of raw metrics.
func MetricValues(metrics []domain.PerformanceMetric) []float64 {
	out := make([]float64, len(metrics))
	for i, m := range metrics {
		out[i] = m.Value
	}
	return out
}

// BucketValues extracts the mean of each bucket.
func BucketValues(buckets []Bucket) []float64 {
	out := make([]float64, len(buckets))
	for i, b := range buckets {
		out[i] = b.Value
	}
	return out
}

// AgentSummary counts agents by type and status.
type AgentSummary struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	ByStatus map[string]int `json:"by_status"`
}

// SummarizeAgents builds an AgentSummary for agents.
func SummarizeAgents(agents []*domain.Agent) AgentSummary {
	s := AgentSummary{
		Total:    len(agents),
		ByType:   map[string]int{},
		ByStatus: map[string]int{},
	}
	for _, a := range agents {
		s.ByType[string(a.Type)]++
		s.ByStatus[a.Status]++
	}
	return s
}

// ParseTime accepts RFC 3339 timestamps, plain dates, or Unix milliseconds.
func ParseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	var ms int64
	if _, err := fmt.Sscanf(v, "%d", &ms); err == nil && fmt.Sprint(ms) == v {
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
