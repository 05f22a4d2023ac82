package api

import (
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/stats"
	"github.com/fmaa-labs/fmaa-chat/internal/store"
)

type metricRequest struct {
	Service    string            `json:"service"`
	MetricType string            `json:"metric_type"`
	Value      *float64          `json:"value"`
	Labels     map[string]string `json:"labels"`
}

// ListMetrics returns stored performance metrics, optionally aggregated, with
// summary statistics over the returned values.
func (h *Handler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r, 100)
	if !ok {
		Error(w, http.StatusBadRequest, "limit and offset must be non-negative integers")
		return
	}
	q := r.URL.Query()
	aggregation := q.Get("aggregation")
	if aggregation == "" {
		aggregation = stats.Raw
	}
	if !stats.ValidAggregation(aggregation) {
		Error(w, http.StatusBadRequest, "aggregation must be raw, hourly or daily")
		return
	}

	filter, msg := metricFilter(q)
	if msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	rows, total, err := h.repo.ListMetrics(r.Context(), filter)
	if err != nil {
		internalError(w, "Failed to list metrics", err)
		return
	}

	var (
		data    interface{}
		summary stats.Summary
		count   int
	)
	if aggregation == stats.Raw {
		if rows == nil {
			rows = []domain.PerformanceMetric{}
		}
		data, summary, count = rows, stats.Summarize(stats.MetricValues(rows)), len(rows)
	} else {
		buckets := stats.Aggregate(rows, aggregation)
		if buckets == nil {
			buckets = []stats.Bucket{}
		}
		data, summary, count = buckets, stats.Summarize(stats.BucketValues(buckets)), len(buckets)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    data,
		"summary": summary,
		"pagination": map[string]int{
			"limit":  limit,
			"offset": offset,
			"count":  count,
			"total":  total,
		},
		"filters_applied": map[string]string{
			"service":     filter.Service,
			"metric_type": filter.MetricType,
			"start_date":  q.Get("start_date"),
			"end_date":    q.Get("end_date"),
			"aggregation": aggregation,
		},
	})
}

// RecordMetric stores one externally reported metric.
func (h *Handler) RecordMetric(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Service = strings.TrimSpace(req.Service)
	req.MetricType = strings.TrimSpace(req.MetricType)
	if req.Service == "" || req.MetricType == "" || req.Value == nil {
		Error(w, http.StatusBadRequest, "service, metric_type, and value are required")
		return
	}

	labels := make(map[string]string, len(req.Labels)+1)
	maps.Copy(labels, req.Labels)
	labels["source"] = "api"
	m := domain.PerformanceMetric{
		Service:    req.Service,
		MetricType: req.MetricType,
		Value:      *req.Value,
		Labels:     labels,
		Timestamp:  h.now().UTC(),
	}
	batch := []domain.PerformanceMetric{m}
	if err := h.repo.RecordMetrics(r.Context(), batch); err != nil {
		internalError(w, "Failed to record metric", err)
		return
	}
	alerts := store.RaiseAlerts(r.Context(), h.repo, batch, h.thresholds, slog.Default())
	if alerts == nil {
		alerts = []domain.PerformanceAlert{}
	}
	JSON(w, http.StatusCreated, map[string]interface{}{
		"data":    m,
		"alerts":  alerts,
		"message": "Metric recorded successfully",
	})
}

// DeleteMetrics removes stored metrics matching service, metric_type,
// start_date and end_date. With no filters every metric is removed.
func (h *Handler) DeleteMetrics(w http.ResponseWriter, r *http.Request) {
	filter, msg := metricFilter(r.URL.Query())
	if msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}
	n, err := h.repo.DeleteMetrics(r.Context(), filter)
	if err != nil {
		internalError(w, "Failed to delete metrics", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"deleted": n,
		"message": "Performance metrics deleted successfully",
	})
}

// ListAlerts returns recorded threshold breaches.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r, 100)
	if !ok {
		Error(w, http.StatusBadRequest, "limit and offset must be non-negative integers")
		return
	}
	q := r.URL.Query()
	level := domain.AlertLevel(q.Get("alert_level"))
	if level != "" && level != domain.AlertWarning && level != domain.AlertCritical {
		Error(w, http.StatusBadRequest, "alert_level must be warning or critical")
		return
	}
	alerts, total, err := h.repo.ListAlerts(r.Context(), store.AlertFilter{
		Service:    q.Get("service"),
		MetricType: q.Get("metric_type"),
		Level:      level,
		Status:     q.Get("status"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		internalError(w, "Failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []domain.PerformanceAlert{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"data": alerts,
		"pagination": map[string]int{
			"limit":  limit,
			"offset": offset,
			"count":  len(alerts),
			"total":  total,
		},
	})
}

// metricFilter reads service, metric_type, start_date and end_date. msg is
// non-empty when a date does not parse.
func metricFilter(q url.Values) (filter store.MetricFilter, msg string) {
	filter.Service = q.Get("service")
	filter.MetricType = q.Get("metric_type")
	if v := q.Get("start_date"); v != "" {
		t, err := stats.ParseTime(v)
		if err != nil {
			return filter, "invalid start_date"
		}
		filter.Start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := stats.ParseTime(v)
		if err != nil {
			return filter, "invalid end_date"
		}
		filter.End = t
	}
	return filter, ""
}
