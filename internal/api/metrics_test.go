package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

func seedMetrics(t *testing.T, a *testAPI, base time.Time) {
	t.Helper()
	var batch []domain.PerformanceMetric
	for i, v := range []float64{100, 200, 600} {
		batch = append(batch, domain.PerformanceMetric{
			Service:    domain.ServiceChat,
			MetricType: domain.MetricTurnLatency,
			Value:      v,
			Timestamp:  base.Add(time.Duration(i) * 20 * time.Minute),
		})
	}
	require.NoError(t, a.repo.RecordMetrics(context.Background(), batch))
}

func TestListMetrics_Raw(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	seedMetrics(t, a, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	w, got := a.do(t, http.MethodGet, "/api/metrics?service=chat&metric_type=turn_latency_ms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, got["data"], 3)
	summary := got["summary"].(map[string]any)
	require.EqualValues(t, 3, summary["count"])
	require.EqualValues(t, 300, summary["average"])
	require.EqualValues(t, 900, summary["total"])
	require.Equal(t, "raw", got["filters_applied"].(map[string]any)["aggregation"])
}

func TestListMetrics_HourlyWithDateRange(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	seedMetrics(t, a, time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC))

	w, got := a.do(t, http.MethodGet, "/api/metrics?aggregation=hourly&start_date=2025-03-01T10:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := got["data"].([]any)
	require.Len(t, data, 2)
	newest := data[0].(map[string]any)
	require.Equal(t, "2025-03-01T11:00:00", newest["timestamp"])
	require.EqualValues(t, 600, newest["value"])
	require.EqualValues(t, 1, newest["count"])
	older := data[1].(map[string]any)
	require.EqualValues(t, 150, older["value"])
	require.EqualValues(t, 2, older["count"])

	w, got = a.do(t, http.MethodGet, "/api/metrics?end_date=2025-03-01T10:45:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, got["data"], 1)
}

func TestListMetrics_BadParams(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	for _, path := range []string{
		"/api/metrics?aggregation=weekly",
		"/api/metrics?start_date=yesterday",
		"/api/metrics?offset=x",
		"/api/metrics?limit=-5",
	} {
		w, _ := a.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestRecordMetric(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	w, _ := a.do(t, http.MethodPost, "/api/metrics", map[string]any{"service": "chat", "metric_type": "cpu_usage"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, got := a.do(t, http.MethodPost, "/api/metrics", map[string]any{
		"service":     "chat",
		"metric_type": "cpu_usage",
		"value":       0,
		"labels":      map[string]string{"host": "a", "source": "dashboard"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	labels := got["data"].(map[string]any)["labels"].(map[string]any)
	require.Equal(t, "api", labels["source"], "caller labels must not override source")
	require.Equal(t, "a", labels["host"])
	require.Empty(t, got["alerts"])

	_, got = a.do(t, http.MethodGet, "/api/metrics?metric_type=cpu_usage", nil)
	require.Len(t, got["data"], 1)
}

func TestRecordMetric_RaisesAlerts(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	w, got := a.do(t, http.MethodPost, "/api/metrics", map[string]any{
		"service":     "search",
		"metric_type": "response_time",
		"value":       3200,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	alerts := got["alerts"].([]any)
	require.Len(t, alerts, 1)
	alert := alerts[0].(map[string]any)
	require.Equal(t, "critical", alert["alert_level"])
	require.EqualValues(t, 3000, alert["threshold"])
	require.Equal(t, "active", alert["status"])

	a.do(t, http.MethodPost, "/api/metrics", map[string]any{"service": "search", "metric_type": "cpu_usage", "value": 75})
	a.do(t, http.MethodPost, "/api/metrics", map[string]any{"service": "search", "metric_type": "cpu_usage", "value": 10})

	w, got = a.do(t, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, got["data"], 2)
	require.EqualValues(t, 2, got["pagination"].(map[string]any)["total"])

	_, got = a.do(t, http.MethodGet, "/api/alerts?alert_level=warning", nil)
	data := got["data"].([]any)
	require.Len(t, data, 1)
	require.Equal(t, "cpu_usage", data[0].(map[string]any)["metric_type"])

	w, _ = a.do(t, http.MethodGet, "/api/alerts?alert_level=severe", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteMetrics(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	seedMetrics(t, a, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, a.repo.RecordMetrics(context.Background(), []domain.PerformanceMetric{{
		Service: "billing", MetricType: "cpu_usage", Value: 5, Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}}))

	w, _ := a.do(t, http.MethodDelete, "/api/metrics?start_date=bogus", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, got := a.do(t, http.MethodDelete, "/api/metrics?service=chat&start_date=2025-03-01T10:10:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, got["deleted"])

	_, got = a.do(t, http.MethodGet, "/api/metrics", nil)
	require.Len(t, got["data"], 2)

	_, got = a.do(t, http.MethodDelete, "/api/metrics", nil)
	require.EqualValues(t, 2, got["deleted"])
	_, got = a.do(t, http.MethodGet, "/api/metrics", nil)
	require.Empty(t, got["data"])
}
