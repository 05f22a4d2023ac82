package store

import (
	"context"
	"testing"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/agent"
	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

func TestTurnMetrics(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	completed := TurnMetrics(agent.TurnReport{
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		Agent:      "FMAA Assistant",
		Outcome:    agent.OutcomeCompleted,
		Reply:      "héllo",
		StartedAt:  start,
		Latency:    250 * time.Millisecond,
		FirstChunk: 40 * time.Millisecond,
		Chunks:     3,
	})

	byType := map[string]domain.PerformanceMetric{}
	for _, m := range completed {
		byType[m.MetricType] = m
	}
	if byType[domain.MetricTurnLatency].Value != 250 {
		t.Errorf("latency = %v", byType[domain.MetricTurnLatency].Value)
	}
	if byType[domain.MetricFirstChunk].Value != 40 {
		t.Errorf("first chunk = %v", byType[domain.MetricFirstChunk].Value)
	}
	if byType[domain.MetricResponseLength].Value != 5 {
		t.Errorf("response chars = %v", byType[domain.MetricResponseLength].Value)
	}
	if _, ok := byType[domain.MetricTurnFailed]; ok {
		t.Error("completed turn recorded as failed")
	}
	if got := byType[domain.MetricTurnLatency]; got.Labels["agent"] != "FMAA Assistant" || !got.Timestamp.Equal(start.Add(250*time.Millisecond)) {
		t.Errorf("unexpected metric: %+v", got)
	}

	failed := TurnMetrics(agent.TurnReport{Outcome: agent.OutcomeFailed, StartedAt: start})
	var sawFailed bool
	for _, m := range failed {
		if m.MetricType == domain.MetricTurnFailed {
			sawFailed = true
		}
		if m.MetricType == domain.MetricFirstChunk {
			t.Error("first chunk recorded for turn without chunks")
		}
	}
	if !sawFailed {
		t.Error("failed turn missing turn_failed metric")
	}
}

func TestMetricsRecorder_PersistsReports(t *testing.T) {
	s := newTestStore(t)
	rec := NewMetricsRecorder(s, nil)

	rec.ObserveTurn(context.Background(), agent.TurnReport{
		Provider:  "echo",
		Model:     "gpt-4o-mini",
		Outcome:   agent.OutcomeCompleted,
		StartedAt: time.Now(),
		Latency:   10 * time.Millisecond,
	})
	rec.ObserveTurn(context.Background(), agent.TurnReport{Outcome: agent.OutcomeAbandoned, StartedAt: time.Now()})
	rec.Close()
	rec.Close()
	rec.ObserveTurn(context.Background(), agent.TurnReport{Outcome: agent.OutcomeCompleted, StartedAt: time.Now()})

	_, total, err := s.ListMetrics(context.Background(), MetricFilter{Service: domain.ServiceChat})
	if err != nil {
		t.Fatalf("ListMetrics failed: %v", err)
	}
	if total != 3 {
		t.Errorf("stored %d metrics, want 3", total)
	}
}

func TestMetricsRecorder_RecordsLatencyAlerts(t *testing.T) {
	s := newTestStore(t)
	rec := NewMetricsRecorder(s, nil)

	rec.ObserveTurn(context.Background(), agent.TurnReport{
		Provider:  "echo",
		Model:     "gpt-4o-mini",
		Outcome:   agent.OutcomeCompleted,
		StartedAt: time.Now(),
		Latency:   3500 * time.Millisecond,
	})
	rec.ObserveTurn(context.Background(), agent.TurnReport{
		Outcome:   agent.OutcomeCompleted,
		StartedAt: time.Now(),
		Latency:   20 * time.Millisecond,
	})
	rec.Close()

	alerts, total, err := s.ListAlerts(context.Background(), AlertFilter{})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("stored %d alerts, want 1", total)
	}
	if a := alerts[0]; a.Level != domain.AlertCritical || a.MetricType != domain.MetricTurnLatency || a.Value != 3500 || a.Threshold != 3000 {
		t.Errorf("unexpected alert: %+v", a)
	}
}
