package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fmaa-labs/fmaa-chat/internal/agent"
)

func init() {
	register(
		wsConnections,
		chatTurns,
		chatTurnLatencyMs,
		chatFirstChunkMs,
		chatChunks,
		chatRejected,
	)
}

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fmaa_ws_connections",
			Help: "Currently open chat websocket connections.",
		},
	)

	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmaa_chat_turns_total",
			Help: "Finished chat turns per provider/model/outcome.",
		},
		[]string{"provider", "model", "outcome"},
	)

	chatTurnLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmaa_chat_turn_latency_ms",
			Help:    "Time from dispatch to the end of a turn in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		},
		[]string{"provider", "model", "outcome"},
	)

	chatFirstChunkMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmaa_chat_first_chunk_ms",
			Help:    "Time from dispatch to the first streamed fragment in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3200, 6400},
		},
		[]string{"provider", "model"},
	)

	chatChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmaa_chat_chunks_total",
			Help: "Streamed fragments relayed to clients.",
		},
		[]string{"provider", "model"},
	)

	chatRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmaa_chat_messages_rejected_total",
			Help: "Inbound messages rejected before dispatch, by reason.",
		},
		[]string{"reason"},
	)
)

// ConnectionOpened increments the open connection gauge.
func ConnectionOpened() { wsConnections.Inc() }

// ConnectionClosed decrements the open connection gauge.
func ConnectionClosed() { wsConnections.Dec() }

// MessageRejected counts a message rejected for reason.
func MessageRejected(reason string) {
	chatRejected.WithLabelValues(norm(reason)).Inc()
}

// TurnObserver records turn reports into the chat collectors.
type TurnObserver struct{}

var _ agent.TurnObserver = TurnObserver{}

// ObserveTurn implements agent.TurnObserver.
func (TurnObserver) ObserveTurn(_ context.Context, r agent.TurnReport) {
	provider, model := norm(r.Provider), norm(r.Model)
	outcome := string(r.Outcome)
	chatTurns.WithLabelValues(provider, model, outcome).Inc()
	chatTurnLatencyMs.WithLabelValues(provider, model, outcome).Observe(float64(r.Latency.Milliseconds()))
	if r.Chunks > 0 {
		chatFirstChunkMs.WithLabelValues(provider, model).Observe(float64(r.FirstChunk.Milliseconds()))
		chatChunks.WithLabelValues(provider, model).Add(float64(r.Chunks))
	}
}
