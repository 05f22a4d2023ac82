// Package api provides HTTP handlers for the FMAA REST API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fmaa-labs/fmaa-chat/internal/stats"
	"github.com/fmaa-labs/fmaa-chat/internal/store"
)

// ConnectionCounter reports the number of live chat sessions.
type ConnectionCounter interface {
	Count() int
}

// Info describes the running agent for /api/agent/info.
type Info struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Persona      string   `json:"persona"`
	DefaultModel string   `json:"model"`
	Providers    []string `json:"providers"`
	Capabilities []string `json:"capabilities"`
}

// Handler provides common handler utilities.
type Handler struct {
	repo       store.Repository
	sessions   ConnectionCounter
	info       Info
	thresholds map[string]stats.Threshold
	started    time.Time
	now        func() time.Time
	newID      func() string
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions ConnectionCounter, info Info, newID func() string) *Handler {
	return &Handler{
		repo:       repo,
		sessions:   sessions,
		info:       info,
		thresholds: stats.DefaultThresholds,
		started:    time.Now(),
		now:        time.Now,
		newID:      newID,
	}
}

// RegisterRoutes registers the REST routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/agent/info", h.AgentInfo)

		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents/{id}", h.GetAgent)
		r.Put("/agents/{id}", h.UpdateAgent)
		r.Delete("/agents/{id}", h.DeleteAgent)

		r.Get("/metrics", h.ListMetrics)
		r.Post("/metrics", h.RecordMetric)
		r.Delete("/metrics", h.DeleteMetrics)
		r.Get("/alerts", h.ListAlerts)

		r.Get("/sentiment", h.ListSentiments)
		r.Post("/sentiment", h.AnalyzeSentiment)
		r.Get("/sentiment/{id}", h.GetSentiment)
		r.Put("/sentiment/{id}", h.UpdateSentiment)
		r.Delete("/sentiment/{id}", h.DeleteSentiment)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// internalError logs err and writes a generic 500.
func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}

// pagination reads limit and offset query params.
func pagination(r *http.Request, defaultLimit int) (limit, offset int, ok bool) {
	limit, offset = defaultLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
