package api

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness, uptime, live connections and dependency checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	status := "healthy"
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.repo.Ping(ctx); err != nil {
		checks["database"] = "error"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	connections := 0
	if h.sessions != nil {
		connections = h.sessions.Count()
	}

	JSON(w, code, map[string]interface{}{
		"status":      status,
		"uptime":      h.now().Sub(h.started).Seconds(),
		"connections": connections,
		"timestamp":   h.now().UTC().Format(time.RFC3339),
		"checks":      checks,
	})
}

// AgentInfo describes the default chat agent.
func (h *Handler) AgentInfo(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.info)
}
