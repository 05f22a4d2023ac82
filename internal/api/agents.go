package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/stats"
	"github.com/fmaa-labs/fmaa-chat/internal/store"
)

type agentRequest struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Description string         `json:"description"`
	Persona     string         `json:"persona"`
	Model       string         `json:"model"`
	Config      map[string]any `json:"config"`
}

// agentPatch carries optional fields for updates.
type agentPatch struct {
	Name        *string        `json:"name"`
	Status      *string        `json:"status"`
	Description *string        `json:"description"`
	Persona     *string        `json:"persona"`
	Model       *string        `json:"model"`
	Config      map[string]any `json:"config"`
}

func validTypes() string {
	types := domain.AgentTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func validStatus(s string) bool {
	return s == domain.AgentStatusActive || s == domain.AgentStatusInactive
}

// ListAgents lists stored agents with filters, pagination and a summary.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r, 50)
	if !ok {
		Error(w, http.StatusBadRequest, "limit and offset must be non-negative integers")
		return
	}
	q := r.URL.Query()
	filter := store.AgentFilter{
		Type:   domain.AgentType(q.Get("type")),
		Status: q.Get("status"),
		Limit:  limit,
		Offset: offset,
	}

	agents, total, err := h.repo.ListAgents(r.Context(), filter)
	if err != nil {
		internalError(w, "Failed to list agents", err)
		return
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    agents,
		"summary": stats.SummarizeAgents(agents),
		"pagination": map[string]int{
			"limit":  limit,
			"offset": offset,
			"count":  len(agents),
			"total":  total,
		},
	})
}

// CreateAgent stores a new agent definition.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Type == "" {
		Error(w, http.StatusBadRequest, "name and type are required")
		return
	}
	typ := domain.AgentType(req.Type)
	if !typ.Valid() {
		Error(w, http.StatusBadRequest, fmt.Sprintf("invalid agent type, must be one of: %s", validTypes()))
		return
	}
	if req.Status == "" {
		req.Status = domain.AgentStatusActive
	}
	if !validStatus(req.Status) {
		Error(w, http.StatusBadRequest, "invalid status")
		return
	}
	if req.Description == "" {
		req.Description = fmt.Sprintf("%s agent created via API", typ)
	}

	cfg := domain.DefaultAgentConfig(typ)
	maps.Copy(cfg, req.Config)

	now := h.now().UTC()
	agent := &domain.Agent{
		ID:          h.newID(),
		Name:        req.Name,
		Type:        typ,
		Status:      req.Status,
		Description: req.Description,
		Persona:     req.Persona,
		Model:       req.Model,
		Config:      cfg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.repo.CreateAgent(r.Context(), agent); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			Error(w, http.StatusConflict, "agent name already exists")
			return
		}
		internalError(w, "Failed to create agent", err)
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"data":    agent,
		"message": "Agent created successfully",
	})
}

// GetAgent returns one agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.repo.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		internalError(w, "Failed to get agent", err)
		return
	}
	if agent == nil {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"data": agent})
}

// UpdateAgent applies a partial update. Type and ID are immutable.
func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var patch agentPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := h.repo.GetAgent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		internalError(w, "Failed to get agent", err)
		return
	}
	if agent == nil {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			Error(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		agent.Name = name
	}
	if patch.Status != nil {
		if !validStatus(*patch.Status) {
			Error(w, http.StatusBadRequest, "invalid status")
			return
		}
		agent.Status = *patch.Status
	}
	if patch.Description != nil {
		agent.Description = *patch.Description
	}
	if patch.Persona != nil {
		agent.Persona = *patch.Persona
	}
	if patch.Model != nil {
		agent.Model = *patch.Model
	}
	if patch.Config != nil {
		if agent.Config == nil {
			agent.Config = map[string]any{}
		}
		maps.Copy(agent.Config, patch.Config)
	}
	agent.UpdatedAt = h.now().UTC()

	found, err := h.repo.UpdateAgent(ctx, agent)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			Error(w, http.StatusConflict, "agent name already exists")
			return
		}
		internalError(w, "Failed to update agent", err)
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    agent,
		"message": "Agent updated successfully",
	})
}

// DeleteAgent removes an agent.
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	found, err := h.repo.DeleteAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		internalError(w, "Failed to delete agent", err)
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Agent deleted successfully"})
}
