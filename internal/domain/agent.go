package domain

import (
	"slices"
	"time"
)

// AgentType classifies stored agent definitions.
type AgentType string

// Known agent types.
const (
	AgentTypeSentiment      AgentType = "sentiment"
	AgentTypeRecommendation AgentType = "recommendation"
	AgentTypePerformance    AgentType = "performance"
	AgentTypeCustom         AgentType = "custom"
)

// AgentStatus values.
const (
	AgentStatusActive   = "active"
	AgentStatusInactive = "inactive"
)

var agentTypes = []AgentType{
	AgentTypeSentiment,
	AgentTypeRecommendation,
	AgentTypePerformance,
	AgentTypeCustom,
}

// AgentTypes returns the accepted agent types.
func AgentTypes() []AgentType {
	return slices.Clone(agentTypes)
}

// Valid reports whether t is an accepted agent type.
func (t AgentType) Valid() bool {
	return slices.Contains(agentTypes, t)
}

// Agent is a stored agent definition. A connection may select one by ID to
// seed its session profile.
type Agent struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        AgentType      `json:"type"`
	Status      string         `json:"status"`
	Description string         `json:"description,omitempty"`
	Persona     string         `json:"persona,omitempty"`
	Model       string         `json:"model,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Profile derives a session profile from the agent, filling blanks from
// fallback.
func (a *Agent) Profile(fallback AgentProfile) AgentProfile {
	p := fallback
	if a == nil {
		return p
	}
	if a.Name != "" {
		p.DisplayName = a.Name
	}
	if a.Persona != "" {
		p.Persona = a.Persona
	}
	if a.Model != "" {
		p.Model = a.Model
	}
	return p
}

// IsActive returns true when the agent can be selected by new connections.
func (a *Agent) IsActive() bool {
	return a != nil && a.Status == AgentStatusActive
}

// DefaultAgentConfig returns the base config for agents of type t. Unknown
// types get the custom defaults.
func DefaultAgentConfig(t AgentType) map[string]any {
	switch t {
	case AgentTypeSentiment:
		return map[string]any{
			"temperature":   0.7,
			"max_tokens":    1000,
			"analysis_type": "sentiment",
			"language":      "en",
		}
	case AgentTypeRecommendation:
		return map[string]any{
			"temperature":         0.8,
			"max_tokens":          1500,
			"recommendation_type": "product",
			"personalization":     true,
		}
	case AgentTypePerformance:
		return map[string]any{
			"temperature": 0.6,
			"max_tokens":  2000,
			"metrics":     []string{"accuracy", "speed", "efficiency"},
			"monitoring":  true,
		}
	default:
		return map[string]any{
			"temperature":       0.7,
			"max_tokens":        1000,
			"custom_prompt":     "",
			"custom_parameters": map[string]any{},
		}
	}
}
