package domain

import "fmt"

// Defaults used when no stored agent is selected for a connection.
const (
	DefaultDisplayName = "FMAA Assistant"
	DefaultPersona     = "helpful and friendly"
	DefaultModel       = "gpt-4o-mini"
)

// AgentProfile parameterizes prompt construction for a session.
// DisplayName and Persona are fixed for the profile's lifetime; Model may be
// swapped between turns.
type AgentProfile struct {
	DisplayName string `json:"display_name"`
	Persona     string `json:"persona"`
	Model       string `json:"model"`
}

// DefaultProfile returns the built-in assistant profile.
func DefaultProfile() AgentProfile {
	return AgentProfile{
		DisplayName: DefaultDisplayName,
		Persona:     DefaultPersona,
		Model:       DefaultModel,
	}
}

// WithModel returns a copy of the profile using model.
func (p AgentProfile) WithModel(model string) AgentProfile {
	p.Model = model
	return p
}

// SystemPrompt renders the persona instructions sent as the first turn of
// every provider request.
func (p AgentProfile) SystemPrompt() string {
	return fmt.Sprintf(`You are %s, a %s AI assistant.
You are part of the FMAA (FullMetal Agent Architecture) system.

Guidelines:
- Be conversational and engaging
- Provide helpful and accurate information
- Remember the conversation context
- If you don't know something, say so honestly
- Be creative but factual
- Keep responses reasonably concise unless asked for detail

Your personality: %s`, p.DisplayName, p.Persona, p.Persona)
}

// SystemTurn wraps SystemPrompt in a system-role turn.
func (p AgentProfile) SystemTurn() Turn {
	return NewTurn(RoleSystem, p.SystemPrompt())
}
