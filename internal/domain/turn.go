// Package domain contains core domain types for the FMAA chat server.
package domain

// Role tags who authored a conversation turn.
type Role string

const (
	// RoleSystem is the persona/instruction turn prepended to provider requests.
	RoleSystem Role = "system"
	// RoleUser is a message typed by the connected client.
	RoleUser Role = "user"
	// RoleAssistant is a completed generation from the provider.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one role-tagged entry of a conversation. Turns are values and are
// never mutated after they are appended to a history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewTurn builds a turn.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content}
}
