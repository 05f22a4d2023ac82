// Package conversation holds the in-memory turn log of a chat session.
package conversation

import (
	"slices"
	"sync"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// DefaultWindow is the number of most recent turns sent to the provider.
const DefaultWindow = 10

// History is an ordered, append-only log of turns. The log itself is never
// pruned; callers bound provider context with Windowed. Safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []domain.Turn
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds a turn at the end of the log.
func (h *History) Append(turn domain.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Windowed returns a copy of the last k turns, oldest first. k <= 0 yields nil.
func (h *History) Windowed(k int) []domain.Turn {
	if k <= 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := max(len(h.turns)-k, 0)
	return slices.Clone(h.turns[start:])
}

// All returns a copy of the full log.
func (h *History) All() []domain.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.turns)
}

// Len returns the number of turns in the log.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Clear removes every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
