package session

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// Registry maps connection ids to their sessions.
type Registry struct {
	mu        sync.RWMutex
	active    map[string]*Session
	runner    TurnRunner
	maxQueued int
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. Sessions it creates run their turns
// through runner.
func NewRegistry(runner TurnRunner, maxQueued int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		active:    make(map[string]*Session),
		runner:    runner,
		maxQueued: maxQueued,
		logger:    logger,
	}
}

// Get returns the session for connID.
func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.active[connID]
	return s, ok
}

// GetOrCreate returns the session for connID, creating it with profile and
// out on first use.
func (r *Registry) GetOrCreate(connID string, profile domain.AgentProfile, out Emitter) *Session {
	r.mu.RLock()
	s, ok := r.active[connID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.active[connID]; ok {
		return s
	}
	s = New(connID, profile, out, r.runner, Options{MaxQueued: r.maxQueued, Logger: r.logger})
	r.active[connID] = s
	r.logger.Info("Chat session created", "conn_id", connID, "agent", profile.DisplayName, "model", profile.Model)
	return s
}

// Remove closes and forgets the session for connID. Unknown ids are ignored.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	s, ok := r.active[connID]
	delete(r.active, connID)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	r.logger.Info("Chat session removed", "conn_id", connID)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// IDs returns the live connection ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.active))
}

// CloseAll closes every session, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.active
	r.active = make(map[string]*Session)
	r.mu.Unlock()

	for id, s := range sessions {
		s.Close()
		r.logger.Info("Chat session closed", "conn_id", id)
	}
}
