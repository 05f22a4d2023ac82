// Package ratelimit throttles inbound chat messages per client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether another event for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Nop allows everything. It is used when rate limiting is disabled.
type Nop struct{}

// Allow implements Limiter.
func (Nop) Allow(context.Context, string) (bool, error) { return true, nil }

// Memory is a sliding-window limiter held in process memory.
type Memory struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a limiter allowing limit events per window for each key
// and starts the background eviction goroutine. Call Stop to release it.
func NewMemory(limit int, window time.Duration) *Memory {
	m := &Memory{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	m.startEviction()
	return m
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	var recent []time.Time
	for _, t := range m.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= m.limit {
		m.requests[key] = recent
		return false, nil
	}

	m.requests[key] = append(recent, now)
	return true, nil
}

// Keys returns the number of tracked keys.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Stop ends the eviction goroutine.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// startEviction periodically drops keys whose events have all expired.
func (m *Memory) startEviction() {
	go func() {
		ticker := time.NewTicker(m.window)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.evict()
			}
		}
	}()
}

func (m *Memory) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.window)
	for key, times := range m.requests {
		var fresh []time.Time
		for _, t := range times {
			if t.After(cutoff) {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) == 0 {
			delete(m.requests, key)
		} else {
			m.requests[key] = fresh
		}
	}
}
