package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TranscriptConfig configures the on-disk conversation transcript.
type TranscriptConfig struct {
	Dir       string
	QueueSize int
}

// TranscriptEvent is one NDJSON line of a transcript.
type TranscriptEvent struct {
	Timestamp string         `json:"ts"`
	ConnID    string         `json:"conn_id"`
	StreamID  string         `json:"stream_id,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Model     string         `json:"model,omitempty"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Transcript appends finished turns to one NDJSON file per connection.
// Writes happen on a background goroutine; events are dropped when the
// queue is full.
type Transcript struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan TranscriptEvent
	wg     sync.WaitGroup
}

var _ TurnObserver = (*Transcript)(nil)

// NewTranscript creates the transcript directory and starts the writer.
func NewTranscript(cfg TranscriptConfig, logger *slog.Logger) (*Transcript, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	t := &Transcript{
		dir:    cfg.Dir,
		logger: logger,
		queue:  make(chan TranscriptEvent, cfg.QueueSize),
	}
	t.wg.Add(1)
	go t.run()
	return t, nil
}

// ObserveTurn implements TurnObserver.
func (t *Transcript) ObserveTurn(_ context.Context, r TurnReport) {
	ts := r.StartedAt.UTC().Format(time.RFC3339Nano)
	t.Log(TranscriptEvent{
		Timestamp: ts,
		ConnID:    r.ConnID,
		StreamID:  r.StreamID,
		Agent:     r.Agent,
		Model:     r.Model,
		Role:      "user",
		Content:   r.UserText,
	})
	meta := map[string]any{
		"outcome":    string(r.Outcome),
		"chunks":     r.Chunks,
		"latency_ms": r.Latency.Milliseconds(),
		"provider":   r.Provider,
	}
	if r.Err != nil {
		meta["error"] = r.Err.Error()
	}
	t.Log(TranscriptEvent{
		Timestamp: r.StartedAt.Add(r.Latency).UTC().Format(time.RFC3339Nano),
		ConnID:    r.ConnID,
		StreamID:  r.StreamID,
		Agent:     r.Agent,
		Model:     r.Model,
		Role:      "assistant",
		Content:   r.Reply,
		Meta:      meta,
	})
}

// Log queues ev for writing.
func (t *Transcript) Log(ev TranscriptEvent) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- ev:
	default:
		t.logger.Warn("Transcript queue full, dropping event", "conn_id", ev.ConnID)
	}
}

// Close flushes queued events and stops the writer.
func (t *Transcript) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

func (t *Transcript) run() {
	defer t.wg.Done()
	for ev := range t.queue {
		if err := t.write(ev); err != nil {
			t.logger.Warn("Failed to write transcript", "conn_id", ev.ConnID, "error", err)
		}
	}
}

func (t *Transcript) write(ev TranscriptEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	path := filepath.Join(t.dir, filepath.Base(ev.ConnID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
