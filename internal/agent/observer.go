package agent

import (
	"context"
	"time"
)

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// TurnReport summarizes one finished turn.
type TurnReport struct {
	ConnID     string
	StreamID   string
	Agent      string
	Model      string
	Provider   string
	Outcome    Outcome
	UserText   string
	Reply      string
	Err        error
	StartedAt  time.Time
	Latency    time.Duration
	FirstChunk time.Duration
	Chunks     int
}

// TurnObserver is notified after every turn. ObserveTurn is called from the
// session worker and must not block for long.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, report TurnReport)
}

// ObserverFunc adapts a function to TurnObserver.
type ObserverFunc func(ctx context.Context, report TurnReport)

// ObserveTurn implements TurnObserver.
func (f ObserverFunc) ObserveTurn(ctx context.Context, report TurnReport) { f(ctx, report) }
