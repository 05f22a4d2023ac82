// Package session holds per-connection chat state: the conversation history,
// the agent profile and the single in-flight stream, together with the queue
// of messages waiting for their turn.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fmaa-labs/fmaa-chat/internal/conversation"
	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/protocol"
)

var (
	// ErrSessionClosed is returned once the owning connection has gone away.
	ErrSessionClosed = errors.New("session closed")
	// ErrStreamAbandoned is returned when a stream was superseded by a reset.
	ErrStreamAbandoned = errors.New("stream abandoned")
	// ErrSessionBusy is returned when the pending message queue is full.
	ErrSessionBusy = errors.New("too many pending messages")
)

// DiscardedOnReset is reported for each queued message dropped by a reset.
const DiscardedOnReset = "Message discarded: conversation was reset."

// DefaultMaxQueued bounds pending messages per session.
const DefaultMaxQueued = 8

// State is the lifecycle state of a session's current turn.
type State int

const (
	StateIdle State = iota
	StateDispatched
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Emitter delivers outbound events to the connection that owns a session.
type Emitter interface {
	Emit(event string, payload any) error
}

// Job is one accepted user message waiting to be turned into a stream.
type Job struct {
	ID        string
	Text      string
	Timestamp int64

	epoch uint64
}

// TurnRunner executes a single turn for a session. RunTurn is called from the
// session worker goroutine, one job at a time.
type TurnRunner interface {
	RunTurn(s *Session, job Job)
}

// StreamState tracks the stream currently in flight.
type StreamState struct {
	ID     string
	text   strings.Builder
	chunks int
	cancel context.CancelFunc
}

// Text returns the accumulated reply so far.
func (st *StreamState) Text() string { return st.text.String() }

// Chunks returns the number of fragments appended.
func (st *StreamState) Chunks() int { return st.chunks }

// Options configure a session.
type Options struct {
	MaxQueued int
	Logger    *slog.Logger
}

// Session is the state for a single websocket connection.
type Session struct {
	id        string
	defaults  domain.AgentProfile
	out       Emitter
	runner    TurnRunner
	maxQueued int
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	profile domain.AgentProfile
	history *conversation.History
	state   State
	stream  *StreamState
	queue   []Job
	working bool
	// dispatching is set while a dequeued job has not yet begun its turn.
	dispatching bool
	epoch       uint64
	closed      bool
}

// New creates a session. The profile is both the initial profile and the one
// restored by Reset.
func New(id string, profile domain.AgentProfile, out Emitter, runner TurnRunner, opts Options) *Session {
	if opts.MaxQueued <= 0 {
		opts.MaxQueued = DefaultMaxQueued
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		defaults:  profile,
		out:       out,
		runner:    runner,
		maxQueued: opts.MaxQueued,
		logger:    opts.Logger.With("conn_id", id),
		ctx:       ctx,
		cancel:    cancel,
		profile:   profile,
		history:   conversation.NewHistory(),
	}
}

// ID returns the owning connection id.
func (s *Session) ID() string { return s.id }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// History returns the conversation history.
func (s *Session) History() *conversation.History { return s.history }

// Profile returns a copy of the current profile.
func (s *Session) Profile() domain.AgentProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// State returns the current turn state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Streaming reports whether a stream is in flight and its id.
func (s *Session) Streaming() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return "", false
	}
	return s.stream.ID, true
}

// Pending returns the number of queued messages.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Update runs fn with exclusive access to the session.
func (s *Session) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn(&Tx{s: s})
}

// UpdateStream runs fn only if streamID is still the stream in flight.
func (s *Session) UpdateStream(streamID string, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.stream == nil || s.stream.ID != streamID {
		return ErrStreamAbandoned
	}
	return fn(&Tx{s: s})
}

// Enqueue schedules job for the worker. Jobs run strictly in arrival order
// and never overlap.
func (s *Session) Enqueue(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.working && len(s.queue) >= s.maxQueued {
		return ErrSessionBusy
	}
	job.epoch = s.epoch
	s.queue = append(s.queue, job)
	if !s.working {
		s.working = true
		go s.work()
	}
	return nil
}

func (s *Session) work() {
	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 {
			s.working = false
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue[0] = Job{}
		s.queue = s.queue[1:]
		s.dispatching = true
		s.mu.Unlock()

		s.run(job)
	}
}

func (s *Session) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Turn panicked", "job_id", job.ID, "panic", r)
			s.mu.Lock()
			if s.stream != nil {
				s.stream.cancel()
				s.stream = nil
			}
			s.state = StateIdle
			s.dispatching = false
			s.mu.Unlock()
		}
	}()
	s.runner.RunTurn(s, job)
}

// Begin runs fn as the first step of job's turn. It fails with
// ErrStreamAbandoned if a reset happened after job was enqueued.
func (s *Session) Begin(job Job, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if job.epoch != s.epoch {
		return ErrStreamAbandoned
	}
	s.dispatching = false
	return fn(&Tx{s: s})
}

// SwitchModel replaces the profile's model. It takes effect for the next
// request; a stream in flight keeps the model it was started with.
func (s *Session) SwitchModel(model string) error {
	return s.Update(func(tx *Tx) error {
		s.profile = s.profile.WithModel(model)
		s.logger.Info("Model switched", "model", model)
		return tx.Emit(protocol.EventModelSwitched, protocol.ModelSwitched{Model: model, Success: true})
	})
}

// Reset abandons any stream in flight, drops queued messages, clears the
// history and restores the initial profile.
func (s *Session) Reset() error {
	return s.Update(func(tx *Tx) error {
		if s.stream != nil {
			s.stream.cancel()
			s.logger.Info("Stream abandoned by reset", "stream_id", s.stream.ID)
			s.stream = nil
		}
		dropped := len(s.queue)
		if s.dispatching {
			dropped++
			s.dispatching = false
		}
		s.queue = nil
		s.epoch++
		s.history.Clear()
		s.profile = s.defaults
		s.state = StateIdle

		for range dropped {
			if err := tx.Emit(protocol.EventMessageError, protocol.MessageError{
				Error:     DiscardedOnReset,
				Timestamp: protocol.Now(),
			}); err != nil {
				return err
			}
		}
		s.logger.Info("Conversation reset", "dropped", dropped)
		return tx.Emit(protocol.EventConversationReset, protocol.ConversationReset{Success: true})
	})
}

// Close cancels any stream in flight and marks the session closed. Further
// updates fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.stream != nil {
		s.stream.cancel()
		s.stream = nil
	}
	s.queue = nil
	s.cancel()
}

// Tx is the view of a session handed to Update callbacks. It must not be
// retained after the callback returns.
type Tx struct {
	s *Session
}

// History returns the conversation history.
func (tx *Tx) History() *conversation.History { return tx.s.history }

// Profile returns the current profile.
func (tx *Tx) Profile() domain.AgentProfile { return tx.s.profile }

// State returns the current turn state.
func (tx *Tx) State() State { return tx.s.state }

// SetState moves the session to state.
func (tx *Tx) SetState(state State) { tx.s.state = state }

// Emit sends an event to the owning connection.
func (tx *Tx) Emit(event string, payload any) error {
	return tx.s.out.Emit(event, payload)
}

// BeginStream registers a new in-flight stream and returns a context that is
// cancelled when the stream is abandoned or the session closes.
func (tx *Tx) BeginStream(id string) context.Context {
	if tx.s.stream != nil {
		tx.s.stream.cancel()
	}
	ctx, cancel := context.WithCancel(tx.s.ctx)
	tx.s.stream = &StreamState{ID: id, cancel: cancel}
	return ctx
}

// Stream returns the in-flight stream, or nil.
func (tx *Tx) Stream() *StreamState { return tx.s.stream }

// AppendChunk adds a fragment to the in-flight stream and returns the
// accumulated text.
func (tx *Tx) AppendChunk(frag string) string {
	st := tx.s.stream
	if st == nil {
		return ""
	}
	st.text.WriteString(frag)
	st.chunks++
	return st.text.String()
}

// EndStream releases the in-flight stream.
func (tx *Tx) EndStream() {
	if tx.s.stream != nil {
		tx.s.stream.cancel()
		tx.s.stream = nil
	}
}
