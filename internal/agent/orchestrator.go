// Package agent drives chat turns: it validates user input, builds provider
// requests from the session's history and relays the streamed reply to the
// client as protocol events.
package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fmaa-labs/fmaa-chat/internal/conversation"
	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/protocol"
	"github.com/fmaa-labs/fmaa-chat/internal/provider"
	"github.com/fmaa-labs/fmaa-chat/internal/ratelimit"
	"github.com/fmaa-labs/fmaa-chat/internal/session"
)

var _ session.TurnRunner = (*Orchestrator)(nil)

// Config holds generation parameters applied to every request.
type Config struct {
	Window      int
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns the generation defaults.
func DefaultConfig() Config {
	return Config{
		Window:      conversation.DefaultWindow,
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLimiter throttles send_message per connection.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithObservers registers turn observers.
func WithObservers(obs ...TurnObserver) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides message and stream id generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// Orchestrator runs the turn state machine for every session.
type Orchestrator struct {
	provider  provider.Provider
	cfg       Config
	limiter   ratelimit.Limiter
	observers []TurnObserver
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates an orchestrator streaming from p.
func New(p provider.Provider, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Window <= 0 {
		cfg.Window = conversation.DefaultWindow
	}
	o := &Orchestrator{
		provider: p,
		cfg:      cfg,
		limiter:  ratelimit.Nop{},
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleMessage validates a send_message event and schedules the turn.
// Rejections are reported to the client as message_error and returned.
func (o *Orchestrator) HandleMessage(ctx context.Context, s *session.Session, text string, ts int64) error {
	if strings.TrimSpace(text) == "" {
		o.reject(s, MsgEmpty)
		return ErrEmptyMessage
	}

	allowed, err := o.limiter.Allow(ctx, s.ID())
	if err != nil {
		o.logger.Warn("Rate limiter unavailable, allowing message", "conn_id", s.ID(), "error", err)
		allowed = true
	}
	if !allowed {
		o.logger.Info("Message rate limited", "conn_id", s.ID())
		o.reject(s, MsgRateLimited)
		return ErrRateLimited
	}

	if ts == 0 {
		ts = o.now().UnixMilli()
	}
	err = s.Enqueue(session.Job{ID: o.newID(), Text: text, Timestamp: ts})
	if errors.Is(err, session.ErrSessionBusy) {
		o.logger.Info("Message rejected, queue full", "conn_id", s.ID())
		o.reject(s, MsgBusy)
	}
	return err
}

func (o *Orchestrator) reject(s *session.Session, msg string) {
	_ = s.Update(func(tx *session.Tx) error {
		o.emit(tx, protocol.EventMessageError, protocol.MessageError{Error: msg, Timestamp: o.now().UnixMilli()})
		return nil
	})
}

// turn carries the bookkeeping of one RunTurn call.
type turn struct {
	session  *session.Session
	job      session.Job
	streamID string
	model    string
	agent    string
	started  time.Time
	first    time.Duration
	chunks   int
}

// RunTurn implements session.TurnRunner.
func (o *Orchestrator) RunTurn(s *session.Session, job session.Job) {
	t := &turn{session: s, job: job, streamID: o.newID(), started: o.now()}
	log := o.logger.With("conn_id", s.ID(), "stream_id", t.streamID)

	var (
		req       provider.Request
		streamCtx context.Context
	)
	err := s.Begin(job, func(tx *session.Tx) error {
		tx.History().Append(domain.NewTurn(domain.RoleUser, job.Text))
		o.emit(tx, protocol.EventMessageReceived, protocol.MessageReceived{
			ID:        job.ID,
			Text:      job.Text,
			Sender:    protocol.SenderUser,
			Timestamp: job.Timestamp,
		})

		profile := tx.Profile()
		t.model = profile.Model
		t.agent = profile.DisplayName
		turns := append([]domain.Turn{profile.SystemTurn()}, tx.History().Windowed(o.cfg.Window)...)
		req = provider.Request{
			Model:       profile.Model,
			Turns:       turns,
			MaxTokens:   o.cfg.MaxTokens,
			Temperature: o.cfg.Temperature,
		}

		streamCtx = tx.BeginStream(t.streamID)
		tx.SetState(session.StateDispatched)
		o.emit(tx, protocol.EventAgentTyping, protocol.AgentTyping{IsTyping: true})
		o.emit(tx, protocol.EventMessageStart, protocol.MessageStart{
			ID:        t.streamID,
			Sender:    protocol.SenderAgent,
			Timestamp: o.now().UnixMilli(),
		})
		return nil
	})
	if err != nil {
		log.Debug("Turn skipped", "error", err)
		return
	}
	log = log.With("model", t.model)
	log.Info("Turn dispatched", "history_turns", len(req.Turns)-1)

	stream, err := o.provider.OpenStream(streamCtx, req)
	if err != nil {
		o.fail(t, &ProviderError{Provider: o.providerName(t.model), Model: t.model, Err: err}, log)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug("Provider stream close failed", "error", err)
		}
	}()

	err = s.UpdateStream(t.streamID, func(tx *session.Tx) error {
		tx.SetState(session.StateStreaming)
		return nil
	})
	if err != nil {
		o.abandon(t, err, log)
		return
	}

	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			o.complete(t, log)
			return
		}
		if err != nil {
			if streamCtx.Err() != nil {
				o.abandon(t, streamCtx.Err(), log)
				return
			}
			o.fail(t, &ProviderError{Provider: o.providerName(t.model), Model: t.model, Err: err}, log)
			return
		}
		if frag == "" {
			continue
		}
		if t.chunks == 0 {
			t.first = o.now().Sub(t.started)
		}
		t.chunks++
		err = s.UpdateStream(t.streamID, func(tx *session.Tx) error {
			full := tx.AppendChunk(frag)
			o.emit(tx, protocol.EventMessageChunk, protocol.MessageChunk{ID: t.streamID, Chunk: frag, FullText: full})
			return nil
		})
		if err != nil {
			o.abandon(t, err, log)
			return
		}
	}
}

func (o *Orchestrator) complete(t *turn, log *slog.Logger) {
	var reply string
	err := t.session.UpdateStream(t.streamID, func(tx *session.Tx) error {
		reply = tx.Stream().Text()
		o.emit(tx, protocol.EventMessageComplete, protocol.MessageComplete{
			ID:        t.streamID,
			Text:      reply,
			Sender:    protocol.SenderAgent,
			Timestamp: o.now().UnixMilli(),
		})
		tx.History().Append(domain.NewTurn(domain.RoleAssistant, reply))
		o.emit(tx, protocol.EventAgentTyping, protocol.AgentTyping{IsTyping: false})
		tx.SetState(session.StateCompleted)
		tx.EndStream()
		tx.SetState(session.StateIdle)
		return nil
	})
	if err != nil {
		o.abandon(t, err, log)
		return
	}
	log.Info("Turn completed", "chunks", t.chunks, "chars", len(reply), "latency_ms", o.now().Sub(t.started).Milliseconds())
	o.report(t, OutcomeCompleted, reply, nil)
}

func (o *Orchestrator) fail(t *turn, cause error, log *slog.Logger) {
	log.Error("Turn failed", "error", cause)
	err := t.session.UpdateStream(t.streamID, func(tx *session.Tx) error {
		tx.SetState(session.StateFailed)
		o.emit(tx, protocol.EventMessageError, protocol.MessageError{Error: MsgFailed, Timestamp: o.now().UnixMilli()})
		o.emit(tx, protocol.EventAgentTyping, protocol.AgentTyping{IsTyping: false})
		tx.EndStream()
		tx.SetState(session.StateIdle)
		return nil
	})
	if err != nil {
		o.abandon(t, err, log)
		return
	}
	o.report(t, OutcomeFailed, "", cause)
}

// abandon records a turn whose stream was superseded by a reset or whose
// session closed. Nothing is emitted.
func (o *Orchestrator) abandon(t *turn, cause error, log *slog.Logger) {
	log.Info("Turn abandoned", "reason", cause)
	o.report(t, OutcomeAbandoned, "", cause)
}

func (o *Orchestrator) report(t *turn, outcome Outcome, reply string, cause error) {
	if len(o.observers) == 0 {
		return
	}
	r := TurnReport{
		ConnID:     t.session.ID(),
		StreamID:   t.streamID,
		Agent:      t.agent,
		Model:      t.model,
		Provider:   o.providerName(t.model),
		Outcome:    outcome,
		UserText:   t.job.Text,
		Reply:      reply,
		Err:        cause,
		StartedAt:  t.started,
		Latency:    o.now().Sub(t.started),
		FirstChunk: t.first,
		Chunks:     t.chunks,
	}
	ctx := context.WithoutCancel(t.session.Context())
	for _, obs := range o.observers {
		obs.ObserveTurn(ctx, r)
	}
}

func (o *Orchestrator) providerName(model string) string {
	if r, ok := o.provider.(interface{ ProviderFor(string) string }); ok {
		if name := r.ProviderFor(model); name != "" {
			return name
		}
	}
	return o.provider.Name()
}

func (o *Orchestrator) emit(tx *session.Tx, event string, payload any) {
	if err := tx.Emit(event, payload); err != nil {
		o.logger.Debug("Emit failed", "event", event, "error", err)
	}
}
