package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/protocol"
)

type event struct {
	name    string
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Emit(name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name, payload})
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

// blockingRunner records the jobs it runs and holds each one until released.
type blockingRunner struct {
	mu      sync.Mutex
	ran     []string
	running int32
	overlap atomic.Bool
	started chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingRunner) RunTurn(s *Session, job Job) {
	if atomic.AddInt32(&b.running, 1) > 1 {
		b.overlap.Store(true)
	}
	defer atomic.AddInt32(&b.running, -1)

	_ = s.Begin(job, func(tx *Tx) error { return nil })
	b.mu.Lock()
	b.ran = append(b.ran, job.Text)
	b.mu.Unlock()
	b.started <- job.Text
	<-b.release
}

func (b *blockingRunner) jobs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ran...)
}

func waitStarted(t *testing.T, b *blockingRunner, want string) {
	t.Helper()
	select {
	case got := <-b.started:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("job %q never started", want)
	}
}

func TestSession_JobsRunInOrderWithoutOverlap(t *testing.T) {
	runner := newBlockingRunner()
	s := New("conn_1", domain.DefaultProfile(), &recorder{}, runner, Options{MaxQueued: 4})

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, s.Enqueue(Job{ID: text, Text: text}))
	}

	for _, text := range []string{"a", "b", "c"} {
		waitStarted(t, runner, text)
		runner.release <- struct{}{}
	}

	require.Eventually(t, func() bool { return len(runner.jobs()) == 3 && s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"a", "b", "c"}, runner.jobs())
	require.False(t, runner.overlap.Load())
}

func TestSession_EnqueueBusy(t *testing.T) {
	runner := newBlockingRunner()
	s := New("conn_1", domain.DefaultProfile(), &recorder{}, runner, Options{MaxQueued: 2})

	require.NoError(t, s.Enqueue(Job{Text: "running"}))
	waitStarted(t, runner, "running")

	require.NoError(t, s.Enqueue(Job{Text: "q1"}))
	require.NoError(t, s.Enqueue(Job{Text: "q2"}))
	require.ErrorIs(t, s.Enqueue(Job{Text: "q3"}), ErrSessionBusy)
	require.Equal(t, 2, s.Pending())

	close(runner.release)
}

func TestSession_ResetDropsQueueAndRestoresProfile(t *testing.T) {
	runner := newBlockingRunner()
	out := &recorder{}
	initial := domain.AgentProfile{DisplayName: "Ava", Persona: "curious", Model: "gpt-4o-mini"}
	s := New("conn_1", initial, out, runner, Options{})

	s.History().Append(domain.NewTurn(domain.RoleUser, "hi"))
	require.NoError(t, s.SwitchModel("claude-3-5-haiku-latest"))
	require.Equal(t, "claude-3-5-haiku-latest", s.Profile().Model)

	require.NoError(t, s.Enqueue(Job{Text: "running"}))
	waitStarted(t, runner, "running")
	require.NoError(t, s.Enqueue(Job{Text: "q1"}))
	require.NoError(t, s.Enqueue(Job{Text: "q2"}))

	require.NoError(t, s.Reset())

	require.Equal(t, 0, s.History().Len())
	require.Equal(t, initial, s.Profile())
	require.Equal(t, StateIdle, s.State())
	require.Equal(t, 0, s.Pending())
	require.Equal(t, []string{
		protocol.EventModelSwitched,
		protocol.EventMessageError,
		protocol.EventMessageError,
		protocol.EventConversationReset,
	}, out.names())

	close(runner.release)
	require.Eventually(t, func() bool { return !s.isWorking() }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"running"}, runner.jobs())
}

func TestSession_ResetAbandonsStream(t *testing.T) {
	s := New("conn_1", domain.DefaultProfile(), &recorder{}, nil, Options{})

	var streamCtx context.Context
	require.NoError(t, s.Update(func(tx *Tx) error {
		streamCtx = tx.BeginStream("stream-1")
		tx.SetState(StateStreaming)
		require.Equal(t, "ab", func() string { tx.AppendChunk("a"); return tx.AppendChunk("b") }())
		return nil
	}))
	id, ok := s.Streaming()
	require.True(t, ok)
	require.Equal(t, "stream-1", id)

	require.NoError(t, s.Reset())
	require.ErrorIs(t, streamCtx.Err(), context.Canceled)

	err := s.UpdateStream("stream-1", func(tx *Tx) error { return nil })
	require.ErrorIs(t, err, ErrStreamAbandoned)
	_, ok = s.Streaming()
	require.False(t, ok)
}

func TestSession_BeginRejectsJobsFromBeforeReset(t *testing.T) {
	s := New("conn_1", domain.DefaultProfile(), &recorder{}, nil, Options{})
	stale := Job{Text: "old", epoch: s.epoch}
	require.NoError(t, s.Reset())

	called := false
	err := s.Begin(stale, func(tx *Tx) error { called = true; return nil })
	require.ErrorIs(t, err, ErrStreamAbandoned)
	require.False(t, called)

	fresh := Job{Text: "new", epoch: s.epoch}
	require.NoError(t, s.Begin(fresh, func(tx *Tx) error { called = true; return nil }))
	require.True(t, called)
}

func TestSession_CloseRejectsUpdates(t *testing.T) {
	s := New("conn_1", domain.DefaultProfile(), &recorder{}, nil, Options{})

	var streamCtx context.Context
	require.NoError(t, s.Update(func(tx *Tx) error {
		streamCtx = tx.BeginStream("stream-1")
		return nil
	}))

	s.Close()
	s.Close()

	require.True(t, s.Closed())
	require.ErrorIs(t, streamCtx.Err(), context.Canceled)
	require.ErrorIs(t, s.Context().Err(), context.Canceled)
	require.ErrorIs(t, s.Update(func(tx *Tx) error { return nil }), ErrSessionClosed)
	require.ErrorIs(t, s.UpdateStream("stream-1", func(tx *Tx) error { return nil }), ErrSessionClosed)
	require.ErrorIs(t, s.Enqueue(Job{Text: "late"}), ErrSessionClosed)
	require.ErrorIs(t, s.SwitchModel("gpt-4"), ErrSessionClosed)
	require.ErrorIs(t, s.Reset(), ErrSessionClosed)
}

func TestSession_UpdatePropagatesError(t *testing.T) {
	s := New("conn_1", domain.DefaultProfile(), &recorder{}, nil, Options{})
	boom := errors.New("boom")
	require.ErrorIs(t, s.Update(func(tx *Tx) error { return boom }), boom)
}

type panicRunner struct{}

func (panicRunner) RunTurn(s *Session, job Job) {
	_ = s.Update(func(tx *Tx) error {
		tx.BeginStream("stream-p")
		tx.SetState(StateStreaming)
		return nil
	})
	panic("provider exploded")
}

func TestSession_RecoversFromPanickingTurn(t *testing.T) {
	s := New("conn_1", domain.DefaultProfile(), &recorder{}, panicRunner{}, Options{})
	require.NoError(t, s.Enqueue(Job{Text: "x"}))

	require.Eventually(t, func() bool { return !s.isWorking() }, time.Second, 5*time.Millisecond)
	require.Equal(t, StateIdle, s.State())
	_, ok := s.Streaming()
	require.False(t, ok)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "streaming", StateStreaming.String())
	require.Equal(t, "state(42)", State(42).String())
}

func (s *Session) isWorking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}
