package provider

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// Echo is an offline provider that streams back the latest user turn word by
// word. It backs local development and the end-to-end tests.
type Echo struct {
	// Delay is slept between fragments. Zero streams without pauses.
	Delay time.Duration
}

// NewEcho creates an echo provider.
func NewEcho(delay time.Duration) *Echo {
	return &Echo{Delay: delay}
}

// Name implements Provider.
func (e *Echo) Name() string { return "echo" }

// OpenStream implements Provider.
func (e *Echo) OpenStream(ctx context.Context, req Request) (Stream, error) {
	var last string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == domain.RoleUser {
			last = req.Turns[i].Content
			break
		}
	}
	reply := "You said: " + last
	return &wordStream{
		ctx:   ctx,
		words: splitKeepSpace(reply),
		delay: e.Delay,
		done:  make(chan struct{}),
	}, nil
}

type wordStream struct {
	ctx   context.Context
	words []string
	delay time.Duration
	pos   int
	once  sync.Once
	done  chan struct{}
}

func (s *wordStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-s.done:
		return "", io.ErrClosedPipe
	default:
	}
	if s.pos >= len(s.words) {
		return "", io.EOF
	}
	if s.delay > 0 && s.pos > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return "", s.ctx.Err()
		case <-s.done:
			t.Stop()
			return "", io.ErrClosedPipe
		case <-t.C:
		}
	}
	w := s.words[s.pos]
	s.pos++
	return w, nil
}

func (s *wordStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// splitKeepSpace splits text into words, keeping the separating space on the
// following word so the fragments concatenate back to the input.
func splitKeepSpace(text string) []string {
	fields := strings.SplitAfter(text, " ")
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
