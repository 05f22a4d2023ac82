// Package provider abstracts the upstream language-model services that
// generate assistant replies as streams of text fragments.
package provider

import (
	"context"
	"errors"
	"io"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// ErrNoProvider is returned when a model cannot be routed to any configured provider.
var ErrNoProvider = errors.New("no provider configured for model")

// Request is one streaming completion request. Turns starts with the system
// turn followed by the windowed conversation history.
type Request struct {
	Model       string
	Turns       []domain.Turn
	MaxTokens   int64
	Temperature float64
}

// Stream yields text fragments in order. Recv returns io.EOF once the
// provider signals completion. Close releases the underlying connection and
// is safe to call more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens streaming completions. Cancelling ctx aborts the stream.
type Provider interface {
	Name() string
	OpenStream(ctx context.Context, req Request) (Stream, error)
}

// Split separates the leading system turn from the rest of the request, as
// required by providers that take the system prompt out of band.
func (r Request) Split() (system string, turns []domain.Turn) {
	for _, t := range r.Turns {
		if t.Role == domain.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += t.Content
			continue
		}
		turns = append(turns, t)
	}
	return system, turns
}

// Collect drains a stream and returns the concatenated text.
func Collect(s Stream) (string, error) {
	var out []byte
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
}
