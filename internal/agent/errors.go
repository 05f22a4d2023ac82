package agent

import (
	"errors"
	"fmt"
)

// Client-visible error texts.
const (
	MsgEmpty       = "Message cannot be empty"
	MsgRateLimited = "Too many messages. Please slow down."
	MsgBusy        = "Please wait for the current response to finish."
	MsgFailed      = "Sorry, I encountered an error. Please try again."
)

var (
	// ErrEmptyMessage rejects blank user input before any state changes.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrRateLimited rejects input over the per-connection message budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ProviderError wraps a failure reported by the upstream provider, either
// while opening the stream or mid-stream.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
