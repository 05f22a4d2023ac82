// Package providertest provides a scripted provider whose streams are driven
// step by step from tests.
package providertest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/fmaa-labs/fmaa-chat/internal/provider"
)

// ErrScripted is the failure injected by Stream.Fail when no error is given.
var ErrScripted = errors.New("scripted provider failure")

// Provider records every request and hands out controllable streams.
type Provider struct {
	mu       sync.Mutex
	requests []provider.Request
	streams  chan *Stream
	openErr  error
}

// New creates a scripted provider.
func New() *Provider {
	return &Provider{streams: make(chan *Stream, 64)}
}

// FailOpen makes subsequent OpenStream calls return err.
func (p *Provider) FailOpen(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openErr = err
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "scripted" }

// OpenStream implements provider.Provider.
func (p *Provider) OpenStream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	p.mu.Lock()
	req.Turns = append(req.Turns[:0:0], req.Turns...)
	p.requests = append(p.requests, req)
	err := p.openErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s := &Stream{
		ctx:    ctx,
		frags:  make(chan string),
		fail:   make(chan error, 1),
		end:    make(chan struct{}),
		closed: make(chan struct{}),
	}
	p.streams <- s
	return s, nil
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Request(nil), p.requests...)
}

// Next waits for the next opened stream.
func (p *Provider) Next(ctx context.Context) (*Stream, error) {
	select {
	case s := <-p.streams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stream is a provider stream fed by the test.
type Stream struct {
	ctx       context.Context
	frags     chan string
	fail      chan error
	end       chan struct{}
	endOnce   sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// Send delivers one fragment and blocks until the consumer has received it.
// It returns false if the stream was closed or cancelled first.
func (s *Stream) Send(frag string) bool {
	select {
	case s.frags <- frag:
		return true
	case <-s.closed:
		return false
	case <-s.ctx.Done():
		return false
	}
}

// Finish ends the stream successfully.
func (s *Stream) Finish() {
	s.endOnce.Do(func() { close(s.end) })
}

// Fail ends the stream with err, or ErrScripted when err is nil.
func (s *Stream) Fail(err error) {
	if err == nil {
		err = ErrScripted
	}
	select {
	case s.fail <- err:
	default:
	}
}

// Done is closed once the consumer closes the stream.
func (s *Stream) Done() <-chan struct{} {
	return s.closed
}

// Context returns the context the stream was opened with.
func (s *Stream) Context() context.Context {
	return s.ctx
}

// Recv implements provider.Stream.
func (s *Stream) Recv() (string, error) {
	select {
	case f := <-s.frags:
		return f, nil
	case err := <-s.fail:
		return "", err
	case <-s.end:
		return "", io.EOF
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	case <-s.closed:
		return "", io.ErrClosedPipe
	}
}

// Close implements provider.Stream.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
