// Package anthropic streams replies from the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/provider"
)

var _ provider.Provider = (*Provider)(nil)

// defaultMaxTokens is used when the request leaves MaxTokens unset; the
// Messages API requires it.
const defaultMaxTokens = 1024

// Options configure the Anthropic provider.
type Options struct {
	APIKey  string
	BaseURL string
}

// Provider wraps the Anthropic client.
type Provider struct {
	client *anthropic.Client
}

// New creates a provider from options.
func New(opts Options) *Provider {
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "anthropic" }

// OpenStream implements provider.Provider.
func (p *Provider) OpenStream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	system, turns := req.Split()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Messages:    buildMessages(turns),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return &eventStream{stream: stream}, nil
}

func buildMessages(turns []domain.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == domain.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}
	return messages
}

type eventStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *eventStream) Recv() (string, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				return delta.Text, nil
			}
		case anthropic.MessageStopEvent:
			return "", io.EOF
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", fmt.Errorf("anthropic streaming error: %w", err)
	}
	return "", io.EOF
}

func (s *eventStream) Close() error {
	return s.stream.Close()
}
