// Package openai streams chat completions from the OpenAI Chat Completions
// API, or any endpoint compatible with it.
package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/provider"
)

var _ provider.Provider = (*Provider)(nil)

// Options configure the OpenAI provider.
type Options struct {
	APIKey  string
	BaseURL string
}

// Provider wraps the OpenAI client.
type Provider struct {
	client *openai.Client
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
	client := openai.NewClient(clientOpts...)
	return &Provider{client: &client}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "openai" }

// OpenStream implements provider.Provider.
func (p *Provider) OpenStream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: buildMessages(req.Turns),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	params.Temperature = openai.Float(req.Temperature)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return &chunkStream{stream: stream}, nil
}

func buildMessages(turns []domain.Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	return messages
}

type chunkStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *chunkStream) Recv() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		var text string
		for _, ch := range chunk.Choices {
			text += ch.Delta.Content
		}
		if text != "" {
			return text, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", fmt.Errorf("openai streaming error: %w", err)
	}
	return "", io.EOF
}

func (s *chunkStream) Close() error {
	return s.stream.Close()
}
