// Package gemini streams replies from the Gemini API through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/provider"
)

var _ provider.Provider = (*Provider)(nil)

// Options configure the Gemini provider.
type Options struct {
	APIKey  string
	BaseURL string
}

// Provider wraps the genai client.
type Provider struct {
	client *genai.Client
}

// New creates a provider. The API key is required.
func New(ctx context.Context, opts Options) (*Provider, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: opts.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Provider{client: c}, nil
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "gemini" }

// OpenStream implements provider.Provider.
func (p *Provider) OpenStream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	system, turns := req.Split()
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	seq := p.client.Models.GenerateContentStream(ctx, req.Model, toContents(turns), config)
	next, stop := iter.Pull2(seq)
	return &responseStream{next: next, stop: stop}, nil
}

func toContents(turns []domain.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.RoleUser
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}
	return out
}

type responseStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s *responseStream) Recv() (string, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("gemini streaming error: %w", err)
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *responseStream) Close() error {
	s.stop()
	return nil
}
