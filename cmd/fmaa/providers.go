package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fmaa-labs/fmaa-chat/internal/config"
	"github.com/fmaa-labs/fmaa-chat/internal/provider"
	"github.com/fmaa-labs/fmaa-chat/internal/provider/anthropic"
	"github.com/fmaa-labs/fmaa-chat/internal/provider/gemini"
	"github.com/fmaa-labs/fmaa-chat/internal/provider/openai"
)

// buildProvider registers every provider with credentials and routes models
// between them. The echo provider is always available.
func buildProvider(ctx context.Context, cfg config.AIConfig) (*provider.Multi, error) {
	byName := map[string]provider.Provider{
		config.ProviderEcho: provider.NewEcho(cfg.EchoDelay),
	}
	if cfg.OpenAIKey != "" {
		byName[config.ProviderOpenAI] = openai.New(openai.Options{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL})
	}
	if cfg.AnthropicKey != "" {
		byName[config.ProviderAnthropic] = anthropic.New(anthropic.Options{APIKey: cfg.AnthropicKey, BaseURL: cfg.AnthropicBaseURL})
	}
	if cfg.GeminiKey != "" {
		p, err := gemini.New(ctx, gemini.Options{APIKey: cfg.GeminiKey, BaseURL: cfg.GeminiBaseURL})
		if err != nil {
			return nil, fmt.Errorf("init gemini provider: %w", err)
		}
		byName[config.ProviderGemini] = p
	}
	if byName[cfg.Provider] == nil {
		return nil, fmt.Errorf("default provider %q is not configured", cfg.Provider)
	}

	m := provider.NewMulti(cfg.Provider, byName, nil)
	slog.Info("Providers configured", "default", cfg.Provider, "available", m.Providers(), "model", cfg.Model)
	return m, nil
}
