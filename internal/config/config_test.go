package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AI_PROVIDER", "echo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "5000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 3 || cfg.AllowedOrigins[2] != "https://fmaa.vercel.app" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.AI.Model != "gpt-4o-mini" || cfg.AI.MaxTokens != 1000 || cfg.AI.Temperature != 0.7 {
		t.Errorf("unexpected AI defaults: %+v", cfg.AI)
	}
	if cfg.Chat.ContextWindow != 10 || cfg.Chat.MaxQueued != 8 {
		t.Errorf("unexpected chat defaults: %+v", cfg.Chat)
	}
	if cfg.WebSocket.PingInterval != 30*time.Second || cfg.WebSocket.OutboundBuffer != 256 {
		t.Errorf("unexpected websocket defaults: %+v", cfg.WebSocket)
	}
	if !cfg.RateLimited() || cfg.RateLimit.Window != time.Minute {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", "OpenAI")
	t.Setenv("FULLMETAL_API_KEY", "fm-key")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("AI_TEMPERATURE", "0.2")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("RATE_LIMIT_MESSAGES", "0")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CONTEXT_WINDOW", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AI.Provider != ProviderOpenAI || cfg.AI.OpenAIKey != "fm-key" {
		t.Errorf("unexpected AI config: %+v", cfg.AI)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.AI.Temperature != 0.2 || cfg.WebSocket.PingInterval != 5*time.Second {
		t.Errorf("overrides not applied: %+v %+v", cfg.AI, cfg.WebSocket)
	}
	if cfg.RateLimited() {
		t.Error("rate limiting should be disabled")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Chat.ContextWindow != 10 {
		t.Errorf("invalid CONTEXT_WINDOW should fall back, got %d", cfg.Chat.ContextWindow)
	}
}

func TestLoad_MissingKey(t *testing.T) {
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:   "5000",
			DBPath: "x.db",
			AI:     AIConfig{Provider: ProviderEcho, Model: "m", MaxTokens: 1, Temperature: 0.7},
			Chat:   ChatConfig{ContextWindow: 10, MaxQueued: 8},
			RateLimit: RateLimitConfig{
				Messages: 20,
				Window:   time.Minute,
			},
			WebSocket:  WebSocketConfig{PingInterval: time.Second, WriteTimeout: time.Second, OutboundBuffer: 1},
			Transcript: TranscriptConfig{QueueSize: 1},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(c *Config){
		"PORT":                func(c *Config) { c.Port = "" },
		"AI_PROVIDER":         func(c *Config) { c.AI.Provider = "llama" },
		"AI_TEMPERATURE":      func(c *Config) { c.AI.Temperature = 3 },
		"CONTEXT_WINDOW":      func(c *Config) { c.Chat.ContextWindow = 0 },
		"MAX_QUEUED_MESSAGES": func(c *Config) { c.Chat.MaxQueued = 0 },
		"RATE_LIMIT_WINDOW":   func(c *Config) { c.RateLimit.Window = 0 },
		"OUTBOUND_BUFFER":     func(c *Config) { c.WebSocket.OutboundBuffer = 0 },
		"TRANSCRIPT_DIR":      func(c *Config) { c.Transcript.Enabled = true },
	}
	for key, mutate := range cases {
		c := base()
		mutate(c)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Errorf("%s: expected error mentioning key, got %v", key, err)
		}
	}
}
