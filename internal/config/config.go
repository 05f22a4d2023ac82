// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported AI_PROVIDER values.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderEcho      = "echo"
)

const defaultAllowedOrigins = "http://localhost:3000,http://localhost:5173,https://fmaa.vercel.app"

// Config holds all application configuration.
type Config struct {
	Port            string
	AllowedOrigins  []string
	DBPath          string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	AI              AIConfig
	Chat            ChatConfig
	RateLimit       RateLimitConfig
	WebSocket       WebSocketConfig
	Transcript      TranscriptConfig
}

// AIConfig selects and parameterizes text-generation providers.
type AIConfig struct {
	Provider         string
	Model            string
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	GeminiKey        string
	GeminiBaseURL    string
	MaxTokens        int64
	Temperature      float64
	EchoDelay        time.Duration
}

// ChatConfig controls conversation behaviour.
type ChatConfig struct {
	AgentName     string
	AgentPersona  string
	ContextWindow int
	MaxQueued     int
}

// RateLimitConfig bounds messages per connection. An empty RedisURL selects
// the in-memory limiter.
type RateLimitConfig struct {
	Messages int
	Window   time.Duration
	RedisURL string
}

// WebSocketConfig controls the chat transport.
type WebSocketConfig struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OutboundBuffer int
}

// TranscriptConfig controls NDJSON conversation transcripts.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	openAIKey := getEnv("OPENAI_API_KEY", "")
	if openAIKey == "" {
		openAIKey = getEnv("FULLMETAL_API_KEY", "")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "5000"),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", defaultAllowedOrigins),
		DBPath:          getEnv("DB_PATH", "./data/fmaa.db"),
		LogLevel:        parseLevel(getEnv("LOG_LEVEL", "info")),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		AI: AIConfig{
			Provider:         strings.ToLower(getEnv("AI_PROVIDER", ProviderOpenAI)),
			Model:            getEnv("AI_MODEL", "gpt-4o-mini"),
			OpenAIKey:        openAIKey,
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
			GeminiKey:        getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL:    getEnv("GEMINI_BASE_URL", ""),
			MaxTokens:        int64(getEnvInt("AI_MAX_TOKENS", 1000)),
			Temperature:      getEnvFloat("AI_TEMPERATURE", 0.7),
			EchoDelay:        getEnvDuration("ECHO_DELAY", 30*time.Millisecond),
		},
		Chat: ChatConfig{
			AgentName:     getEnv("AGENT_NAME", "FMAA Assistant"),
			AgentPersona:  getEnv("AGENT_PERSONA", "helpful and friendly"),
			ContextWindow: getEnvInt("CONTEXT_WINDOW", 10),
			MaxQueued:     getEnvInt("MAX_QUEUED_MESSAGES", 8),
		},
		RateLimit: RateLimitConfig{
			Messages: getEnvInt("RATE_LIMIT_MESSAGES", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		WebSocket: WebSocketConfig{
			PingInterval:   getEnvDuration("WS_PING_INTERVAL", 30*time.Second),
			WriteTimeout:   getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			OutboundBuffer: getEnvInt("OUTBOUND_BUFFER", 256),
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/logs/conversations"),
			QueueSize: getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("AI_MODEL cannot be empty")
	}
	switch c.AI.Provider {
	case ProviderOpenAI:
		if c.AI.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY (or FULLMETAL_API_KEY) is required when AI_PROVIDER=openai")
		}
	case ProviderAnthropic:
		if c.AI.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER=anthropic")
		}
	case ProviderGemini:
		if c.AI.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	case ProviderEcho:
	default:
		return fmt.Errorf("AI_PROVIDER must be one of openai, anthropic, gemini, echo; got %q", c.AI.Provider)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("AI_MAX_TOKENS must be > 0")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("AI_TEMPERATURE must be between 0 and 2")
	}
	if c.Chat.ContextWindow <= 0 {
		return fmt.Errorf("CONTEXT_WINDOW must be > 0")
	}
	if c.Chat.MaxQueued <= 0 {
		return fmt.Errorf("MAX_QUEUED_MESSAGES must be > 0")
	}
	if c.RateLimit.Messages < 0 {
		return fmt.Errorf("RATE_LIMIT_MESSAGES must be >= 0")
	}
	if c.RateLimit.Messages > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be > 0")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WS_WRITE_TIMEOUT must be > 0")
	}
	if c.WebSocket.OutboundBuffer <= 0 {
		return fmt.Errorf("OUTBOUND_BUFFER must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	return nil
}

// RateLimited reports whether per-connection rate limiting is enabled.
func (c *Config) RateLimited() bool {
	return c.RateLimit.Messages > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
