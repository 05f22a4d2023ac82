package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fmaa-labs/fmaa-chat/internal/agent"
	"github.com/fmaa-labs/fmaa-chat/internal/api"
	"github.com/fmaa-labs/fmaa-chat/internal/config"
	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/gateway"
	"github.com/fmaa-labs/fmaa-chat/internal/metrics"
	"github.com/fmaa-labs/fmaa-chat/internal/middleware"
	"github.com/fmaa-labs/fmaa-chat/internal/ratelimit"
	"github.com/fmaa-labs/fmaa-chat/internal/session"
	"github.com/fmaa-labs/fmaa-chat/internal/store"
	"github.com/fmaa-labs/fmaa-chat/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func serve(ctx context.Context) error {
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "version", version)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	metrics.MustRegister()

	prov, err := buildProvider(ctx, cfg.AI)
	if err != nil {
		slog.Error("Failed to initialize providers", "error", err)
		return err
	}

	limiter, closeLimiter, err := buildLimiter(ctx, cfg.RateLimit)
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err)
		return err
	}
	defer closeLimiter()

	recorder := store.NewMetricsRecorder(repo, logger)
	defer recorder.Close()
	observers := []agent.TurnObserver{metrics.TurnObserver{}, recorder}

	if cfg.Transcript.Enabled {
		transcript, err := agent.NewTranscript(agent.TranscriptConfig{
			Dir:       cfg.Transcript.Dir,
			QueueSize: cfg.Transcript.QueueSize,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize transcript", "error", err)
			return err
		}
		defer func() {
			if closeErr := transcript.Close(); closeErr != nil {
				slog.Warn("Failed to close transcript", "error", closeErr)
			}
		}()
		observers = append(observers, transcript)
		slog.Info("Conversation transcripts enabled", "dir", cfg.Transcript.Dir)
	}

	orch := agent.New(prov, agent.Config{
		Window:      cfg.Chat.ContextWindow,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	},
		agent.WithLimiter(limiter),
		agent.WithObservers(observers...),
		agent.WithLogger(logger),
	)
	registry := session.NewRegistry(orch, cfg.Chat.MaxQueued, logger)

	defaults := domain.AgentProfile{
		DisplayName: cfg.Chat.AgentName,
		Persona:     cfg.Chat.AgentPersona,
		Model:       cfg.AI.Model,
	}
	wsHandler := gateway.NewHandler(registry, orch, gateway.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Defaults:       defaults,
		Agents:         repo,
		PingInterval:   cfg.WebSocket.PingInterval,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		OutboundBuffer: cfg.WebSocket.OutboundBuffer,
		Logger:         logger,
	})
	apiHandler := api.NewHandler(repo, registry, api.Info{
		Name:         defaults.DisplayName,
		Version:      version,
		Persona:      defaults.Persona,
		DefaultModel: defaults.Model,
		Providers:    prov.Providers(),
		Capabilities: []string{"streaming", "conversation_memory", "model_switching", "conversation_reset", "sentiment_analysis", "performance_alerts"},
	}, uuid.NewString)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	apiHandler.RegisterRoutes(r)
	r.Get("/ws", wsHandler.ServeHTTP)
	r.Get("/socket", wsHandler.ServeHTTP)
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/*", web.Handler())

	// Hijacked websocket connections outlive Shutdown; cancelling the base
	// context ends their read loops.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("Server failed", "error", err)
			return err
		}
	}

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	cancelBase()
	registry.CloseAll()
	if shutdownErr != nil {
		slog.Error("Server forced to shutdown", "error", shutdownErr)
		return shutdownErr
	}

	slog.Info("Server stopped successfully")
	return nil
}

// buildLimiter selects the per-connection message limiter.
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, func(), error) {
	if cfg.Messages <= 0 {
		slog.Info("Rate limiting disabled")
		return ratelimit.Nop{}, func() {}, nil
	}
	if cfg.RedisURL != "" {
		rl, err := ratelimit.NewRedis(ctx, cfg.RedisURL, cfg.Messages, cfg.Window)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		slog.Info("Using Redis rate limiter", "limit", cfg.Messages, "window", cfg.Window)
		return rl, func() {
			if err := rl.Close(); err != nil {
				slog.Warn("Failed to close redis limiter", "error", err)
			}
		}, nil
	}
	mem := ratelimit.NewMemory(cfg.Messages, cfg.Window)
	slog.Info("Using in-memory rate limiter", "limit", cfg.Messages, "window", cfg.Window)
	return mem, mem.Stop, nil
}
