package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sparlabs/rostrum/internal/api"
	"github.com/sparlabs/rostrum/internal/config"
	"github.com/sparlabs/rostrum/internal/events"
	"github.com/sparlabs/rostrum/internal/orchestrator"
	"github.com/sparlabs/rostrum/internal/prompt"
	"github.com/sparlabs/rostrum/internal/provider"
	"github.com/sparlabs/rostrum/internal/store"
	"github.com/sparlabs/rostrum/internal/summary"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("rostrum starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database. Without DATABASE_URL the service runs on the in-memory store,
	// which is fine for local trials and nothing else.
	var st orchestrator.Store
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		st = db
		slog.Info("database connected")
	} else {
		st = store.NewMemory()
		slog.Warn("DATABASE_URL not set — using in-memory store, debates will not survive a restart")
	}

	// Generation backends. Clients are built once here and injected; a
	// missing key simply leaves that backend unavailable.
	var openai, gemini provider.Client
	if cfg.OpenAIAPIKey != "" {
		openai = provider.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		slog.Info("openai client ready", "model", cfg.OpenAIModel)
	}
	if cfg.GoogleAPIKey != "" {
		gemini = provider.NewGeminiClient(cfg.GoogleAPIKey, cfg.GeminiModel)
		slog.Info("gemini client ready", "model", cfg.GeminiModel)
	}
	registry := provider.NewRegistry(openai, gemini)
	if len(registry.Backends()) == 0 {
		slog.Warn("no generation backends configured — debate creation will fail")
	}

	compiler := prompt.New(summary.Options{
		Threshold:       cfg.SummaryThreshold,
		Head:            cfg.SummaryHead,
		Tail:            cfg.SummaryTail,
		MaxKeyArguments: cfg.MaxKeyArguments,
	})

	// NATS (optional — rostrum works without a bus, just no events).
	var bus *events.Client
	if cfg.NatsURL != "" {
		var err error
		bus, err = events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — running without lifecycle events")
	}

	var publisher orchestrator.Publisher
	if bus != nil {
		publisher = bus
	}
	orch := orchestrator.New(st, registry, compiler, publisher, slog.Default(), cfg.Temperature, cfg.MaxTokens)

	// Rounds can also be requested over the bus.
	if bus != nil {
		if err := bus.Subscribe(orchestrator.SubjectRoundRequested, orch.HandleRoundRequested); err != nil {
			slog.Error("failed to subscribe to round requests", "error", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg.Port, orch, registry, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("rostrum ready", "port", cfg.Port, "backends", registry.Backends())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("rostrum stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
