package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/contextgate/contextgate/internal/config"
	"github.com/contextgate/contextgate/internal/pipeline"
	"github.com/contextgate/contextgate/internal/policy/guardrails"
	"github.com/contextgate/contextgate/internal/policy/rules"
	"github.com/contextgate/contextgate/internal/policy/schema"
	"github.com/contextgate/contextgate/internal/server"
	"github.com/contextgate/contextgate/internal/storage"
	"github.com/contextgate/contextgate/internal/storage/memory"
	"github.com/contextgate/contextgate/internal/storage/sqlite"
	"github.com/contextgate/contextgate/internal/telemetry"
	"github.com/contextgate/contextgate/internal/transform"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdown, err := telemetry.InitTracer("contextgate", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Pipeline options are swapped atomically so config reloads apply to
	// in-flight traffic without a restart.
	var opts atomic.Pointer[pipeline.Options]
	opts.Store(&pipeline.Options{EnableAI: cfg.Pipeline.EnableAI, Strict: cfg.Pipeline.Strict})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
		opts.Store(&pipeline.Options{EnableAI: next.Pipeline.EnableAI, Strict: next.Pipeline.Strict})
		logger.Info("pipeline options reloaded",
			slog.Bool("enable_ai", next.Pipeline.EnableAI),
			slog.Bool("strict", next.Pipeline.Strict),
		)
	}); err != nil {
		logger.Warn("config watch disabled", slog.String("error", err.Error()))
	}

	guard, err := guardrails.NewModule(guardrails.Config{
		MaxTextLen:    cfg.Guardrails.MaxTextLen,
		MaxListItems:  cfg.Guardrails.MaxListItems,
		MaxTokens:     cfg.Guardrails.MaxTokens,
		BannedWords:   cfg.Guardrails.BannedWords,
		BannedPhrases: cfg.Guardrails.BannedPhrases,
	})
	if err != nil {
		log.Fatalf("Failed to build guardrails: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	runner := pipeline.NewRunner(pipeline.Config{
		Schema: schema.NewModule(schema.Config{
			RequiredFields: cfg.Schema.RequiredFields,
			AllowedRoles:   cfg.Schema.AllowedRoles,
			AllowedActions: cfg.Schema.AllowedActions,
		}),
		Rules: rules.NewModule(rules.Config{
			AllowedRoles: cfg.Rules.AllowedRoles,
			RoleActions:  cfg.Rules.RoleActions,
		}),
		Guardrails: guard,
		Observer:   metrics,
	})

	transformFn := buildTransform(cfg.Transform, logger)
	store := buildStore(cfg.Storage, logger)
	if store != nil {
		defer store.Close()
	}

	if store != nil && cfg.Storage.Retention.Enabled {
		sweeper, err := storage.NewSweeper(store, cfg.Storage.Retention.MaxAge, cfg.Storage.Retention.Schedule, logger)
		if err != nil {
			log.Fatalf("Failed to build retention sweeper: %v", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	var limiter *server.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = server.NewRateLimiter(cfg.Server.RateLimit.RedisAddr, cfg.Server.RateLimit.PerSecond, logger)
		defer limiter.Close()
	}

	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout, logger, limiter)
	handler := server.NewHandler(server.HandlerConfig{
		Runner:    runner,
		Transform: transformFn,
		Store:     store,
		Options:   func() pipeline.Options { return *opts.Load() },
		Logger:    logger,
	})
	handler.Register(srv.Router, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func buildTransform(cfg config.TransformConfig, logger *slog.Logger) pipeline.TransformFunc {
	switch cfg.Type {
	case "webhook":
		logger.Info("ai transform configured", slog.String("type", "webhook"), slog.String("url", cfg.URL))
		w := transform.NewWebhook(transform.WebhookConfig{
			URL:     cfg.URL,
			Timeout: cfg.Timeout,
			Retries: cfg.Retries,
			Headers: cfg.Headers,
		})
		return w.Func()
	case "none":
		return nil
	default:
		return transform.Echo()
	}
}

func buildStore(cfg config.StorageConfig, logger *slog.Logger) storage.RunStore {
	switch cfg.Type {
	case "sqlite":
		st, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			log.Fatalf("Failed to open sqlite store: %v", err)
		}
		logger.Info("run storage enabled", slog.String("type", "sqlite"), slog.String("path", cfg.SQLite.Path))
		return st
	case "none":
		return nil
	default:
		logger.Info("run storage enabled", slog.String("type", "memory"))
		return memory.New()
	}
}
