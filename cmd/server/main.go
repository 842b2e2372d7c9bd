package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/zviewer/service/config"
	"github.com/brojonat/zviewer/service/db"
	"github.com/brojonat/zviewer/service/explorer"
	"github.com/brojonat/zviewer/service/metrics"
	natspkg "github.com/brojonat/zviewer/service/nats"
	"github.com/brojonat/zviewer/service/privacy"
	"github.com/brojonat/zviewer/service/server"
	"github.com/brojonat/zviewer/service/session"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any config value is invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"explorer_url", cfg.ExplorerURL,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Explorer client and acquisition pipeline
	explorerClient := explorer.NewClient(
		cfg.ExplorerURL,
		&http.Client{Timeout: cfg.ExplorerTimeout},
		cfg.ExplorerRPS,
		m,
		logger,
	)
	acquirer := privacy.NewAcquirer(explorerClient, cfg.ExplorerMaxConcurrency, cfg.LookupTimeout, m, logger)
	logger.Info("initialized explorer client",
		"url", cfg.ExplorerURL,
		"rps", cfg.ExplorerRPS,
		"max_concurrency", cfg.ExplorerMaxConcurrency,
	)

	// Per-browser sessions, swept in the background
	sessions := session.NewRegistry(cfg.SessionTTL, m, logger)
	go sessions.Run(ctx, time.Minute)

	httpServer := server.New(cfg.ServerAddr, cfg, acquirer, sessions, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Lookup history (optional)
	if cfg.HistoryEnabled() {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store := db.NewStore(dbPool, m)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		httpServer.WithHistory(store)
		logger.Info("connected to database, lookup history enabled")
	} else {
		logger.Info("DATABASE_URL not set, lookup history disabled")
	}

	// Score events and SSE streaming (optional)
	if cfg.EventsEnabled() {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		httpServer.WithPublisher(publisher)

		ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create SSE publisher", "error", err)
			os.Exit(1)
		}
		httpServer.WithSSE(ssePublisher)
		logger.Info("connected to NATS, score events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Info("NATS_URL not set, score events disabled")
	}

	logger.Info("server initialized, all dependencies ready")

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
