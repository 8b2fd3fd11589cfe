// Matchstream feed server — persists matching-job updates and streams them
// to WebSocket subscribers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/matchable/matchstream/pkg/api"
	"github.com/matchable/matchstream/pkg/config"
	"github.com/matchable/matchstream/pkg/feed"
	"github.com/matchable/matchstream/pkg/version"
)

func main() {
	envPath := flag.String("env", ".env", "Path to environment file")
	replayJob := flag.String("replay-job", "", "Publish a simulated matching run for this job id")
	replayDelay := flag.Duration("replay-delay", 500*time.Millisecond, "Delay between simulated events")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting matchstream feed server",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"persistent", cfg.DatabaseURL != "")

	ctx := context.Background()

	// 1. Update store: PostgreSQL when configured, in-memory otherwise.
	var store feed.UpdateStore
	if cfg.DatabaseURL != "" {
		pgStore, err := feed.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := pgStore.Close(); err != nil {
				slog.Error("Error closing database", "error", err)
			}
		}()
		if err := pgStore.Migrate(); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("Connected to PostgreSQL update log")
		store = pgStore
	} else {
		slog.Info("Using in-memory update log")
		store = feed.NewMemoryStore()
	}

	// 2. Streaming infrastructure.
	hub := feed.NewHub(cfg.WriteTimeout)
	publisher := feed.NewUpdatePublisher(store, hub)

	// 3. HTTP server (non-blocking).
	httpServer := api.NewServer(store, hub, cfg.FetchLimit)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 4. Optional simulated run.
	replayCtx, replayCancel := context.WithCancel(ctx)
	defer replayCancel()
	if *replayJob != "" {
		go func() {
			err := feed.Replay(replayCtx, publisher, feed.ReplayConfig{
				JobID: *replayJob,
				Delay: *replayDelay,
			})
			if err != nil && replayCtx.Err() == nil {
				slog.Error("Simulated run failed", "job_id", *replayJob, "error", err)
			}
		}()
	}

	// 5. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 6. Graceful shutdown.
	replayCancel()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
