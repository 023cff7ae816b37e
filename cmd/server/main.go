package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/logging"
	"github.com/JonMunkholm/policyimport/internal/store"
	"github.com/JonMunkholm/policyimport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"import_workers", cfg.Import.Workers,
		"max_concurrent_commits", cfg.Import.MaxConcurrentCommits,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	policies, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open policy store", "error", err)
		os.Exit(1)
	}
	defer policies.Close()

	presets, err := core.NewPresetStore(cfg.Import.PresetDir)
	if err != nil {
		slog.Error("failed to open preset directory", "dir", cfg.Import.PresetDir, "error", err)
		os.Exit(1)
	}

	sessions := core.NewSessionManager(core.ManagerOptions{
		Session: core.SessionOptions{MaxRows: cfg.Import.MaxRows},
		Import: core.ImportOptions{
			Workers:       cfg.Import.Workers,
			Limiter:       core.NewCommitLimiter(cfg.Import.MaxConcurrentCommits, cfg.Import.CommitWaitTime),
			CommitTimeout: cfg.Import.CommitTimeout,
		},
		IdleTTL:       cfg.Session.IdleTTL,
		SweepSchedule: cfg.Session.SweepSchedule,
	})
	if err := sessions.Start(); err != nil {
		slog.Error("failed to start session sweeper", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(cfg, sessions, policies, presets)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first, then let running imports finish
		// their in-flight creates.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := sessions.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for commits to complete", "active", status.Active)
		}
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		} else {
			slog.Info("all imports stopped")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
