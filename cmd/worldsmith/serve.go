// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/worldsmith/worldsmith/internal/config"
	"github.com/worldsmith/worldsmith/internal/deletion"
	deletionpg "github.com/worldsmith/worldsmith/internal/deletion/postgres"
	entitypg "github.com/worldsmith/worldsmith/internal/entity/postgres"
	"github.com/worldsmith/worldsmith/internal/logging"
	"github.com/worldsmith/worldsmith/internal/observability"
	"github.com/worldsmith/worldsmith/internal/store"
	"github.com/worldsmith/worldsmith/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the delete operation processor",
		Long: `Start the background processor that picks up pending delete
operations and drives cascading soft-deletes to completion, along with
the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flags.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", "", "log format (json or text)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Int("polling-interval-ms", 0, "processor polling interval in milliseconds")
	flags.Int("max-batch-size", 0, "max pending operations fetched per poll")
	flags.Int("workers", 0, "max concurrently running operations")
	flags.Int("max-concurrent-per-user-per-world", 0, "active operations one user may have per world")
	flags.Float64("rate-limit-per-second", 0, "per-entity delete rate during cascades (0 = unlimited)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetDefault("worldsmith", version, cfg.LogFormat, level)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("connected to database")

	entities := entitypg.NewEntityRepository(pool)
	worlds := entitypg.NewWorldRepository(pool)
	operations := deletionpg.NewOperationRepository(pool)

	svc := deletion.NewService(deletion.ServiceConfig{
		Entities:                     entities,
		Worlds:                       worlds,
		Operations:                   operations,
		MaxConcurrentPerUserPerWorld: cfg.Limits.MaxConcurrentPerUserPerWorld,
		Limiter:                      deletion.NewLimiter(cfg.Limits.RateLimitPerSecond),
	})

	processor := deletion.NewProcessor(deletion.ProcessorConfig{
		PollingInterval: cfg.PollingInterval(),
		MaxBatchSize:    cfg.Processor.MaxBatchSize,
		Workers:         cfg.Processor.Workers,
		RetryAfter:      time.Duration(cfg.Processor.RetryAfterSeconds) * time.Second,
	}, operations, svc)

	var ready atomic.Bool

	// Start observability server if configured
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return err
		}
		// Observability failure is fatal: without probes and metrics the
		// deployment cannot tell a wedged processor from a healthy one.
		go func() {
			if serveErr, ok := <-obsErrChan; ok && serveErr != nil {
				errutil.LogError(slog.Default(), "observability server failed", serveErr)
				cancel()
			}
		}()
	}

	processor.Start(ctx)
	ready.Store(true)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	slog.Info("worldsmith ready", "metrics_addr", cfg.MetricsAddr)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	ready.Store(false)
	cancel()
	processor.Stop()

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}
