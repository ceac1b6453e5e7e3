package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bossweek/internal/cli"
	"bossweek/internal/log"
	"bossweek/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info").Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting bossweek-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	app, err := cli.Build(context.Background(), cfg, logger, cli.BuildOptions{Consume: true, Sheets: true})
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Close failed", log.FieldError, err)
		}
	}()

	proc := app.RolloverProcessor()
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := proc.Stop(shutdownCtx); err != nil {
			logger.Error("Rollover processor stop error", log.FieldError, err)
		}
	})

	if err := proc.Start(ctx); err != nil {
		logger.Error("Failed to start rollover processor", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.RunJanitor(gctx)
		return nil
	})

	if app.Refresher != nil {
		refreshWorker := worker.NewRefreshWorker(app.Ledger, app.Refresher, cfg.WorkerRetryPause,
			logger.WithComponent(log.ComponentWorker).Slog())

		// Entities created while the worker was down still lack a profile
		g.Go(func() error {
			results, err := refreshWorker.RefreshIncomplete(gctx)
			if err != nil {
				logger.Error("Startup refresh failed", log.FieldError, err)
				return nil
			}
			logger.Info("Startup refresh finished", "entities", len(results))
			return nil
		})

		g.Go(func() error {
			err := app.AMQP.ConsumeRefreshRequests(gctx, refreshWorker.HandleRefresh)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("Skipping refresh consumption - no NEXON_API_KEY provided")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = proc.Stop(stopCtx)
		cancel()
		_ = app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
