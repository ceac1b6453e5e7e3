package root

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bossweek/internal/cli"
	apphttp "bossweek/internal/http"
	"bossweek/internal/log"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the weekly rollover loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg.LogLevel)
			logger.Info("Starting bossweek", "version", Version)

			app, err := cli.Build(context.Background(), cfg, logger, cli.BuildOptions{Publish: true, Sheets: true})
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("Close failed", log.FieldError, err)
				}
			}()

			if addr == "" {
				addr = ":" + cfg.Port
			}
			srv, err := apphttp.NewServer(apphttp.Config{
				Addr:             addr,
				RefreshPerMinute: cfg.RefreshRatePerMinute,
				TrustedProxies:   cfg.TrustedProxies,
				AllowedOrigins:   cfg.CORSOrigins,
				MaxImportBytes:   cfg.MaxImportBytes,
			}, app.Service, logger)
			if err != nil {
				return err
			}
			app.Janitor.Register("refresh_limiter", srv.Limiter())

			proc := app.RolloverProcessor()
			ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Server shutdown error", log.FieldError, err)
				}
				if err := proc.Stop(shutdownCtx); err != nil {
					logger.Error("Rollover processor stop error", log.FieldError, err)
				}
			})

			if err := proc.Start(ctx); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				app.RunJanitor(gctx)
				return nil
			})
			g.Go(func() error {
				logger.Info("HTTP server listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				if ctx.Err() != nil {
					cli.WaitForShutdown(ctx, done)
				}
				return nil
			})

			if err := g.Wait(); err != nil {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = proc.Stop(stopCtx)
				return err
			}
			logger.Info("Server stopped gracefully")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :$PORT)")
	return cmd
}
