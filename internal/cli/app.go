package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bossweek/internal/amqp"
	"bossweek/internal/cache"
	"bossweek/internal/config"
	"bossweek/internal/log"
	"bossweek/internal/lookup"
	"bossweek/internal/rollup"
	"bossweek/internal/services"
	"bossweek/internal/sheets/google"
	"bossweek/internal/storage"
)

// App holds the components built from a Config. Optional parts are nil
// when their configuration is absent.
type App struct {
	Config  *config.Config
	Log     *log.Logger
	Ledger  *storage.Ledger
	Engine  *rollup.Engine
	Service *services.LedgerService
	Janitor *cache.Janitor

	Nexon     *lookup.NexonClient
	Refresher *lookup.Refresher
	AMQP      *amqp.Client
	Sheets    *google.Client
}

// BuildOptions selects the optional parts a binary needs.
type BuildOptions struct {
	// Publish routes refresh requests through the broker when AMQP is
	// configured.
	Publish bool
	// Consume connects to the broker even when Publish is false.
	Consume bool
	// Sheets connects the report exporter when a spreadsheet is configured.
	Sheets bool
}

// Build wires the ledger, the rollup engine and the ledger service together
// with whichever of lookup, AMQP and Sheets the configuration enables.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger, opts BuildOptions) (*App, error) {
	ledger, err := OpenLedger(logger, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	app := &App{
		Config:  cfg,
		Log:     logger,
		Ledger:  ledger,
		Engine:  rollup.NewEngine(ledger, cfg.ProjectionPath),
		Janitor: cache.NewJanitor(),
	}
	if err := app.Engine.Open(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}

	svcOpts := []services.Option{
		services.WithAnchor(cfg.WeekAnchor),
		services.WithLogger(logger.WithComponent(log.ComponentLedger).Slog()),
	}

	if cfg.LookupEnabled() {
		app.Nexon = lookup.NewNexonClient(cfg.NexonAPIKey,
			logger.WithComponent(log.ComponentLookup).Slog(),
			lookup.WithBaseURL(cfg.NexonAPIBase),
			lookup.WithTimeout(cfg.LookupTimeout),
		)
		app.Janitor.Register("nexon_ocid", app.Nexon.IDCache())
		app.Refresher = lookup.NewRefresher(app.Nexon, ledger, 3*cfg.LookupTimeout, cfg.LookupConcurrency,
			logger.WithComponent(log.ComponentLookup).Slog())
		svcOpts = append(svcOpts, services.WithRefresher(app.Refresher))
	} else {
		logger.Info("Profile lookup disabled - no NEXON_API_KEY provided")
	}

	if cfg.AMQPEnabled() && (opts.Publish || opts.Consume) {
		app.AMQP, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		if opts.Publish {
			svcOpts = append(svcOpts, services.WithPublisher(app.AMQP))
		}
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	if cfg.SheetsEnabled() && opts.Sheets {
		app.Sheets, err = google.New(ctx, SheetsConfig(cfg), logger.WithComponent(log.ComponentSheets).Slog())
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("init google sheets: %w", err)
		}
		svcOpts = append(svcOpts, services.WithReportWriter(app.Sheets))
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	app.Service = services.NewLedgerService(ledger, app.Engine, svcOpts...)

	// Roll over once per process start, before any command writes.
	if _, err := app.Service.EnsureCurrentWeek(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// SheetsConfig maps the environment configuration onto the Sheets client
// configuration.
func SheetsConfig(cfg *config.Config) google.Config {
	return google.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetBase:          cfg.ReportSheetName,
		Anchor:             cfg.WeekAnchor,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
		OAuthClientFile:    cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
	}
}

// RolloverProcessor builds the background rollover loop for the app.
func (a *App) RolloverProcessor() *services.RolloverProcessor {
	return services.NewRolloverProcessor(a.Service, services.RolloverProcessorConfig{
		Interval:       a.Config.RolloverInterval,
		ExportPrevious: a.Config.ExportOnRollover,
	})
}

// RunJanitor sweeps the registered caches until ctx is done.
func (a *App) RunJanitor(ctx context.Context) {
	a.Janitor.Run(ctx, 5*time.Minute)
}

// Close waits for running refresh jobs and releases the broker and the
// ledger.
func (a *App) Close() error {
	if a.Refresher != nil {
		a.Refresher.Wait()
	}
	var errs []error
	if a.AMQP != nil {
		errs = append(errs, a.AMQP.Close())
	}
	if a.Ledger != nil {
		errs = append(errs, a.Ledger.Close())
	}
	return errors.Join(errs...)
}
