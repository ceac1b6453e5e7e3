package root

import (
	"context"
	"os"

	"bossweek/internal/cli"
	"bossweek/internal/config"
	"bossweek/internal/log"
)

// loadConfig reads the environment, applies the persistent flags and
// validates the result.
func loadConfig() (*config.Config, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp builds the application for a one-shot command. Logs go to stderr
// so command output stays clean.
func openApp(ctx context.Context, opts cli.BuildOptions) (*cli.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	lvl, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: lvl, Component: log.ComponentApp, Output: os.Stderr})
	log.SetDefault(logger)

	app, err := cli.Build(ctx, cfg, logger, opts)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := app.Close(); err != nil {
			logger.Warn("Close failed", log.FieldError, err)
		}
	}
	return app, cleanup, nil
}
