package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bossweek/internal/core"
)

// RolloverProcessorConfig holds configuration for the rollover processor
type RolloverProcessorConfig struct {
	// Interval is how often the current week is checked (default: 10m)
	Interval time.Duration

	// ExportPrevious writes the finished week's report after a rollover
	ExportPrevious bool
}

func DefaultRolloverProcessorConfig() RolloverProcessorConfig {
	return RolloverProcessorConfig{
		Interval:       10 * time.Minute,
		ExportPrevious: true,
	}
}

// RolloverProcessor keeps a long-running process on the current week: it
// rolls the ledger over when the weekly reset passes and refreshes the
// projection afterwards.
type RolloverProcessor struct {
	svc    *LedgerService
	config RolloverProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRolloverProcessor(svc *LedgerService, config RolloverProcessorConfig) *RolloverProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultRolloverProcessorConfig().Interval
	}
	return &RolloverProcessor{svc: svc, config: config}
}

// Start begins the check loop. Returns an error if already running.
func (p *RolloverProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("rollover processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Rollover processor started", "component", "rollover", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or ctx to expire.
func (p *RolloverProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Rollover processor stopped gracefully", "component", "rollover")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Rollover processor stop timed out", "component", "rollover")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *RolloverProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RolloverProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *RolloverProcessor) tick(ctx context.Context) {
	if _, err := p.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Rollover failed", "component", "rollover", "error", err)
	}
}

// RunOnce ensures the current week. After an actual rollover the projection
// is rebuilt and, when configured, the finished week is exported.
func (p *RolloverProcessor) RunOnce(ctx context.Context) (core.RolloverResult, error) {
	res, err := p.svc.EnsureCurrentWeek(ctx)
	if err != nil {
		return res, err
	}
	if res.Created == 0 {
		return res, nil
	}

	if _, err := p.svc.Engine().Resync(ctx); err != nil {
		return res, fmt.Errorf("resync after rollover: %w", err)
	}

	if p.config.ExportPrevious && p.svc.reports != nil && res.Previous != "" {
		if _, err := p.svc.ExportReport(ctx, string(res.Previous)); err != nil {
			// The rollover itself succeeded; the export can be retried by hand.
			slog.WarnContext(ctx, "Exporting finished week failed", "component", "rollover",
				"week", res.Previous, "error", err)
		}
	}
	return res, nil
}
