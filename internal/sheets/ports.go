package sheets

import (
	"context"

	"bossweek/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportWriter exports the aggregates of one week.
	ReportWriter interface {
		WriteWeekReport(ctx context.Context, rep core.WeekReport) error
	}
)
