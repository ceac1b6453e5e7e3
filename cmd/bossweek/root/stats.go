package root

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bossweek/internal/cli"
)

func newStatsCmd() *cobra.Command {
	var (
		week   string
		weeks  bool
		series string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show earnings for a week, per week, or for one character over time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			switch {
			case weeks:
				totals, err := app.Engine.WeeklyTotals(ctx)
				if err != nil {
					return err
				}
				for _, t := range totals {
					fmt.Fprintf(out, "%s  %s\n", t.Week, meso(t.Total))
				}
				grand, err := app.Engine.GrandTotal(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, labelValue("Total", meso(grand)))
			case series != "":
				points, err := app.Engine.EntitySeries(ctx, series)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, Title.Render(series))
				for _, p := range points {
					fmt.Fprintf(out, "%s  %s\n", p.Week, meso(p.Total))
				}
			default:
				rep, err := app.Service.Report(ctx, week)
				if err != nil {
					return err
				}
				printReport(out, rep)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&week, "week", "w", "", "Week key (default: current)")
	cmd.Flags().BoolVar(&weeks, "weeks", false, "Show the total of every week")
	cmd.Flags().StringVar(&series, "series", "", "Show one character's total per week")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the ledger revision, row counts and projection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := app.Service.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, labelValue("Current week", st.Week))
			fmt.Fprintln(out, labelValue("Revision", st.Revision))
			fmt.Fprintln(out, labelValue("Characters", st.Counts.Entities))
			fmt.Fprintln(out, labelValue("Bosses", st.Counts.Tasks))
			fmt.Fprintln(out, labelValue("Price changes", st.Counts.History))
			fmt.Fprintln(out, labelValue("Records", st.Counts.Records))
			if st.Projection == nil {
				fmt.Fprintln(out, labelValue("Projection", Muted.Render("not built")))
				return nil
			}
			state := Good.Render("fresh")
			if st.Projection.Revision != st.Revision {
				state = Bad.Render("stale")
			}
			fmt.Fprintln(out, labelValue("Projection", fmt.Sprintf("%s at revision %d, %s",
				state, st.Projection.Revision, st.Projection.SyncedAt.Format(time.DateTime))))
			return nil
		},
	}
}

func newResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Rebuild the statistics projection from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			m, err := app.Engine.Resync(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "projection rebuilt at revision %d\n", m.Revision)
			return nil
		},
	}
}
