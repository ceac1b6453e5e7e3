package root

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"bossweek/internal/cli"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a legacy JSON export (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := app.Service.Import(ctx, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, Title.Render("Imported"))
			fmt.Fprintln(out, labelValue("Bosses", rep.Applied.Tasks))
			fmt.Fprintln(out, labelValue("Characters", rep.Applied.Entities))
			fmt.Fprintln(out, labelValue("Records", rep.Applied.Records))
			fmt.Fprintln(out, labelValue("Price changes", rep.Applied.PriceChanges))

			categories := make([]string, 0, len(rep.Skipped))
			for c := range rep.Skipped {
				categories = append(categories, c)
			}
			sort.Strings(categories)
			for _, c := range categories {
				fmt.Fprintln(out, labelValue("Skipped "+c, Bad.Render(fmt.Sprint(rep.Skipped[c]))))
			}
			for _, p := range rep.Problems {
				fmt.Fprintln(out, Muted.Render("  "+p))
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var week string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a week's report to the configured spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{Sheets: true})
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := app.Service.ExportReport(ctx, week)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s: %s\n", rep.Week, meso(rep.Total))
			return nil
		},
	}
	cmd.Flags().StringVarP(&week, "week", "w", "", "Week key (default: current)")
	return cmd
}
