package root

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bossweek/internal/cli"
	"bossweek/internal/core"
	"bossweek/internal/lookup"
)

func newCharCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "char",
		Aliases: []string{"character"},
		Short:   "Manage the character roster",
	}
	cmd.AddCommand(
		newCharListCmd(),
		newCharAddCmd(),
		newCharDeleteCmd(),
		newCharRefreshCmd(),
	)
	return cmd
}

func newCharListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List characters with their profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			entities, err := app.Ledger.ListEntities(ctx)
			if err != nil {
				return err
			}
			for _, e := range entities {
				printEntity(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
}

func printEntity(w io.Writer, e core.Entity) {
	level, job := "?", "?"
	if e.Level != nil {
		level = fmt.Sprint(*e.Level)
	}
	if e.Job != nil {
		job = *e.Job
	}
	fmt.Fprintf(w, "%-16s Lv.%-4s %-12s %s\n", Key.Render(e.Name), level, job, Muted.Render(core.FormatPower(e.Power)))
}

func newCharAddCmd() *cobra.Command {
	var (
		level int
		job   string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a character and put it on the current week's board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{Publish: true})
			if err != nil {
				return err
			}
			defer cleanup()

			e := core.Entity{Name: args[0]}
			if cmd.Flags().Changed("level") {
				e.Level = core.Ptr(level)
			}
			if job != "" {
				e.Job = core.Ptr(job)
			}
			jobID, err := app.Service.CreateEntity(ctx, e)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s added\n", e.Name)
			if jobID != "" {
				fmt.Fprintln(cmd.OutOrStdout(), Muted.Render("profile refresh "+jobID))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "Character level")
	cmd.Flags().StringVar(&job, "job", "", "Character job")
	return cmd
}

func newCharDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a character and every record it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Ledger.DeleteEntity(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
			return nil
		},
	}
}

func newCharRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [name]",
		Short: "Refresh one character's profile, or every character's",
		Long:  "Refresh profiles from the MapleStory Open API. With a broker configured a single refresh is queued for the worker; otherwise it runs here and the result is printed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{Publish: true})
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				results, err := app.Service.RefreshAll(ctx)
				if err != nil {
					return err
				}
				for _, r := range results {
					printResult(out, r)
				}
				return nil
			}

			name := args[0]
			if app.AMQP != nil || app.Refresher == nil {
				jobID, err := app.Service.RequestRefresh(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s queued %s\n", name, Muted.Render(jobID))
				return nil
			}
			if _, err := app.Ledger.GetEntity(ctx, name); err != nil {
				return err
			}
			_, results := app.Refresher.Submit(ctx, name)
			printResult(out, <-results)
			return nil
		},
	}
}

func printResult(w io.Writer, r lookup.Result) {
	if !r.OK() {
		fmt.Fprintf(w, "%s %s %s\n", Bad.Render("✗"), r.Name, Muted.Render(r.Reason))
		return
	}
	fmt.Fprintf(w, "%s ", Good.Render("✓"))
	printEntity(w, core.Entity{Name: r.Name, Profile: r.Profile})
}
