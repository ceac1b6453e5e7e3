package root

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bossweek/internal/cli"
)

func newWeekCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Show and manage weekly boards",
	}
	cmd.AddCommand(
		newWeekShowCmd(),
		newWeekListCmd(),
		newWeekEnsureCmd(),
		newWeekJoinCmd(),
		newWeekAssignCmd(),
		newWeekUnassignCmd(),
	)
	return cmd
}

func newWeekShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [week]",
		Short: "Show the board of a week (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			snap, err := app.Service.Snapshot(ctx, firstArg(args))
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newWeekListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List weeks that have records, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			weeks, err := app.Ledger.WeekKeys(ctx)
			if err != nil {
				return err
			}
			current := app.Service.CurrentWeek()
			for _, w := range weeks {
				line := w.String()
				if w == current {
					line += " " + Good.Render("(current)")
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newWeekEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure [week]",
		Short: "Roll the roster over into a week if it has no records yet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			week, err := app.Service.ResolveWeek(firstArg(args))
			if err != nil {
				return err
			}
			res, err := app.Service.EnsureWeek(ctx, week)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Skipped != "" {
				fmt.Fprintf(out, "%s %s\n", res.Week, Muted.Render(res.Skipped))
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", res.Week, Good.Render(fmt.Sprintf("%d records copied from %s", res.Created, res.Previous)))
			return nil
		},
	}
}

func newWeekJoinCmd() *cobra.Command {
	var week string

	cmd := &cobra.Command{
		Use:   "join <character>",
		Short: "Add a character to a week with every catalog boss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := app.Service.AddEntityToWeek(ctx, week, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s joined with %d new bosses\n", args[0], n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&week, "week", "w", "", "Week key (default: current)")
	return cmd
}

func newWeekAssignCmd() *cobra.Command {
	var week string

	cmd := &cobra.Command{
		Use:   "assign <character> <boss>",
		Short: "Put a boss on a character's board for a week",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			added, err := app.Service.Assign(ctx, week, args[0], args[1])
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintln(cmd.OutOrStdout(), Muted.Render("already assigned"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s assigned to %s\n", args[1], args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&week, "week", "w", "", "Week key (default: current)")
	return cmd
}

func newWeekUnassignCmd() *cobra.Command {
	var week string

	cmd := &cobra.Command{
		Use:   "unassign <character> <boss>",
		Short: "Remove a boss from a character's board for a week",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Service.Unassign(ctx, week, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed from %s\n", args[1], args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&week, "week", "w", "", "Week key (default: current)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var (
		week  string
		set   bool
		unset bool
	)

	cmd := &cobra.Command{
		Use:   "check <character> <boss>",
		Short: "Toggle a boss clear for a character",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if set && unset {
				return errors.New("--done and --undo are mutually exclusive")
			}
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			entity, task := args[0], args[1]
			var checked bool
			switch {
			case set, unset:
				checked = set
				err = app.Service.SetCompletion(ctx, week, entity, task, checked)
			default:
				checked, err = app.Service.Toggle(ctx, week, entity, task)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", checkMark(checked), entity, task)
			return nil
		},
	}
	cmd.Flags().StringVarP(&week, "week", "w", "", "Week key (default: current)")
	cmd.Flags().BoolVar(&set, "done", false, "Mark as cleared instead of toggling")
	cmd.Flags().BoolVar(&unset, "undo", false, "Mark as not cleared instead of toggling")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
