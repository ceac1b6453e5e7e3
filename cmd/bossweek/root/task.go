package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bossweek/internal/cli"
	"bossweek/internal/core"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "boss",
		Aliases: []string{"task"},
		Short:   "Manage the boss catalog and its prices",
	}
	cmd.AddCommand(
		newTaskListCmd(),
		newTaskAddCmd(),
		newTaskPriceCmd(),
		newTaskHistoryCmd(),
		newTaskRetireCmd(),
		newTaskDeleteCmd(),
	)
	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog bosses by price",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			tasks, err := app.Ledger.ListTasks(ctx)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", t.Name, meso(t.Price))
			}
			return nil
		},
	}
}

func newTaskAddCmd() *cobra.Command {
	var week string

	cmd := &cobra.Command{
		Use:   "add <name> <price>",
		Short: "Add a boss to the catalog and to every board of the week",
		Long:  "Add a boss to the catalog. Prices may group digits with commas or underscores, e.g. 1,234,000.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := core.ParsePrice(args[1])
			if err != nil {
				return err
			}
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			added, err := app.Service.AddTask(ctx, core.Task{Name: args[0], Price: price}, week)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintln(cmd.OutOrStdout(), Muted.Render(args[0]+" is already in the catalog"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s added at %s\n", args[0], meso(price))
			return nil
		},
	}
	cmd.Flags().StringVarP(&week, "week", "w", "", "Week the price starts at (default: current)")
	return cmd
}

func newTaskPriceCmd() *cobra.Command {
	var (
		from string
		note string
	)

	cmd := &cobra.Command{
		Use:   "price <name> <price>",
		Short: "Change a boss price from a week onward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := core.ParsePrice(args[1])
			if err != nil {
				return err
			}
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := app.Service.UpdatePrice(ctx, args[0], price, from, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now %s, %d records repriced\n", args[0], meso(price), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First week the price applies to (default: current)")
	cmd.Flags().StringVar(&note, "note", "", "Reason recorded in the price history")
	return cmd
}

func newTaskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <name>",
		Short: "Show the price history of a boss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			changes, err := app.Ledger.PriceHistory(ctx, args[0])
			if err != nil {
				return err
			}
			for _, c := range changes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", c.AppliedFrom, meso(c.Price), Muted.Render(c.Note))
			}
			return nil
		},
	}
}

func newTaskRetireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retire <name>",
		Short: "Remove a boss from the catalog, keeping its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Ledger.RetireTask(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s retired\n", args[0])
			return nil
		},
	}
}

func newTaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a boss and every record of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, cleanup, err := openApp(ctx, cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Ledger.DeleteTask(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
			return nil
		},
	}
}
