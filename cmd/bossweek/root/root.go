package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.3.0"

var (
	dbPath   string
	logLevel string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bossweek",
		Short:         "Weekly boss ledger for a roster of characters",
		Long:          "bossweek tracks which weekly bosses each character cleared, freezes the price of every clear and reports the meso earned per week.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Ledger database path (overrides DB_PATH)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newServeCmd(),
		newWeekCmd(),
		newTaskCmd(),
		newCharCmd(),
		newCheckCmd(),
		newStatsCmd(),
		newStatusCmd(),
		newResyncCmd(),
		newImportCmd(),
		newExportCmd(),
		newSheetsCmd(),
	)
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, Bad.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
