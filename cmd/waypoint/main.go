package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/waypoint/cmd/waypoint/commands"
	"github.com/teranos/waypoint/logger"
)

var rootCmd = &cobra.Command{
	Use:   "waypoint",
	Short: "waypoint - location history processing with background jobs",
	Long: `waypoint - location history processing with background jobs.

waypoint stores GPS points per user and runs background jobs over them:
daily statistics, reverse geocoding, speed backfill, cleanup filters and
bulk imports. Jobs run under a bounded worker budget with per-user
admission rules.

Available commands:
  serve   - Run the HTTP API and the job scheduler
  jobs    - List job types or run one job in the foreground
  stats   - Show a user's daily statistics
  user    - Manage users
  config  - Show and validate configuration
  db      - Inspect the database schema
  version - Show version information

Examples:
  waypoint serve                                  # API on :8730 with the scheduler
  waypoint jobs run GenerateFullStatistics --user <id>
  waypoint stats --user <id>
  waypoint config show --format json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.UserCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
