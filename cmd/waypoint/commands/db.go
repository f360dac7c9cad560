package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/waypoint/db"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/logger"
)

// DbCmd manages the waypoint database
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the waypoint database",
	Long: `Inspect the SQLite database. Opening the database applies pending migrations.

Examples:
  waypoint db status
  waypoint db status --db-path /tmp/test.db`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema version and row counts",
	RunE:  runDbStatus,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	DbCmd.AddCommand(dbStatusCmd)
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase(dbPathFlag, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()

	schema, err := db.SchemaVersion(database)
	if err != nil {
		return err
	}
	pending, err := db.PendingMigrations(database)
	if err != nil {
		return err
	}
	users, err := location.NewStore(database).ListUsers(cmd.Context())
	if err != nil {
		return err
	}

	var points, runs int
	if err := database.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM gps_points").Scan(&points); err != nil {
		return err
	}
	if err := database.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM job_runs").Scan(&runs); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database path:      %s\n", path)
	fmt.Fprintf(out, "Schema version:     %s\n", schema)
	fmt.Fprintf(out, "Pending migrations: %d\n", len(pending))
	fmt.Fprintf(out, "Users:              %d\n", len(users))
	fmt.Fprintf(out, "Points:             %d\n", points)
	fmt.Fprintf(out, "Job runs:           %d\n", runs)
	return nil
}
