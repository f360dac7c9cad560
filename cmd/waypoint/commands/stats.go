package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/logger"
)

// StatsCmd prints a user's daily statistics
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a user's daily statistics",
	Long: `Show the daily distance and visited places computed by the
GenerateFullStatistics job. Run the job first if the table is empty.`,
	RunE: runStats,
}

var (
	statsUser   string
	statsJSON   bool
	statsDBPath string
)

func init() {
	StatsCmd.Flags().StringVar(&statsUser, "user", "", "User id")
	StatsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
	StatsCmd.Flags().StringVar(&statsDBPath, "db-path", "", "Custom database path (overrides config)")
	StatsCmd.MarkFlagRequired("user")
}

func runStats(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(statsDBPath, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()
	store := location.NewStore(database)

	if _, err := store.GetUser(cmd.Context(), statsUser); err != nil {
		return errors.WithHint(err, "list users with: waypoint user ls")
	}
	days, err := store.ListDailyStatistics(cmd.Context(), statsUser)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(days)
	}
	if len(days) == 0 {
		pterm.Info.Println("No statistics yet. Run: waypoint jobs run GenerateFullStatistics --user " + statsUser)
		return nil
	}

	var total float64
	data := pterm.TableData{{"Date", "Distance (km)", "Countries", "Cities"}}
	for _, d := range days {
		total += d.DistanceMeters
		data = append(data, []string{
			fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day),
			fmt.Sprintf("%.2f", d.DistanceMeters/1000),
			joinOrDash(d.VisitedCountries),
			joinOrDash(d.VisitedCities),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d days, %.2f km total\n", len(days), total/1000)
	return nil
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
