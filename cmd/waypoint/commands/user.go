package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/logger"
)

// UserCmd manages users
var UserCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long: `Create and list users. Every point, import and job belongs to a user.

Examples:
  waypoint user add traveller@example.com
  waypoint user ls --json`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create a user and print its API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List users",
	RunE:  runUserLs,
}

var (
	userAdmin  bool
	userJSON   bool
	userDBPath string
)

func init() {
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant admin rights")
	userLsCmd.Flags().BoolVar(&userJSON, "json", false, "Output as JSON")
	UserCmd.PersistentFlags().StringVar(&userDBPath, "db-path", "", "Custom database path (overrides config)")

	UserCmd.AddCommand(userAddCmd)
	UserCmd.AddCommand(userLsCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(userDBPath, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()

	user, err := location.NewStore(database).CreateUser(cmd.Context(), args[0], userAdmin)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:      %s\n", user.ID)
	fmt.Fprintf(out, "email:   %s\n", user.Email)
	fmt.Fprintf(out, "api key: %s\n", user.APIKey)
	pterm.Success.Println("User created. The API key is shown only once.")
	return nil
}

func runUserLs(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(userDBPath, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()

	users, err := location.NewStore(database).ListUsers(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if userJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	data := pterm.TableData{{"ID", "Email", "Admin", "Created"}}
	for _, u := range users {
		admin := ""
		if u.IsAdmin {
			admin = "yes"
		}
		data = append(data, []string{u.ID, u.Email, admin, u.CreatedAt.Format("2006-01-02")})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}
