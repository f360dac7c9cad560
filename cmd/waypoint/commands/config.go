package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/errors"
)

// ConfigCmd inspects the waypoint configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect waypoint configuration",
	Long: `Display and validate waypoint configuration.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (WAYPOINT_* prefix)
3. Project config (./waypoint.toml, searched up from the working directory)
4. User config (~/.waypoint/waypoint.toml)
5. System config (/etc/waypoint/waypoint.toml)
6. Default values

Examples:
  waypoint config show                  # Show current configuration
  waypoint config show --format json    # Show configuration as JSON
  waypoint config get pulse.workers     # Get a single value
  waypoint config validate              # Validate current configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value using dot notation (e.g. geocoding.host)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runConfigValidate,
}

var configFormat string

const redacted = "********"

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	data, err := marshalConfig(redactConfig(*cfg), configFormat)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if configFormat != "json" {
		fmt.Fprintln(out, "# waypoint configuration")
	}
	_, err = out.Write(data)
	return err
}

func marshalConfig(cfg am.Config, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil
	case "yaml":
		data, err := yaml.Marshal(cfg)
		return data, errors.Wrap(err, "failed to marshal config to YAML")
	case "toml":
		data, err := toml.Marshal(cfg)
		return data, errors.Wrap(err, "failed to marshal config to TOML")
	default:
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("unsupported format: %s", format),
			"supported formats: toml, json, yaml")
	}
}

// redactConfig hides secrets before the config is printed
func redactConfig(cfg am.Config) am.Config {
	if cfg.Geocoding.APIKey != "" {
		cfg.Geocoding.APIKey = redacted
	}
	return cfg
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q", key)
	}
	value := v.Get(key)
	if strings.HasSuffix(key, "api_key") && fmt.Sprint(value) != "" {
		value = redacted
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}
