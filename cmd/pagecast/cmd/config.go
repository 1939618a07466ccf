package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/pagecast/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing pagecast configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
Redirect the output to a file to create a configuration template:

  pagecast config dump > pagecast.yaml

Configuration can be set via:
  - Config file (pagecast.yaml in ., /etc/pagecast, or --config)
  - Environment variables (PAGECAST_SERVER_PORT, PAGECAST_BROWSER_HEADLESS, ...)
  - Command-line flags (for some options)

Environment variables use the PAGECAST_ prefix and underscores for nesting.
Example: server.port -> PAGECAST_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	config.SetDefaults(v)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
