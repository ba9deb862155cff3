// Package commands implements the InfraPilot CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "infrapilot",
		Short: "InfraPilot - chat-operated infrastructure assistant",
		Long: `InfraPilot is a chat-operated infrastructure assistant. Operators talk
to it on Telegram or Discord; it reasons with an AI engine and can run
shell commands on operator-selected SSH targets, narrating the results.

Examples:
  infrapilot serve
  infrapilot serve --config ./config.yaml
  infrapilot setup
  infrapilot config set-key`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSetupCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
