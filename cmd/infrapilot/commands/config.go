package commands

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/assistant"
)

// newConfigCmd creates the `infrapilot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and credentials",
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigSetKeyCmd(),
		newConfigDelKeyCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(*cobra.Command, []string) error {
			if _, err := os.Stat("config.yaml"); err == nil {
				return fmt.Errorf("config.yaml already exists, refusing to overwrite")
			}
			if err := assistant.SaveConfigToFile(assistant.DefaultConfig(), "config.yaml"); err != nil {
				return err
			}
			fmt.Println("config.yaml created. Edit it, then run: infrapilot serve")
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the engine API key in the OS keyring",
		RunE: func(*cobra.Command, []string) error {
			fmt.Print("API key (hidden input): ")
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("reading key: %w", err)
			}

			key := strings.TrimSpace(string(raw))
			if key == "" {
				return fmt.Errorf("empty key, nothing stored")
			}
			if err := assistant.StoreKeyring("api_key", key); err != nil {
				return fmt.Errorf("storing in keyring: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

func newConfigDelKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del-key",
		Short: "Remove the engine API key from the OS keyring",
		RunE: func(*cobra.Command, []string) error {
			if err := assistant.DeleteKeyring("api_key"); err != nil {
				return fmt.Errorf("deleting from keyring: %w", err)
			}
			fmt.Println("API key removed from the OS keyring.")
			return nil
		},
	}
}
