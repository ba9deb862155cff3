package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/assistant"
)

// newSetupCmd creates the `infrapilot setup` command for interactive
// configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard to create your initial config.yaml.
Asks for the Telegram token, admin identity, assistant ID, and SSH key
path. The API key goes to the OS keyring, never to plaintext config.

Examples:
  infrapilot setup`,
		RunE: func(*cobra.Command, []string) error {
			return runInteractiveSetup()
		},
	}
}

// runInteractiveSetup guides the user through config creation step by step.
func runInteractiveSetup() error {
	cfg := assistant.DefaultConfig()

	var (
		adminID     string
		apiKey      string
		tgToken     string
		assistantID string
		keyPath     string
		endToken    = cfg.EndToken
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant name").
				Value(&cfg.Name),
			huh.NewInput().
				Title("Administrator Telegram user ID").
				Description("Numeric ID. The admin always has access and can grant others.").
				Validate(func(s string) error {
					if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
						return fmt.Errorf("must be a numeric ID")
					}
					return nil
				}).
				Value(&adminID),
			huh.NewInput().
				Title("End-of-conversation token").
				Description("Saying this in a reply ends talk-mode.").
				Value(&endToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				EchoMode(huh.EchoModePassword).
				Value(&tgToken),
			huh.NewInput().
				Title("OpenAI API key").
				Description("Stored in the OS keyring, not in config.yaml.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Assistant ID").
				Description("The pre-provisioned assistant runs execute against (asst_...).").
				Value(&assistantID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("SSH private key path").
				Description("Key used to reach your servers.").
				Placeholder("~/.ssh/id_ed25519").
				Value(&keyPath),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	cfg.EndToken = endToken
	cfg.Engine.AssistantID = assistantID
	cfg.Remote.KeyPath = keyPath
	if id, err := strconv.ParseInt(strings.TrimSpace(adminID), 10, 64); err == nil {
		cfg.Access.AdminID = id
	}

	// Secrets go to keyring/env references, never plaintext YAML.
	if apiKey != "" {
		if assistant.KeyringAvailable() {
			if err := assistant.StoreKeyring("api_key", apiKey); err != nil {
				fmt.Println("Warning: could not store API key in keyring:", err)
				fmt.Println("Set INFRAPILOT_API_KEY in your environment instead.")
			} else {
				fmt.Println("API key stored in the OS keyring.")
			}
		} else {
			fmt.Println("OS keyring unavailable. Set INFRAPILOT_API_KEY in your environment.")
		}
	}
	cfg.Channels.Telegram.Token = "${TELEGRAM_BOT_TOKEN}"
	if tgToken != "" {
		fmt.Println("Add this to your .env file:")
		fmt.Println("  TELEGRAM_BOT_TOKEN=" + tgToken)
	}

	if err := assistant.SaveConfigToFile(cfg, "config.yaml"); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("config.yaml created. Start the assistant with: infrapilot serve")
	return nil
}
