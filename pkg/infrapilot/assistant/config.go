// Package assistant – config.go defines all configuration structures for
// the InfraPilot assistant.
package assistant

import (
	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels/discord"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels/telegram"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/engine"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/remote"
)

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name shown in responses and logs.
	Name string `yaml:"name"`

	// EndToken is the case-insensitive marker that ends talk-mode when it
	// appears anywhere in an engine reply.
	EndToken string `yaml:"end_token"`

	// Engine configures the reasoning-engine client.
	Engine engine.Config `yaml:"engine"`

	// Remote configures SSH command execution.
	Remote remote.Config `yaml:"remote"`

	// Access configures the authorization gate.
	Access AccessConfig `yaml:"access"`

	// Channels configures communication channels.
	Channels ChannelsConfig `yaml:"channels"`

	// Storage configures the durable state documents.
	Storage StorageConfig `yaml:"storage"`

	// Report configures the scheduled infrastructure report.
	Report ReportConfig `yaml:"report"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ChannelsConfig holds configuration for all channels.
type ChannelsConfig struct {
	// Telegram is the primary channel config.
	Telegram telegram.Config `yaml:"telegram"`

	// Discord is the optional secondary channel config.
	Discord discord.Config `yaml:"discord"`

	// DiscordEnabled turns the Discord channel on.
	DiscordEnabled bool `yaml:"discord_enabled"`
}

// StorageConfig holds the paths of the two durable state documents.
type StorageConfig struct {
	// StatePath is the session state document (conversation handles,
	// talk-mode flags).
	StatePath string `yaml:"state_path"`

	// ConfigPath is the configuration state document (authorization lists,
	// server registries).
	ConfigPath string `yaml:"config_path"`
}

// ReportConfig configures the scheduled infrastructure report.
type ReportConfig struct {
	// Enabled turns the scheduled report on.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression for when the report runs.
	Schedule string `yaml:"schedule"`

	// Channel is the channel name the report is delivered on.
	Channel string `yaml:"channel"`

	// ChatID is the chat the report is delivered to. The report runs its
	// commands against this chat's selected server.
	ChatID string `yaml:"chat_id"`

	// Commands are the shell commands whose combined output the engine
	// narrates. Empty uses a default health-check set.
	Commands []string `yaml:"commands"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "InfraPilot",
		EndToken: "#endchat",
		Engine: engine.Config{
			BaseURL: "https://api.openai.com/v1",
		},
		Channels: ChannelsConfig{
			Telegram: telegram.DefaultConfig(),
			Discord:  discord.DefaultConfig(),
		},
		Storage: StorageConfig{
			StatePath:  "./data/state.json",
			ConfigPath: "./data/config.json",
		},
		Report: ReportConfig{
			Schedule: "0 8 * * *",
			Channel:  "telegram",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
