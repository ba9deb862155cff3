package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/assistant"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels/discord"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels/telegram"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/scheduler"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/store"
)

// newServeCmd creates the `infrapilot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon with messaging channels",
		Long: `Start InfraPilot as a daemon service, connecting the enabled channels
and processing operator messages.

Examples:
  infrapilot serve
  infrapilot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	// ── Resolve secrets ──
	// Audit BEFORE resolving — checks the raw config values for hardcoded keys.
	assistant.AuditSecrets(cfg, logger)
	assistant.ResolveAPIKey(cfg, logger)

	// ── Open durable stores ──
	stateStore, err := store.OpenStateStore(cfg.Storage.StatePath, logger)
	if err != nil {
		return fmt.Errorf("opening session state: %w", err)
	}
	configStore, err := store.OpenConfigStore(
		cfg.Storage.ConfigPath, cfg.Access.Users, cfg.Access.Groups, logger)
	if err != nil {
		return fmt.Errorf("opening configuration state: %w", err)
	}

	// ── Create assistant ──
	pilot := assistant.New(cfg, stateStore, configStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Register channels ──
	if cfg.Channels.Telegram.Token != "" {
		tg := telegram.New(cfg.Channels.Telegram, logger)
		if err := pilot.ChannelManager().Register(tg); err != nil {
			logger.Error("failed to register Telegram", "error", err)
		}
	}
	if cfg.Channels.DiscordEnabled && cfg.Channels.Discord.Token != "" {
		dc := discord.New(cfg.Channels.Discord, logger)
		if err := pilot.ChannelManager().Register(dc); err != nil {
			logger.Error("failed to register Discord", "error", err)
		}
	}

	// ── Start ──
	if err := pilot.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	for name, health := range pilot.ChannelManager().HealthAll() {
		logger.Info("channel health", "channel", name, "connected", health.Connected)
	}

	// ── Scheduled report ──
	var sched *scheduler.Scheduler
	if cfg.Report.Enabled {
		sched = scheduler.New(logger)
		if _, err := sched.Add("infrastructure-report", cfg.Report.Schedule, pilot.RunScheduledReport); err != nil {
			logger.Error("failed to schedule report", "error", err)
		} else {
			sched.Start(ctx)
		}
	}

	// ── Wait for shutdown ──
	logger.Info("InfraPilot running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"end_token", cfg.EndToken,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		if sched != nil {
			sched.Stop()
		}
		pilot.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// resolveConfig loads config from file, running interactive setup if missing.
func resolveConfig(cmd *cobra.Command) (*assistant.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := assistant.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	// No config file — offer interactive setup before connecting.
	fmt.Println()
	fmt.Println("No configuration file found.")
	fmt.Println("InfraPilot requires a config.yaml before connecting to a channel.")
	fmt.Println()

	if err := runInteractiveSetup(); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded after setup", "path", found)
		return cfg, nil
	}

	return nil, fmt.Errorf("setup completed but config.yaml not found")
}
