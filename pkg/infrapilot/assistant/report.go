// Package assistant – report.go builds the infrastructure health report:
// a fixed set of commands fanned out to the chat's selected server, with
// the combined output narrated by the engine.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels"
)

// defaultReportCommands is the health-check set used when the config does
// not override it.
var defaultReportCommands = []string{
	"uptime",
	"df -h",
	"free -m",
	"systemctl --failed --no-pager --no-legend",
	"tail -n 20 /var/log/syslog",
}

// RunReport gathers the report command outputs for the chat's selected
// server, asks the engine to summarize them, and delivers the summary to
// the chat. Called from the /report command and the scheduler.
func (a *Assistant) RunReport(ctx context.Context, channel, chatID string) {
	logger := a.logger.With("component", "report", "channel", channel, "chat_id", chatID)

	commands := a.config.Report.Commands
	if len(commands) == 0 {
		commands = defaultReportCommands
	}

	var b strings.Builder
	for _, cmd := range commands {
		fmt.Fprintf(&b, "$ %s\n", cmd)
		output, err := a.executor.Execute(ctx, chatID, cmd)
		if err != nil {
			if remediation, ok := remediationFor(err); ok {
				a.sendTo(ctx, channel, chatID, remediation)
				return
			}
			// A single failed command should not sink the whole report.
			fmt.Fprintf(&b, "(failed: %v)\n\n", err)
			continue
		}
		b.WriteString(strings.TrimSpace(output))
		b.WriteString("\n\n")
	}

	lock := a.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	threadID, err := a.stateStore.ResolveOrCreate(ctx, chatID, a.engine.CreateThread)
	if err != nil {
		logger.Error("failed to resolve conversation", "error", err)
		a.sendTo(ctx, channel, chatID, engineFailureNotice)
		return
	}

	summary, err := a.runTurn(ctx, threadID, reportPrompt(b.String()))
	if err != nil {
		logger.Error("report narration failed", "thread_id", threadID, "error", err)
		a.sendTo(ctx, channel, chatID, engineFailureNotice)
		return
	}

	text := Sanitize(summary)
	for _, chunk := range Chunk(text, DefaultChunkLimit) {
		a.sendTo(ctx, channel, chatID, chunk)
	}
	logger.Info("report delivered", "commands", len(commands))
}

// RunScheduledReport runs the report against the configured report chat.
// Wired as the cron job handler.
func (a *Assistant) RunScheduledReport(ctx context.Context) {
	cfg := a.config.Report
	if cfg.ChatID == "" {
		a.logger.Warn("scheduled report skipped, no report chat configured")
		return
	}
	a.RunReport(ctx, cfg.Channel, cfg.ChatID)
}

func (a *Assistant) sendTo(ctx context.Context, channel, chatID, text string) {
	if text == "" {
		return
	}
	err := a.channelMgr.Send(ctx, channel, chatID, &channels.OutgoingMessage{Content: text})
	if err != nil {
		a.logger.Error("failed to send report message",
			"channel", channel, "chat_id", chatID, "error", err)
	}
}

func reportPrompt(raw string) string {
	return "Here is the raw output of the daily infrastructure health checks:\n\n" +
		raw +
		"\nWrite a short operator-friendly report: overall status first, then anything that needs attention. Skip healthy details."
}
