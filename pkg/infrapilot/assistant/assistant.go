// Package assistant implements the main orchestrator for InfraPilot.
// Coordinates channels, the reasoning engine, the remote executor, and the
// durable stores to turn operator chat messages into narrated
// infrastructure actions.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/engine"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/remote"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/store"
)

// Fixed user-visible notices. Tests assert on these exact strings, so they
// are constants rather than formatted inline.
const (
	timeoutNotice = "The assistant timed out waiting for a response. Please try again."

	engineFailureNotice = "Something went wrong while contacting the reasoning engine. Please try again in a moment."

	closingNotice = "Conversation closed. Mention me when you need me again."
)

// Assistant is the conversation orchestrator.
// Message flow: receive → access check → command check → engagement check →
// conversation turn → directive → (execute+narrate | close | deliver).
type Assistant struct {
	config *Config

	// channelMgr manages communication channels.
	channelMgr *channels.Manager

	// gate is the authorization gate.
	gate *Gate

	// stateStore holds conversation handles and talk-mode flags.
	stateStore *store.StateStore

	// configStore holds authorization lists and server registries.
	configStore *store.ConfigStore

	// engine is the reasoning-engine client.
	engine *engine.Client

	// executor runs commands on operator-selected SSH targets.
	executor *remote.Executor

	// chatLocks serializes turns per chat, which in turn serializes runs
	// per conversation handle.
	chatLocks   map[string]*sync.Mutex
	chatLocksMu sync.Mutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Assistant with all dependencies wired.
func New(cfg *Config, stateStore *store.StateStore, configStore *store.ConfigStore, logger *slog.Logger) *Assistant {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Assistant{
		config:      cfg,
		channelMgr:  channels.NewManager(logger.With("component", "channels")),
		gate:        NewGate(cfg.Access, configStore, logger),
		stateStore:  stateStore,
		configStore: configStore,
		engine:      engine.New(cfg.Engine, logger),
		executor:    remote.New(cfg.Remote, configStore, logger),
		chatLocks:   make(map[string]*sync.Mutex),
		logger:      logger,
	}
}

// Start connects the channels and begins processing messages.
func (a *Assistant) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.logger.Info("starting InfraPilot",
		"name", a.config.Name,
		"end_token", a.config.EndToken,
	)

	if err := a.channelMgr.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	go a.messageLoop()

	a.logger.Info("InfraPilot started successfully")
	return nil
}

// Stop gracefully shuts down the assistant.
func (a *Assistant) Stop() {
	a.logger.Info("stopping InfraPilot...")

	if a.cancel != nil {
		a.cancel()
	}
	a.channelMgr.Stop()

	a.logger.Info("InfraPilot stopped")
}

// ChannelManager returns the channel manager for external registration.
func (a *Assistant) ChannelManager() *channels.Manager {
	return a.channelMgr
}

// messageLoop processes messages from all channels, one goroutine per
// inbound utterance. Per-chat ordering is enforced by chatLock, not here.
func (a *Assistant) messageLoop() {
	for {
		select {
		case msg, ok := <-a.channelMgr.Messages():
			if !ok {
				return
			}
			go a.handleMessage(msg)

		case <-a.ctx.Done():
			return
		}
	}
}

// handleMessage processes an individual message.
func (a *Assistant) handleMessage(msg *channels.IncomingMessage) {
	start := time.Now()
	logger := a.logger.With(
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"from", msg.From,
		"msg_id", msg.ID,
	)

	// ── Step 1: Authorization gate ──
	access := a.gate.Check(msg)
	if !access.Allowed {
		// Only answer a denial when the bot was actually addressed, so an
		// unauthorized group chat isn't spammed on every message.
		if !msg.IsGroup || msg.Mentioned || IsCommand(msg.Content) {
			a.sendReply(msg, access.Denial)
		}
		logger.Info("message rejected", "reason", access.Reason)
		return
	}

	// ── Step 2: Registry and admin commands ──
	if IsCommand(msg.Content) {
		result := a.HandleCommand(msg, access)
		if result.Handled {
			if result.Response != "" {
				a.sendReply(msg, result.Response)
			}
			logger.Info("command processed",
				"duration_ms", time.Since(start).Milliseconds())
			return
		}
	}

	// ── Step 3: Engagement ──
	// DMs always engage. In groups, a mention turns talk-mode on; without
	// talk-mode the message is ignored.
	if msg.IsGroup {
		if msg.Mentioned {
			if err := a.stateStore.SetTalking(msg.ChatID, true); err != nil {
				logger.Error("failed to persist talk-mode", "error", err)
			}
		} else if !a.stateStore.Talking(msg.ChatID) {
			return
		}
	}

	// ── Step 4: Conversation turn ──
	a.converse(msg, logger)

	logger.Info("message processed",
		"duration_ms", time.Since(start).Milliseconds())
}

// converse runs one full conversation turn for an inbound utterance.
func (a *Assistant) converse(msg *channels.IncomingMessage, logger *slog.Logger) {
	// Serialize turns per chat. One chat maps to one conversation handle,
	// so this guarantees no two runs are ever in flight on one handle.
	lock := a.chatLock(msg.ChatID)
	lock.Lock()
	defer lock.Unlock()

	a.channelMgr.SendTyping(a.ctx, msg.Channel, msg.ChatID)

	threadID, err := a.stateStore.ResolveOrCreate(a.ctx, msg.ChatID, a.engine.CreateThread)
	if err != nil {
		logger.Error("failed to resolve conversation", "error", err)
		a.sendReply(msg, engineFailureNotice)
		return
	}

	reply, err := a.runTurn(a.ctx, threadID, decorate(msg))
	if err != nil {
		logger.Error("engine turn failed", "thread_id", threadID, "error", err)
		a.sendReply(msg, engineFailureNotice)
		return
	}

	directive := Classify(reply, a.config.EndToken)
	switch directive.Kind {
	case CommandRequest:
		a.handleCommandRequest(msg, threadID, directive.Payload, logger)

	case EndConversation:
		if err := a.stateStore.SetTalking(msg.ChatID, false); err != nil {
			logger.Error("failed to clear talk-mode", "error", err)
		}
		a.sendReply(msg, closingNotice)
		logger.Info("conversation closed", "thread_id", threadID)

	default:
		a.deliver(msg, reply)
	}
}

// handleCommandRequest executes the requested command and asks the engine
// to narrate the output in a second turn.
func (a *Assistant) handleCommandRequest(msg *channels.IncomingMessage, threadID, command string, logger *slog.Logger) {
	logger.Info("command request", "command", command)

	output, err := a.executor.Execute(a.ctx, msg.ChatID, command)
	if err != nil {
		// Registry resolution failures are remediation messages, not
		// narration material.
		if remediation, ok := remediationFor(err); ok {
			a.sendReply(msg, remediation)
			return
		}
		// Execution failures are captured as text and narrated, so the
		// operator gets an explanation instead of a stack trace.
		output = "Command failed: " + err.Error()
	}

	a.channelMgr.SendTyping(a.ctx, msg.Channel, msg.ChatID)

	narrated, err := a.runTurn(a.ctx, threadID, narrationPrompt(command, output))
	if err != nil {
		logger.Error("narration turn failed", "thread_id", threadID, "error", err)
		a.sendReply(msg, engineFailureNotice)
		return
	}
	a.deliver(msg, narrated)
}

// runTurn submits one message to the thread and returns the engine's reply.
// A run that times out yields the timeout notice as the effective reply; a
// wait-for-idle timeout or submission failure is an error that aborts the
// turn.
func (a *Assistant) runTurn(ctx context.Context, threadID, content string) (string, error) {
	if err := a.engine.WaitIdle(ctx, threadID); err != nil {
		return "", err
	}
	if err := a.engine.AddMessage(ctx, threadID, content); err != nil {
		return "", err
	}
	runID, err := a.engine.CreateRun(ctx, threadID)
	if err != nil {
		return "", err
	}
	if err := a.engine.WaitForRun(ctx, threadID, runID); err != nil {
		if errors.Is(err, engine.ErrRunTimeout) {
			return timeoutNotice, nil
		}
		return "", err
	}
	return a.engine.LatestAssistantReply(ctx, threadID)
}

// deliver sanitizes the reply and sends it in order, one chunk at a time.
func (a *Assistant) deliver(msg *channels.IncomingMessage, reply string) {
	text := Sanitize(reply)
	for i, chunk := range Chunk(text, DefaultChunkLimit) {
		out := &channels.OutgoingMessage{Content: chunk}
		if i == 0 {
			out.ReplyTo = msg.ID
		}
		if err := a.channelMgr.Send(a.ctx, msg.Channel, msg.ChatID, out); err != nil {
			a.logger.Error("failed to deliver chunk",
				"channel", msg.Channel, "chat_id", msg.ChatID, "chunk", i, "error", err)
			return
		}
	}
}

// sendReply sends a short single-message reply (notices, command results).
func (a *Assistant) sendReply(msg *channels.IncomingMessage, text string) {
	if text == "" {
		return
	}
	err := a.channelMgr.Send(a.ctx, msg.Channel, msg.ChatID, &channels.OutgoingMessage{
		Content: text,
		ReplyTo: msg.ID,
	})
	if err != nil {
		a.logger.Error("failed to send reply",
			"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
	}
}

// chatLock returns the per-chat mutex, creating it on first use.
func (a *Assistant) chatLock(chatID string) *sync.Mutex {
	a.chatLocksMu.Lock()
	defer a.chatLocksMu.Unlock()

	lock, ok := a.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		a.chatLocks[chatID] = lock
	}
	return lock
}

// decorate prefixes the utterance with the sender's display identity so the
// engine can attribute multi-party group input.
func decorate(msg *channels.IncomingMessage) string {
	name := strings.TrimSpace(msg.FromName)
	if name == "" {
		name = msg.From
	}
	if msg.Username != "" {
		return fmt.Sprintf("[%s (%s)] %s", name, msg.Username, msg.Content)
	}
	return fmt.Sprintf("[%s] %s", name, msg.Content)
}

// narrationPrompt asks the engine to explain raw command output.
func narrationPrompt(command, output string) string {
	if strings.TrimSpace(output) == "" {
		output = "(no output)"
	}
	return fmt.Sprintf(
		"I ran `%s` on the selected server. Raw output:\n\n%s\n\nExplain this result to the operator in clear, concise language.",
		command, output)
}

// remediationFor maps registry resolution failures to the fixed messages
// naming the command that fixes them.
func remediationFor(err error) (string, bool) {
	switch {
	case errors.Is(err, store.ErrNoServerConfigured):
		return "No server is configured for this chat. Add one with /set_server <name> <host> <port> <user>.", true
	case errors.Is(err, store.ErrNoServerSelected):
		return "No server is selected for this chat. Pick one with /select_server <name>.", true
	case errors.Is(err, store.ErrTargetMissing):
		return "The selected server no longer exists. Pick another with /select_server <name> or add it again with /set_server.", true
	}
	return "", false
}
