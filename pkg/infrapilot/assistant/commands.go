// Package assistant – commands.go implements the operator commands that can
// be executed via chat messages.
//
// Commands are prefixed with "/" and require passing the authorization gate:
//
//	/set_server <name> <host> <port> <user> - Add or replace a server target
//	/select_server <name>                   - Select the target for this chat
//	/delete_server <name>                   - Delete a target
//	/servers                                - List this chat's targets
//	/grant <id>                             - Authorize an identity (admin)
//	/revoke <id>                            - Revoke an identity (admin)
//	/report                                 - Run the infrastructure report now
//	/reset                                  - Start a fresh conversation
//	/help                                   - Show available commands
package assistant

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/store"
)

// CommandResult contains the result of a command execution.
type CommandResult struct {
	// Response is the text to send back.
	Response string

	// Handled is true if the message was a valid command.
	Handled bool
}

// IsCommand returns true if the message starts with "/".
func IsCommand(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "/")
}

// HandleCommand processes an operator command from a chat message.
// Returns handled=true if it was a valid command (even if permission denied).
func (a *Assistant) HandleCommand(msg *channels.IncomingMessage, access CheckResult) CommandResult {
	content := strings.TrimSpace(msg.Content)
	if !IsCommand(content) {
		return CommandResult{Handled: false}
	}

	parts := strings.Fields(content)
	cmd := strings.ToLower(parts[0])
	// Telegram appends @botname to commands in groups.
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	args := parts[1:]

	switch cmd {
	case "/help", "/start":
		return CommandResult{Response: a.helpCommand(access.IsAdmin), Handled: true}

	case "/set_server":
		return CommandResult{Response: a.setServerCommand(msg.ChatID, args), Handled: true}

	case "/select_server":
		return CommandResult{Response: a.selectServerCommand(msg.ChatID, args), Handled: true}

	case "/delete_server":
		return CommandResult{Response: a.deleteServerCommand(msg.ChatID, args), Handled: true}

	case "/servers":
		return CommandResult{Response: a.serversCommand(msg.ChatID), Handled: true}

	case "/grant":
		if !access.IsAdmin {
			return CommandResult{Response: "Only the administrator can grant access.", Handled: true}
		}
		return CommandResult{Response: a.grantCommand(args), Handled: true}

	case "/revoke":
		if !access.IsAdmin {
			return CommandResult{Response: "Only the administrator can revoke access.", Handled: true}
		}
		return CommandResult{Response: a.revokeCommand(args), Handled: true}

	case "/report":
		go a.RunReport(a.ctx, msg.Channel, msg.ChatID)
		return CommandResult{Response: "Generating the infrastructure report...", Handled: true}

	case "/reset":
		return CommandResult{Response: a.resetCommand(msg.ChatID), Handled: true}

	default:
		return CommandResult{Handled: false}
	}
}

// --- Command implementations ---

func (a *Assistant) helpCommand(isAdmin bool) string {
	var b strings.Builder
	b.WriteString("<b>InfraPilot Commands</b>\n\n")

	b.WriteString("<b>Servers:</b>\n")
	b.WriteString("/set_server &lt;name&gt; &lt;host&gt; &lt;port&gt; &lt;user&gt; - Add or replace a target\n")
	b.WriteString("/select_server &lt;name&gt; - Select the target for this chat\n")
	b.WriteString("/delete_server &lt;name&gt; - Delete a target\n")
	b.WriteString("/servers - List this chat's targets\n\n")

	if isAdmin {
		b.WriteString("<b>Access Control:</b>\n")
		b.WriteString("/grant &lt;id&gt; - Authorize a user (negative ID = group)\n")
		b.WriteString("/revoke &lt;id&gt; - Revoke access\n\n")
	}

	b.WriteString("/report - Run the infrastructure report now\n")
	b.WriteString("/reset - Start a fresh conversation\n")
	b.WriteString("/help - Show this message\n\n")
	b.WriteString("Mention me in a group to start talking. I can run shell commands on your selected server when you ask.")

	return b.String()
}

func (a *Assistant) setServerCommand(chatID string, args []string) string {
	if len(args) != 4 {
		return "Usage: /set_server <name> <host> <port> <user>"
	}

	port, err := strconv.Atoi(args[2])
	if err != nil || port < 1 || port > 65535 {
		return fmt.Sprintf("Invalid port %q: must be a number between 1 and 65535.", args[2])
	}

	name := args[0]
	target := store.Target{Host: args[1], Port: port, User: args[3]}
	if err := a.configStore.AddOrReplaceServer(chatID, name, target); err != nil {
		return "Failed to save server: " + err.Error()
	}
	return fmt.Sprintf("Server %q saved (%s@%s:%d).", name, target.User, target.Host, target.Port)
}

func (a *Assistant) selectServerCommand(chatID string, args []string) string {
	if len(args) != 1 {
		return "Usage: /select_server <name>"
	}

	if err := a.configStore.SelectServer(chatID, args[0]); err != nil {
		if errors.Is(err, store.ErrNameNotFound) {
			return fmt.Sprintf("No server named %q. Use /servers to list them.", args[0])
		}
		return "Failed to select server: " + err.Error()
	}
	return fmt.Sprintf("Server %q selected.", args[0])
}

func (a *Assistant) deleteServerCommand(chatID string, args []string) string {
	if len(args) != 1 {
		return "Usage: /delete_server <name>"
	}

	wasSelected := false
	for _, e := range a.configStore.ListServers(chatID) {
		if e.Name == args[0] {
			wasSelected = e.Selected
		}
	}

	if err := a.configStore.DeleteServer(chatID, args[0]); err != nil {
		if errors.Is(err, store.ErrNameNotFound) {
			return fmt.Sprintf("No server named %q. Use /servers to list them.", args[0])
		}
		return "Failed to delete server: " + err.Error()
	}

	response := fmt.Sprintf("Server %q deleted.", args[0])
	if wasSelected {
		for _, e := range a.configStore.ListServers(chatID) {
			if e.Selected {
				response += fmt.Sprintf(" Selection moved to %q.", e.Name)
			}
		}
	}
	return response
}

func (a *Assistant) serversCommand(chatID string) string {
	entries := a.configStore.ListServers(chatID)
	if len(entries) == 0 {
		return "No servers configured for this chat. Add one with /set_server <name> <host> <port> <user>."
	}

	var b strings.Builder
	b.WriteString("<b>Servers for this chat:</b>\n")
	for _, e := range entries {
		marker := "  "
		if e.Selected {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%s - %s@%s:%d\n", marker, e.Name, e.Target.User, e.Target.Host, e.Target.Port)
	}
	b.WriteString("\n* = selected")
	return b.String()
}

func (a *Assistant) grantCommand(args []string) string {
	if len(args) != 1 {
		return "Usage: /grant <id> (negative ID = group)"
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Sprintf("Invalid ID %q: must be a signed number.", args[0])
	}
	if err := a.configStore.Grant(id); err != nil {
		return "Failed to grant access: " + err.Error()
	}
	kind := "user"
	if id < 0 {
		kind = "group"
	}
	return fmt.Sprintf("Access granted to %s %d.", kind, id)
}

func (a *Assistant) revokeCommand(args []string) string {
	if len(args) != 1 {
		return "Usage: /revoke <id> (negative ID = group)"
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Sprintf("Invalid ID %q: must be a signed number.", args[0])
	}
	if err := a.configStore.Revoke(id); err != nil {
		return "Failed to revoke access: " + err.Error()
	}
	kind := "user"
	if id < 0 {
		kind = "group"
	}
	return fmt.Sprintf("Access revoked for %s %d.", kind, id)
}

func (a *Assistant) resetCommand(chatID string) string {
	if err := a.stateStore.Reset(chatID); err != nil {
		return "Failed to reset the conversation: " + err.Error()
	}
	return "Conversation reset. The next message starts fresh."
}
