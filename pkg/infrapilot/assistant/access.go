// Package assistant – access.go implements the authorization gate.
//
// The bot does not respond to everyone. Group chats require the group
// identity to be authorized; direct messages require the sender identity to
// be authorized or to be the administrator. Denied callers get a single
// remediation message naming their ID so an administrator can grant access.
package assistant

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/store"
)

// AccessConfig holds the authorization configuration.
type AccessConfig struct {
	// AdminID is the administrator identity. The admin always passes the
	// gate in direct messages and is the only caller allowed to grant,
	// revoke, and run registry commands in restricted mode.
	AdminID int64 `yaml:"admin_id"`

	// Users seeds the authorized individual identities.
	Users []int64 `yaml:"users"`

	// Groups seeds the authorized group identities.
	Groups []int64 `yaml:"groups"`
}

// Gate evaluates incoming messages against the durable authorization lists.
type Gate struct {
	registry *store.ConfigStore
	adminID  int64
	logger   *slog.Logger
}

// NewGate creates a gate over the configuration store.
func NewGate(cfg AccessConfig, registry *store.ConfigStore, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		registry: registry,
		adminID:  cfg.AdminID,
		logger:   logger.With("component", "access"),
	}
}

// CheckResult contains the result of an authorization check.
type CheckResult struct {
	// Allowed is true if the message may be processed.
	Allowed bool

	// IsAdmin is true if the sender is the administrator.
	IsAdmin bool

	// Denial is the remediation text to deliver when not allowed.
	Denial string

	// Reason explains the decision, for logging.
	Reason string
}

// Check evaluates whether an incoming message passes the gate. Group
// messages are judged by the group identity alone; direct messages by the
// sender identity or admin status.
func (g *Gate) Check(msg *channels.IncomingMessage) CheckResult {
	senderID, senderOK := parseID(msg.From)
	isAdmin := senderOK && g.adminID != 0 && senderID == g.adminID

	if msg.IsGroup {
		groupID, ok := parseID(msg.ChatID)
		if ok && g.registry.IsGroupAllowed(groupID) {
			return CheckResult{Allowed: true, IsAdmin: isAdmin}
		}
		return CheckResult{
			IsAdmin: isAdmin,
			Denial:  denialText(msg.ChatID),
			Reason:  "group not authorized",
		}
	}

	if isAdmin {
		return CheckResult{Allowed: true, IsAdmin: true}
	}
	if senderOK && g.registry.IsUserAllowed(senderID) {
		return CheckResult{Allowed: true}
	}
	return CheckResult{
		Denial: denialText(msg.From),
		Reason: "user not authorized",
	}
}

// IsAdmin reports whether the given sender identity is the administrator.
func (g *Gate) IsAdmin(from string) bool {
	id, ok := parseID(from)
	return ok && g.adminID != 0 && id == g.adminID
}

func denialText(id string) string {
	return fmt.Sprintf(
		"You are not authorized to use this assistant. Ask an administrator to run /grant %s.", id)
}

// parseID converts a transport identity to the signed numeric form used by
// the authorization lists.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
