package assistant

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/store"
)

func newGate(t *testing.T, cfg AccessConfig) (*Gate, *store.ConfigStore) {
	t.Helper()
	registry, err := store.OpenConfigStore(
		filepath.Join(t.TempDir(), "config.json"), cfg.Users, cfg.Groups, nil)
	if err != nil {
		t.Fatalf("OpenConfigStore: %v", err)
	}
	return NewGate(cfg, registry, nil), registry
}

func dm(from string) *channels.IncomingMessage {
	return &channels.IncomingMessage{From: from, ChatID: from, IsGroup: false}
}

func groupMsg(from, chatID string) *channels.IncomingMessage {
	return &channels.IncomingMessage{From: from, ChatID: chatID, IsGroup: true}
}

func TestGateDirectMessages(t *testing.T) {
	gate, _ := newGate(t, AccessConfig{
		AdminID: 100,
		Users:   []int64{200},
	})

	tests := []struct {
		name    string
		msg     *channels.IncomingMessage
		allowed bool
		admin   bool
	}{
		{"admin allowed", dm("100"), true, true},
		{"authorized user allowed", dm("200"), true, false},
		{"unknown user denied", dm("300"), false, false},
		{"non-numeric identity denied", dm("mallory"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gate.Check(tt.msg)
			if got.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.allowed)
			}
			if got.IsAdmin != tt.admin {
				t.Errorf("IsAdmin = %v, want %v", got.IsAdmin, tt.admin)
			}
		})
	}
}

func TestGateGroupJudgedByGroupIdentity(t *testing.T) {
	gate, _ := newGate(t, AccessConfig{
		AdminID: 100,
		Users:   []int64{200},
		Groups:  []int64{-500},
	})

	// Any sender in an authorized group passes.
	if got := gate.Check(groupMsg("999", "-500")); !got.Allowed {
		t.Error("sender in authorized group should be allowed")
	}

	// An authorized user in an unauthorized group does not pass; groups
	// are judged by the group identity alone.
	if got := gate.Check(groupMsg("200", "-600")); got.Allowed {
		t.Error("unauthorized group should be denied even for authorized senders")
	}
}

func TestGateDenialNamesCaller(t *testing.T) {
	gate, _ := newGate(t, AccessConfig{AdminID: 100})

	got := gate.Check(dm("42"))
	if got.Allowed {
		t.Fatal("expected denial")
	}
	if !strings.Contains(got.Denial, "42") {
		t.Errorf("denial %q should name the caller ID", got.Denial)
	}
	if !strings.Contains(got.Denial, "/grant") {
		t.Errorf("denial %q should name the remediation command", got.Denial)
	}
}

func TestGateRuntimeGrant(t *testing.T) {
	gate, registry := newGate(t, AccessConfig{AdminID: 100})

	if gate.Check(dm("300")).Allowed {
		t.Fatal("user should start unauthorized")
	}
	if err := registry.Grant(300); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !gate.Check(dm("300")).Allowed {
		t.Error("user should be allowed after runtime grant")
	}
}
