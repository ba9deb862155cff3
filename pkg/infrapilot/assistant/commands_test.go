package assistant

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels"
	"github.com/jholhewres/infrapilot/pkg/infrapilot/store"
)

func newTestAssistant(t *testing.T) *Assistant {
	t.Helper()
	dir := t.TempDir()

	stateStore, err := store.OpenStateStore(filepath.Join(dir, "state.json"), nil)
	if err != nil {
		t.Fatalf("OpenStateStore: %v", err)
	}
	configStore, err := store.OpenConfigStore(filepath.Join(dir, "config.json"), nil, nil, nil)
	if err != nil {
		t.Fatalf("OpenConfigStore: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Access.AdminID = 100
	return New(cfg, stateStore, configStore, nil)
}

func command(text string) *channels.IncomingMessage {
	return &channels.IncomingMessage{From: "100", ChatID: "42", Content: text}
}

func TestIsCommand(t *testing.T) {
	if !IsCommand("/servers") || !IsCommand("  /help") {
		t.Error("slash-prefixed messages are commands")
	}
	if IsCommand("list servers") || IsCommand("") {
		t.Error("non-slash messages are not commands")
	}
}

func TestServerCommandLifecycle(t *testing.T) {
	a := newTestAssistant(t)
	admin := CheckResult{Allowed: true, IsAdmin: true}

	res := a.HandleCommand(command("/set_server web 10.0.0.1 22 deploy"), admin)
	if !res.Handled || !strings.Contains(res.Response, "web") {
		t.Fatalf("set_server = %+v", res)
	}

	res = a.HandleCommand(command("/servers"), admin)
	if !strings.Contains(res.Response, "deploy@10.0.0.1:22") {
		t.Errorf("servers listing missing target: %q", res.Response)
	}
	if !strings.Contains(res.Response, "* web") {
		t.Errorf("first target should be marked selected: %q", res.Response)
	}

	res = a.HandleCommand(command("/select_server nope"), admin)
	if !strings.Contains(res.Response, `"nope"`) {
		t.Errorf("selecting unknown name should say so: %q", res.Response)
	}

	res = a.HandleCommand(command("/delete_server web"), admin)
	if !strings.Contains(res.Response, "deleted") {
		t.Errorf("delete_server = %q", res.Response)
	}

	res = a.HandleCommand(command("/servers"), admin)
	if !strings.Contains(res.Response, "No servers configured") {
		t.Errorf("empty registry listing = %q", res.Response)
	}
}

func TestSetServerValidation(t *testing.T) {
	a := newTestAssistant(t)
	admin := CheckResult{Allowed: true, IsAdmin: true}

	res := a.HandleCommand(command("/set_server web 10.0.0.1"), admin)
	if !strings.Contains(res.Response, "Usage:") {
		t.Errorf("missing args should show usage: %q", res.Response)
	}

	res = a.HandleCommand(command("/set_server web 10.0.0.1 notaport deploy"), admin)
	if !strings.Contains(res.Response, "Invalid port") {
		t.Errorf("bad port should be rejected: %q", res.Response)
	}
}

func TestGrantRequiresAdmin(t *testing.T) {
	a := newTestAssistant(t)

	res := a.HandleCommand(command("/grant 300"), CheckResult{Allowed: true, IsAdmin: false})
	if !res.Handled || !strings.Contains(res.Response, "administrator") {
		t.Errorf("non-admin grant = %+v", res)
	}

	res = a.HandleCommand(command("/grant 300"), CheckResult{Allowed: true, IsAdmin: true})
	if !strings.Contains(res.Response, "granted") {
		t.Errorf("admin grant = %q", res.Response)
	}
	if !a.configStore.IsUserAllowed(300) {
		t.Error("grant did not persist")
	}

	res = a.HandleCommand(command("/revoke 300"), CheckResult{Allowed: true, IsAdmin: true})
	if !strings.Contains(res.Response, "revoked") {
		t.Errorf("revoke = %q", res.Response)
	}
	if a.configStore.IsUserAllowed(300) {
		t.Error("revoke did not persist")
	}
}

func TestDeleteServerReportsSelectionMove(t *testing.T) {
	a := newTestAssistant(t)
	admin := CheckResult{Allowed: true, IsAdmin: true}

	a.HandleCommand(command("/set_server web 10.0.0.1 22 deploy"), admin)
	a.HandleCommand(command("/set_server db 10.0.0.2 22 deploy"), admin)
	a.HandleCommand(command("/set_server cache 10.0.0.3 22 deploy"), admin)
	a.HandleCommand(command("/select_server web"), admin)

	// Deleting a non-selected target leaves the selection alone.
	res := a.HandleCommand(command("/delete_server db"), admin)
	if strings.Contains(res.Response, "Selection moved") {
		t.Errorf("deleting a non-selected target should not report a move: %q", res.Response)
	}

	// Deleting the selected target reports where the selection went.
	res = a.HandleCommand(command("/delete_server web"), admin)
	if !strings.Contains(res.Response, `Selection moved to "cache"`) {
		t.Errorf("deleting the selected target should report the move: %q", res.Response)
	}
}

func TestCommandWithBotSuffix(t *testing.T) {
	a := newTestAssistant(t)

	res := a.HandleCommand(command("/servers@infrapilot_bot"), CheckResult{Allowed: true})
	if !res.Handled {
		t.Error("command with @botname suffix should be handled")
	}
}

func TestUnknownCommandNotHandled(t *testing.T) {
	a := newTestAssistant(t)

	res := a.HandleCommand(command("/frobnicate"), CheckResult{Allowed: true})
	if res.Handled {
		t.Error("unknown command should fall through to conversation")
	}
}

func TestResetCommand(t *testing.T) {
	a := newTestAssistant(t)

	res := a.HandleCommand(command("/reset"), CheckResult{Allowed: true})
	if !res.Handled || !strings.Contains(res.Response, "reset") {
		t.Errorf("reset = %+v", res)
	}
}
