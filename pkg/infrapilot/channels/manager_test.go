package channels

import (
	"context"
	"testing"
)

// fakeChannel is a minimal Channel for manager tests.
type fakeChannel struct {
	name      string
	connected bool
	sent      []string
}

func (f *fakeChannel) Name() string                     { return f.name }
func (f *fakeChannel) Connect(context.Context) error    { f.connected = true; return nil }
func (f *fakeChannel) Disconnect() error                { f.connected = false; return nil }
func (f *fakeChannel) IsConnected() bool                { return f.connected }
func (f *fakeChannel) Receive() <-chan *IncomingMessage { return nil }

func (f *fakeChannel) Health() HealthStatus {
	return HealthStatus{Connected: f.connected}
}

func (f *fakeChannel) Send(_ context.Context, _ string, m *OutgoingMessage) error {
	f.sent = append(f.sent, m.Content)
	return nil
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	m := NewManager(nil)
	if err := m.Register(&fakeChannel{name: "telegram"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(&fakeChannel{name: "telegram"}); err == nil {
		t.Error("duplicate channel name should be rejected")
	}
}

func TestSendRequiresConnectedChannel(t *testing.T) {
	m := NewManager(nil)
	ch := &fakeChannel{name: "telegram"}
	if err := m.Register(ch); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Send(context.Background(), "telegram", "42", &OutgoingMessage{Content: "hi"}); err == nil {
		t.Error("send on a disconnected channel should fail")
	}

	ch.connected = true
	if err := m.Send(context.Background(), "telegram", "42", &OutgoingMessage{Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "hi" {
		t.Errorf("sent = %q, want [\"hi\"]", ch.sent)
	}

	if err := m.Send(context.Background(), "discord", "42", &OutgoingMessage{Content: "x"}); err == nil {
		t.Error("send to an unregistered channel should fail")
	}
}

func TestHealthAll(t *testing.T) {
	m := NewManager(nil)
	if err := m.Register(&fakeChannel{name: "telegram", connected: true}); err != nil {
		t.Fatalf("register telegram: %v", err)
	}
	if err := m.Register(&fakeChannel{name: "discord"}); err != nil {
		t.Fatalf("register discord: %v", err)
	}

	statuses := m.HealthAll()
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if !statuses["telegram"].Connected || statuses["discord"].Connected {
		t.Error("health should reflect per-channel connection state")
	}
}
