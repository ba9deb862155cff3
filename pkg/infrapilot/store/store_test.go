package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func newStateStore(t *testing.T) *StateStore {
	t.Helper()
	s, err := OpenStateStore(filepath.Join(t.TempDir(), "state.json"), nil)
	if err != nil {
		t.Fatalf("OpenStateStore: %v", err)
	}
	return s
}

func TestResolveOrCreateIdempotent(t *testing.T) {
	s := newStateStore(t)

	next := 0
	create := func(context.Context) (string, error) {
		next++
		return fmt.Sprintf("thread-%d", next), nil
	}

	h1, err := s.ResolveOrCreate(context.Background(), "42", create)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	h2, err := s.ResolveOrCreate(context.Background(), "42", create)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if h1 != h2 {
		t.Errorf("resolve twice returned different handles: %q vs %q", h1, h2)
	}

	if err := s.Reset("42"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	h3, err := s.ResolveOrCreate(context.Background(), "42", create)
	if err != nil {
		t.Fatalf("resolve after reset: %v", err)
	}
	if h3 == h1 {
		t.Errorf("handle after reset should differ from the original, both %q", h3)
	}
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	s := newStateStore(t)

	var created int
	create := func(context.Context) (string, error) {
		created++
		return fmt.Sprintf("thread-%d", created), nil
	}

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := s.ResolveOrCreate(context.Background(), "7", create)
			if err != nil {
				t.Errorf("resolve: %v", err)
			}
			results[i] = h
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("create called %d times, want 1", created)
	}
	for i, h := range results {
		if h != results[0] {
			t.Errorf("result[%d] = %q, want %q", i, h, results[0])
		}
	}
}

func TestResolveOrCreateFailedFlushNotCached(t *testing.T) {
	s := newStateStore(t)

	_, err := s.ResolveOrCreate(context.Background(), "1", func(context.Context) (string, error) {
		return "", errors.New("engine down")
	})
	if err == nil {
		t.Fatal("expected error from failed create")
	}

	h, err := s.ResolveOrCreate(context.Background(), "1", func(context.Context) (string, error) {
		return "thread-ok", nil
	})
	if err != nil {
		t.Fatalf("resolve after failure: %v", err)
	}
	if h != "thread-ok" {
		t.Errorf("handle = %q, want thread-ok", h)
	}
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := OpenStateStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.ResolveOrCreate(context.Background(), "42", func(context.Context) (string, error) {
		return "thread-a", nil
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := s.SetTalking("42", true); err != nil {
		t.Fatalf("set talking: %v", err)
	}

	reopened, err := OpenStateStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	h, err := reopened.ResolveOrCreate(context.Background(), "42", func(context.Context) (string, error) {
		t.Fatal("create should not be called for a persisted handle")
		return "", nil
	})
	if err != nil {
		t.Fatalf("resolve on reopened store: %v", err)
	}
	if h != "thread-a" {
		t.Errorf("handle = %q, want thread-a", h)
	}
	if !reopened.Talking("42") {
		t.Error("talk mode not persisted")
	}
}

func newConfigStore(t *testing.T) *ConfigStore {
	t.Helper()
	s, err := OpenConfigStore(filepath.Join(t.TempDir(), "config.json"), nil, nil, nil)
	if err != nil {
		t.Fatalf("OpenConfigStore: %v", err)
	}
	return s
}

func TestFirstServerAutoSelected(t *testing.T) {
	s := newConfigStore(t)

	if err := s.AddOrReplaceServer("42", "web", Target{Host: "10.0.0.1", Port: 22, User: "deploy"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	target, err := s.ResolveSelected("42")
	if err != nil {
		t.Fatalf("resolve selected: %v", err)
	}
	if target.Host != "10.0.0.1" {
		t.Errorf("host = %q, want 10.0.0.1", target.Host)
	}
}

func TestOverwriteKeepsSelection(t *testing.T) {
	s := newConfigStore(t)

	mustAdd(t, s, "42", "web", "10.0.0.1")
	mustAdd(t, s, "42", "db", "10.0.0.2")
	if err := s.SelectServer("42", "web"); err != nil {
		t.Fatalf("select: %v", err)
	}

	// Overwriting an existing name must not steal the selection.
	mustAdd(t, s, "42", "db", "10.0.0.3")

	target, err := s.ResolveSelected("42")
	if err != nil {
		t.Fatalf("resolve selected: %v", err)
	}
	if target.Host != "10.0.0.1" {
		t.Errorf("selected host = %q, want 10.0.0.1", target.Host)
	}
}

func TestSelectUnknownName(t *testing.T) {
	s := newConfigStore(t)
	mustAdd(t, s, "42", "web", "10.0.0.1")

	if err := s.SelectServer("42", "nope"); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("select unknown = %v, want ErrNameNotFound", err)
	}
	if err := s.SelectServer("99", "web"); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("select for unknown chat = %v, want ErrNameNotFound", err)
	}
}

func TestDeleteSelectedReassigns(t *testing.T) {
	s := newConfigStore(t)

	mustAdd(t, s, "42", "web", "10.0.0.1")
	mustAdd(t, s, "42", "db", "10.0.0.2")
	mustAdd(t, s, "42", "cache", "10.0.0.3")
	if err := s.SelectServer("42", "db"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := s.DeleteServer("42", "db"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var selected string
	for _, e := range s.ListServers("42") {
		if e.Selected {
			selected = e.Name
		}
	}
	if selected == "" || selected == "db" {
		t.Errorf("selection after delete = %q, want one of the remaining targets", selected)
	}

	// Deleting everything clears the selection.
	if err := s.DeleteServer("42", "web"); err != nil {
		t.Fatalf("delete web: %v", err)
	}
	if err := s.DeleteServer("42", "cache"); err != nil {
		t.Fatalf("delete cache: %v", err)
	}
	if _, err := s.ResolveSelected("42"); !errors.Is(err, ErrNoServerConfigured) {
		t.Errorf("resolve after deleting all = %v, want ErrNoServerConfigured", err)
	}
}

func TestResolveSelectedFailureOrder(t *testing.T) {
	s := newConfigStore(t)

	if _, err := s.ResolveSelected("42"); !errors.Is(err, ErrNoServerConfigured) {
		t.Errorf("empty registry = %v, want ErrNoServerConfigured", err)
	}
}

func TestListOrderedByName(t *testing.T) {
	s := newConfigStore(t)
	mustAdd(t, s, "42", "web", "10.0.0.1")
	mustAdd(t, s, "42", "cache", "10.0.0.3")
	mustAdd(t, s, "42", "db", "10.0.0.2")

	entries := s.ListServers("42")
	want := []string{"cache", "db", "web"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Name != want[i] {
			t.Errorf("entries[%d] = %q, want %q", i, e.Name, want[i])
		}
	}
}

func TestGrantRevokeSignConvention(t *testing.T) {
	s := newConfigStore(t)

	if err := s.Grant(99952935); err != nil {
		t.Fatalf("grant user: %v", err)
	}
	if err := s.Grant(-1001234567890); err != nil {
		t.Fatalf("grant group: %v", err)
	}

	if !s.IsUserAllowed(99952935) {
		t.Error("user should be allowed after grant")
	}
	if !s.IsGroupAllowed(-1001234567890) {
		t.Error("group should be allowed after grant")
	}
	if s.IsGroupAllowed(99952935) || s.IsUserAllowed(-1001234567890) {
		t.Error("sign convention leaked across lists")
	}

	if err := s.Revoke(99952935); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if s.IsUserAllowed(99952935) {
		t.Error("user still allowed after revoke")
	}
}

func TestConfigPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	s, err := OpenConfigStore(path, []int64{1}, []int64{-2}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustAdd(t, s, "42", "web", "10.0.0.1")
	if err := s.Grant(77); err != nil {
		t.Fatalf("grant: %v", err)
	}

	reopened, err := OpenConfigStore(path, nil, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.IsUserAllowed(1) || !reopened.IsGroupAllowed(-2) || !reopened.IsUserAllowed(77) {
		t.Error("authorization lists not persisted")
	}
	if _, err := reopened.ResolveSelected("42"); err != nil {
		t.Errorf("server registry not persisted: %v", err)
	}
}

func mustAdd(t *testing.T, s *ConfigStore, chatID, name, host string) {
	t.Helper()
	if err := s.AddOrReplaceServer(chatID, name, Target{Host: host, Port: 22, User: "ops"}); err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
}
