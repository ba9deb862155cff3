// config.go implements the configuration state document: authorization
// lists and per-chat server registries.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Target is a named remote host an operator can select for command
// execution. Targets are only ever mutated through registry commands,
// never by the conversation orchestrator.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
}

// ServerEntry is one row of a chat's server listing.
type ServerEntry struct {
	Name     string
	Target   Target
	Selected bool
}

// chatServers holds one chat's registry: the selected target name and the
// name → target mapping. Invariant: Selected is either empty or keys an
// existing entry in Targets.
type chatServers struct {
	Selected string            `json:"selected"`
	Targets  map[string]Target `json:"targets"`
}

// configDoc is the on-disk shape of the configuration state document.
type configDoc struct {
	// Users are authorized individual identities.
	Users []int64 `json:"users"`

	// Groups are authorized group identities.
	Groups []int64 `json:"groups"`

	// Servers maps chat ID → server registry.
	Servers map[string]*chatServers `json:"servers"`
}

// ConfigStore owns the authorization registry and the per-chat server
// registries. All mutations flush the whole document before returning.
type ConfigStore struct {
	path   string
	logger *slog.Logger

	users   map[int64]bool
	groups  map[int64]bool
	servers map[string]*chatServers
	mu      sync.Mutex
}

// OpenConfigStore loads (or initializes) the configuration document at path.
// seedUsers and seedGroups come from the YAML config and are merged in on
// first load; runtime grants take precedence afterwards.
func OpenConfigStore(path string, seedUsers, seedGroups []int64, logger *slog.Logger) (*ConfigStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var doc configDoc
	if err := loadJSON(path, &doc); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		path:    path,
		logger:  logger.With("component", "config-store"),
		users:   make(map[int64]bool),
		groups:  make(map[int64]bool),
		servers: doc.Servers,
	}
	if s.servers == nil {
		s.servers = make(map[string]*chatServers)
	}
	for _, id := range doc.Users {
		s.users[id] = true
	}
	for _, id := range doc.Groups {
		s.groups[id] = true
	}
	for _, id := range seedUsers {
		s.users[id] = true
	}
	for _, id := range seedGroups {
		s.groups[id] = true
	}

	s.logger.Info("configuration state loaded",
		"path", path,
		"users", len(s.users),
		"groups", len(s.groups),
		"chats_with_servers", len(s.servers),
	)
	return s, nil
}

// ---------- Authorization registry ----------

// IsUserAllowed reports whether an individual identity is authorized.
func (s *ConfigStore) IsUserAllowed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// IsGroupAllowed reports whether a group identity is authorized.
func (s *ConfigStore) IsGroupAllowed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[id]
}

// Grant authorizes an identity. By convention a non-negative ID is an
// individual and a negative ID a group (Telegram group chat IDs are
// negative).
func (s *ConfigStore) Grant(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= 0 {
		s.users[id] = true
	} else {
		s.groups[id] = true
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.logger.Info("access granted", "id", id, "group", id < 0)
	return nil
}

// Revoke removes an identity using the same sign convention as Grant.
func (s *ConfigStore) Revoke(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= 0 {
		delete(s.users, id)
	} else {
		delete(s.groups, id)
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.logger.Info("access revoked", "id", id, "group", id < 0)
	return nil
}

// ---------- Server registry ----------

// AddOrReplaceServer inserts or overwrites the named target for a chat.
// Storing a target under a brand-new name also selects it, so the chat's
// first target is always the selected one.
func (s *ConfigStore) AddOrReplaceServer(chatID, name string, target Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.servers[chatID]
	if cs == nil {
		cs = &chatServers{Targets: make(map[string]Target)}
		s.servers[chatID] = cs
	}

	_, existed := cs.Targets[name]
	cs.Targets[name] = target
	if !existed {
		cs.Selected = name
	}

	if err := s.flushLocked(); err != nil {
		return err
	}
	s.logger.Info("server saved",
		"chat_id", chatID, "name", name,
		"host", target.Host, "port", target.Port, "selected", cs.Selected == name)
	return nil
}

// SelectServer marks the named target as selected for the chat.
func (s *ConfigStore) SelectServer(chatID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.servers[chatID]
	if cs == nil {
		return fmt.Errorf("%w: %q", ErrNameNotFound, name)
	}
	if _, ok := cs.Targets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNameNotFound, name)
	}

	cs.Selected = name
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.logger.Info("server selected", "chat_id", chatID, "name", name)
	return nil
}

// DeleteServer removes the named target. If it was selected, the selection
// moves to one of the remaining targets (first by name) or becomes empty,
// preserving the selection-keys-an-existing-entry invariant.
func (s *ConfigStore) DeleteServer(chatID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.servers[chatID]
	if cs == nil {
		return fmt.Errorf("%w: %q", ErrNameNotFound, name)
	}
	if _, ok := cs.Targets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNameNotFound, name)
	}

	delete(cs.Targets, name)
	if cs.Selected == name {
		cs.Selected = ""
		names := make([]string, 0, len(cs.Targets))
		for n := range cs.Targets {
			names = append(names, n)
		}
		if len(names) > 0 {
			sort.Strings(names)
			cs.Selected = names[0]
		}
	}

	if err := s.flushLocked(); err != nil {
		return err
	}
	s.logger.Info("server deleted",
		"chat_id", chatID, "name", name, "new_selected", cs.Selected)
	return nil
}

// ResolveSelected returns the chat's selected target. The failure order is
// fixed: no registry entry at all, then no selection, then a selection that
// no longer keys an existing target.
func (s *ConfigStore) ResolveSelected(chatID string) (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.servers[chatID]
	if cs == nil || len(cs.Targets) == 0 {
		return Target{}, ErrNoServerConfigured
	}
	if cs.Selected == "" {
		return Target{}, ErrNoServerSelected
	}
	target, ok := cs.Targets[cs.Selected]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrTargetMissing, cs.Selected)
	}
	return target, nil
}

// ListServers returns the chat's targets ordered by name.
func (s *ConfigStore) ListServers(chatID string) []ServerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.servers[chatID]
	if cs == nil {
		return nil
	}

	names := make([]string, 0, len(cs.Targets))
	for n := range cs.Targets {
		names = append(names, n)
	}
	sort.Strings(names)

	entries := make([]ServerEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, ServerEntry{
			Name:     n,
			Target:   cs.Targets[n],
			Selected: n == cs.Selected,
		})
	}
	return entries
}

// flushLocked rewrites the whole document. Caller holds s.mu.
func (s *ConfigStore) flushLocked() error {
	doc := configDoc{
		Users:   sortedIDs(s.users),
		Groups:  sortedIDs(s.groups),
		Servers: s.servers,
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling configuration state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
