// state.go implements the session state document: one conversation handle
// and one talk-mode flag per chat.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// stateDoc is the on-disk shape of the session state document.
type stateDoc struct {
	// Threads maps chat ID → conversation handle.
	Threads map[string]string `json:"threads"`

	// Talking maps chat ID → talk-mode flag.
	Talking map[string]bool `json:"talking"`
}

// StateStore owns ChatSession state. All mutations flush the whole document
// to disk before returning.
type StateStore struct {
	path   string
	logger *slog.Logger

	data stateDoc
	mu   sync.Mutex
}

// OpenStateStore loads (or initializes) the session state document at path.
func OpenStateStore(path string, logger *slog.Logger) (*StateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &StateStore{
		path:   path,
		logger: logger.With("component", "state-store"),
		data: stateDoc{
			Threads: make(map[string]string),
			Talking: make(map[string]bool),
		},
	}

	if err := loadJSON(path, &s.data); err != nil {
		return nil, err
	}
	if s.data.Threads == nil {
		s.data.Threads = make(map[string]string)
	}
	if s.data.Talking == nil {
		s.data.Talking = make(map[string]bool)
	}

	s.logger.Info("session state loaded",
		"path", path,
		"threads", len(s.data.Threads),
	)
	return s, nil
}

// ResolveOrCreate returns the chat's conversation handle, calling create to
// allocate one if the chat has none. Creation is serialized under the store
// lock, so two concurrent resolves for the same chat can never race-create
// two handles; the new handle is flushed before the call returns.
func (s *StateStore) ResolveOrCreate(ctx context.Context, chatID string, create func(context.Context) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handle, ok := s.data.Threads[chatID]; ok {
		return handle, nil
	}

	handle, err := create(ctx)
	if err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}

	s.data.Threads[chatID] = handle
	if err := s.flushLocked(); err != nil {
		// Undo so a retry is not left believing the handle was persisted.
		delete(s.data.Threads, chatID)
		return "", err
	}

	s.logger.Info("conversation created", "chat_id", chatID, "handle", handle)
	return handle, nil
}

// Reset discards the chat's conversation handle. The next ResolveOrCreate
// allocates a fresh one. Used to bound unbounded conversation growth.
func (s *StateStore) Reset(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Threads[chatID]; !ok {
		return nil
	}
	delete(s.data.Threads, chatID)
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.logger.Info("conversation reset", "chat_id", chatID)
	return nil
}

// SetTalking sets the chat's talk-mode flag and flushes.
func (s *StateStore) SetTalking(chatID string, talking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.data.Talking[chatID]; ok && cur == talking {
		return nil
	}
	s.data.Talking[chatID] = talking
	return s.flushLocked()
}

// Talking returns the chat's talk-mode flag.
func (s *StateStore) Talking(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Talking[chatID]
}

// flushLocked rewrites the whole document. Caller holds s.mu.
func (s *StateStore) flushLocked() error {
	data, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
