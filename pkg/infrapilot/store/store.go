// Package store implements InfraPilot's durable state: two independent
// JSON documents, each rewritten atomically as a whole on every mutation.
//
//   - StateStore:  conversation handles and talk-mode flags per chat.
//   - ConfigStore: authorization lists and per-chat server registries.
//
// Every mutation holds the store's writer lock across the
// read-modify-write-flush cycle, so concurrent turns from different chats
// can never lose an update.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Registry and resolution errors, checked with errors.Is by callers.
var (
	// ErrNameNotFound is returned when selecting or deleting a server name
	// that does not exist for the chat.
	ErrNameNotFound = errors.New("server name not found")

	// ErrNoServerConfigured is returned when a chat has no server registry
	// entry at all.
	ErrNoServerConfigured = errors.New("no server configured for this chat")

	// ErrNoServerSelected is returned when a chat has targets but none is
	// selected.
	ErrNoServerSelected = errors.New("no server selected for this chat")

	// ErrTargetMissing is returned when the selected name no longer keys an
	// existing target (selection and registry drifted).
	ErrTargetMissing = errors.New("selected server target is missing")
)

// writeFileAtomic rewrites path with data via a temp file + rename, so a
// crash mid-write never leaves a truncated document behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// loadJSON reads path into v. A missing file is not an error; the caller
// starts with an empty document.
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
