package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalState is the cached document snapshot a client carries between runs.
// A zero Timestamp means the client has never completed a sync and must
// adopt whatever the server holds.
type LocalState struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// LocalStore persists LocalState as a JSON file next to the watched
// document, written atomically so a crash never leaves a torn snapshot.
type LocalStore struct {
	path string
}

// NewLocalStore validates the target path and builds the store.
func NewLocalStore(path string) (*LocalStore, error) {
	if path == "" {
		return nil, errors.New("local store path must be provided")
	}
	return &LocalStore{path: path}, nil
}

// Load reads the cached state. A missing file yields the zero state.
func (s *LocalStore) Load() (LocalState, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return LocalState{}, nil
	}
	if err != nil {
		return LocalState{}, fmt.Errorf("localstore: failed to read %s: %w", s.path, err)
	}

	var state LocalState
	if err := json.Unmarshal(raw, &state); err != nil {
		return LocalState{}, fmt.Errorf("localstore: failed to decode %s: %w", s.path, err)
	}
	if state.Timestamp < 0 {
		return LocalState{}, fmt.Errorf("localstore: %s carries a negative timestamp", s.path)
	}
	return state, nil
}

// Save writes the state via a temporary file and rename.
func (s *LocalStore) Save(state LocalState) error {
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("localstore: failed to encode state: %w", err)
	}

	directory := filepath.Dir(s.path)
	temporary, err := os.CreateTemp(directory, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("localstore: failed to create temporary file: %w", err)
	}
	temporaryPath := temporary.Name()

	if _, err := temporary.Write(encoded); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("localstore: failed to write state: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("localstore: failed to close temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("localstore: failed to replace %s: %w", s.path, err)
	}
	return nil
}
