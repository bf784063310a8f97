package client

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreMissingFileYieldsZeroState(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if state.Content != "" || state.Timestamp != 0 {
		t.Fatalf("expected zero state, got %#v", state)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	saved := LocalState{Content: "- persisted task", Timestamp: 4242}
	if err := store.Save(saved); err != nil {
		t.Fatalf("save returned error: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if loaded != saved {
		t.Fatalf("round trip mismatch: saved %#v, loaded %#v", saved, loaded)
	}
}

func TestLocalStoreSaveReplacesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewLocalStore(path)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	if err := store.Save(LocalState{Content: "- old", Timestamp: 1}); err != nil {
		t.Fatalf("first save returned error: %v", err)
	}
	if err := store.Save(LocalState{Content: "- new", Timestamp: 2}); err != nil {
		t.Fatalf("second save returned error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if loaded.Content != "- new" || loaded.Timestamp != 2 {
		t.Fatalf("expected latest snapshot, got %#v", loaded)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("failed to list directory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temporary files, found %d entries", len(entries))
	}
}

func TestLocalStoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to seed corrupt file: %v", err)
	}
	store, err := NewLocalStore(path)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	if _, err := store.Load(); err == nil {
		t.Fatal("expected corrupt snapshot to be rejected")
	}
}

func TestLocalStoreRejectsNegativeTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"content":"x","timestamp":-9}`), 0o600); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	store, err := NewLocalStore(path)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	if _, err := store.Load(); err == nil {
		t.Fatal("expected negative timestamp to be rejected")
	}
}
