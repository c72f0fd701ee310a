package settings

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to open settings store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBool_DefaultsFalse(t *testing.T) {
	s := testStore(t, filepath.Join(t.TempDir(), "settings.json"))

	if s.Bool("user-1", KeyFullBackfillComplete) {
		t.Error("missing flag reported true")
	}
}

func TestSetBool_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s := testStore(t, path)
	if err := s.SetBool("user-1", KeyFullBackfillComplete, true); err != nil {
		t.Fatalf("SetBool failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testStore(t, path)
	if !reopened.Bool("user-1", KeyFullBackfillComplete) {
		t.Error("flag lost across reopen")
	}
	if reopened.Bool("user-2", KeyFullBackfillComplete) {
		t.Error("flag leaked across users")
	}
	if reopened.Bool("user-1", KeyDueDateBackfillComplete) {
		t.Error("flag leaked across keys")
	}
}

func TestOpen_MissingFileIsEmptyStore(t *testing.T) {
	s := testStore(t, filepath.Join(t.TempDir(), "does-not-exist-yet.json"))

	if s.Bool("user-1", KeyDueDateBackfillComplete) {
		t.Error("empty store reported a set flag")
	}
}

func TestOpen_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	if _, err := Open(path, log.New(io.Discard, "", 0)); err == nil {
		t.Error("Open() accepted a corrupt settings file")
	}
}

func TestWatch_ReloadsExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := testStore(t, path)

	// Simulate another process writing the file with the same atomic
	// temp-file rename the store itself uses.
	tmp := path + ".other"
	if err := os.WriteFile(tmp, []byte(`{"user-1.full_backfill_complete": true}`), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("failed to rename: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Bool("user-1", KeyFullBackfillComplete) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("external write not picked up by the watcher")
}

func TestClose_Idempotent(t *testing.T) {
	s := testStore(t, filepath.Join(t.TempDir(), "settings.json"))

	if err := s.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
