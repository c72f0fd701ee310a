// Package settings persists per-user boolean flags, such as the one-time
// backfill completion markers, as a JSON file in the data directory.
//
// The CLI and the daemon can run concurrently against the same data dir, so
// the store watches its file with fsnotify and reloads when another process
// rewrites it. Writes go through an atomic temp-file rename.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Well-known flag keys.
const (
	KeyFullBackfillComplete    = "full_backfill_complete"
	KeyDueDateBackfillComplete = "due_date_backfill_complete"
)

// Store holds per-user boolean flags backed by a JSON file.
type Store struct {
	path   string
	logger *log.Logger

	mu    sync.Mutex
	flags map[string]bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// Open loads (or creates) the flags file at path and starts watching it for
// external changes. If logger is nil, a default stderr logger is used.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[settings] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	s := &Store{
		path:   path,
		logger: logger,
		flags:  make(map[string]bool),
		done:   make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	// Watch the parent directory: atomic renames replace the file node, so
	// watching the file itself would drop events after the first write.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create settings watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch settings directory: %w", err)
	}
	s.watcher = watcher

	s.wg.Add(1)
	go s.watchEvents()

	return s, nil
}

// Close stops the file watcher.
func (s *Store) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

// Bool returns the flag value for the given user and key. Missing flags are
// false.
func (s *Store) Bool(userID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[flagKey(userID, key)]
}

// SetBool sets a flag and persists the file.
func (s *Store) SetBool(userID, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags[flagKey(userID, key)] = value
	return s.save()
}

func flagKey(userID, key string) string {
	return userID + "." + key
}

// load reads the flags file. A missing file is an empty store.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	flags := make(map[string]bool)
	if err := json.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.flags = flags
	s.mu.Unlock()
	return nil
}

// save writes the flags atomically via a temp file. Caller holds s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.flags, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp settings file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename settings file: %w", err)
	}

	return nil
}

// watchEvents reloads the flags file when another process rewrites it.
func (s *Store) watchEvents() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.load(); err != nil {
				s.logger.Printf("Failed to reload settings: %v", err)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("Settings watcher error: %v", err)
		}
	}
}
