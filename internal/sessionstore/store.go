// Package sessionstore persists the client's current session record across process restarts.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"covid-dashboard/platform/internal/session/domain"
)

// StorageKey is the key the session record is stored under.
const StorageKey = "authUser"

// ErrCorrupt is returned by Load when the stored record cannot be decoded.
var ErrCorrupt = errors.New("sessionstore: stored session is corrupt")

// MemoryStore is an in-memory store. The zero value is ready to use.
type MemoryStore struct {
	mu  sync.Mutex
	rec *domain.Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored session, or nil if none is stored.
func (s *MemoryStore) Load() (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	c := *s.rec
	return &c, nil
}

// Save replaces the stored session.
func (s *MemoryStore) Save(sess *domain.Session) error {
	if sess == nil {
		return s.Clear()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sess
	s.rec = &c
	return nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}

// FileStore keeps records in a JSON object file keyed like browser local storage,
// so other keys written by other tools survive a Save or Clear.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore backed by path. If path is empty the default
// location under the user's config directory is used.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileStore{path: path}, nil
}

// DefaultPath returns <user config dir>/covid-dashboard/session.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("sessionstore: locate config dir: %w", err)
	}
	return filepath.Join(dir, "covid-dashboard", "session.json"), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored session, or (nil, nil) when the file or key is absent.
func (s *FileStore) Load() (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	raw, ok := entries[StorageKey]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, ErrCorrupt
	}
	return &sess, nil
}

// Save writes sess under StorageKey, replacing any previous record.
func (s *FileStore) Save(sess *domain.Session) error {
	if sess == nil {
		return s.Clear()
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readLocked()
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		entries = map[string]json.RawMessage{}
	}
	entries[StorageKey] = raw
	return s.writeLocked(entries)
}

// Clear removes the record. The file is deleted when no other keys remain.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readLocked()
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			return removeIfExists(s.path)
		}
		return err
	}
	if _, ok := entries[StorageKey]; !ok {
		return nil
	}
	delete(entries, StorageKey)
	if len(entries) == 0 {
		return removeIfExists(s.path)
	}
	return s.writeLocked(entries)
}

func (s *FileStore) readLocked() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("sessionstore: read %s: %w", s.path, err)
	}
	entries := map[string]json.RawMessage{}
	if len(b) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, ErrCorrupt
	}
	return entries, nil
}

// writeLocked replaces the file atomically via a temp file in the same directory.
func (s *FileStore) writeLocked(entries map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("sessionstore: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("sessionstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("sessionstore: replace %s: %w", s.path, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
