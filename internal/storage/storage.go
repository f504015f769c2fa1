// Package storage is the Session Service's persistence layer: every
// types.Session document is stored as one JSON file under a path keyed by
// its SessionId, written through a per-file flock so two processes sharing
// a workspace directory never interleave a Put.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skcd-labs/sidecar-core/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
)

// sessionRoot is the storage subdirectory every session document lives
// under; kept as its own path segment so a later addition (e.g. per-user
// roots) only has to change how the segment is built, not every call site.
var sessionRoot = []string{"session"}

// Storage provides file-based JSON storage.
type Storage struct {
	basePath string
	mu       sync.RWMutex
	locks    map[string]*FileLock
}

// New creates a new Storage instance.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// pathToFile converts a path slice to a file path.
func (s *Storage) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

// pathToDir converts a path slice to a directory path.
func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get retrieves a value from storage.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	return nil
}

// Put stores a value in storage with file locking.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)

	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Acquire lock
	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	// Marshal data
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	// Write to temp file first, then rename (atomic operation)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath) // Clean up temp file
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Delete removes a value from storage.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	filePath := s.pathToFile(path)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil // Already deleted
	}

	// Acquire lock
	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// List returns all items at a path.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}

	return items, nil
}

// Scan iterates over all items at a path.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Nothing to scan
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		filePath := filepath.Join(dirPath, name)
		data, err := os.ReadFile(filePath)
		if err != nil {
			continue // Skip files that can't be read
		}

		key := strings.TrimSuffix(name, ".json")
		if err := fn(key, json.RawMessage(data)); err != nil {
			return err
		}
	}

	return nil
}

// Exists checks if a path exists.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	filePath := s.pathToFile(path)
	_, err := os.Stat(filePath)
	return err == nil
}

// getLock returns a file lock for a path.
func (s *Storage) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}

	return lock
}

// SessionStore narrows the generic path-slice Storage to the one shape the
// Session Service needs: documents keyed by types.SessionId under
// sessionRoot. sessionservice.Service talks to this instead of building its
// own path slices, so the on-disk layout lives in one place.
type SessionStore struct {
	*Storage
}

// NewSessionStore opens (or creates) the session document store rooted at
// basePath.
func NewSessionStore(basePath string) *SessionStore {
	return &SessionStore{Storage: New(basePath)}
}

func sessionKey(id types.SessionId) []string {
	return append(append([]string{}, sessionRoot...), string(id))
}

// Load reads id's session document into v, returning ErrNotFound if no
// session with that id has been saved yet.
func (s *SessionStore) Load(ctx context.Context, id types.SessionId, v any) error {
	return s.Get(ctx, sessionKey(id), v)
}

// Save writes v as id's session document, replacing any prior version.
func (s *SessionStore) Save(ctx context.Context, id types.SessionId, v any) error {
	return s.Put(ctx, sessionKey(id), v)
}

// Delete removes id's session document, if any.
func (s *SessionStore) Delete(ctx context.Context, id types.SessionId) error {
	return s.Storage.Delete(ctx, sessionKey(id))
}

// ListSessionIDs returns every session id with a document on disk.
func (s *SessionStore) ListSessionIDs(ctx context.Context) ([]types.SessionId, error) {
	names, err := s.List(ctx, sessionRoot)
	if err != nil {
		return nil, err
	}
	ids := make([]types.SessionId, 0, len(names))
	for _, name := range names {
		ids = append(ids, types.SessionId(name))
	}
	return ids, nil
}
