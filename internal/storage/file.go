package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps posted titles in a JSON file, rewritten on every Add.
type FileStore struct {
	filePath string
	ttl      time.Duration
	items    map[string]Record
	mu       sync.RWMutex
	now      func() time.Time
}

func NewFileStore(filePath string, ttl time.Duration) *FileStore {
	return &FileStore{
		filePath: filePath,
		ttl:      ttl,
		items:    make(map[string]Record),
		now:      time.Now,
	}
}

// Load reads the file, skipping expired records. A missing or empty
// file is an empty store.
func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var items []Record
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to unmarshal store file: %w", err)
	}

	limit := cutoff(fs.now(), fs.ttl)
	for _, item := range items {
		if item.PostedAt.After(limit) {
			fs.items[item.Title] = item
		}
	}
	return nil
}

// save writes to a temp file and renames it over the store. Callers hold fs.mu.
func (fs *FileStore) save() error {
	items := make([]Record, 0, len(fs.items))
	for _, item := range fs.items {
		items = append(items, item)
	}
	items = newestFirst(items, 0)

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fs.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return os.Rename(tmp, fs.filePath)
}

func (fs *FileStore) Contains(_ context.Context, title string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	item, ok := fs.items[title]
	if !ok {
		return false, nil
	}
	return item.PostedAt.After(cutoff(fs.now(), fs.ttl)), nil
}

func (fs *FileStore) Add(_ context.Context, rec Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if rec.PostedAt.IsZero() {
		rec.PostedAt = fs.now()
	}
	fs.items[rec.Title] = rec
	fs.cleanup()
	return fs.save()
}

func (fs *FileStore) Recent(_ context.Context, limit int) ([]Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]Record, 0, len(fs.items))
	for _, r := range fs.items {
		out = append(out, r)
	}
	return newestFirst(out, limit), nil
}

func (fs *FileStore) Len(_ context.Context) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.items), nil
}

func (fs *FileStore) Close() error { return nil }

// cleanup removes expired items. Callers hold fs.mu.
func (fs *FileStore) cleanup() {
	limit := cutoff(fs.now(), fs.ttl)
	for title, item := range fs.items {
		if !item.PostedAt.After(limit) {
			delete(fs.items, title)
		}
	}
}
