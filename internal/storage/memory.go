package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/newsbot/internal/cache"
)

// MemoryStore lives for the process only; a restart forgets every title.
type MemoryStore struct {
	set *cache.Set
	now func() time.Time

	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return newMemoryStore(ttl, time.Now)
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	return &MemoryStore{
		set:     cache.NewWithClock(ttl, now),
		now:     now,
		records: make(map[string]Record),
	}
}

func (m *MemoryStore) Contains(_ context.Context, title string) (bool, error) {
	return m.set.Has(title), nil
}

func (m *MemoryStore) Add(_ context.Context, rec Record) error {
	if rec.PostedAt.IsZero() {
		rec.PostedAt = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	m.records[rec.Title] = rec
	m.set.Add(rec.Title)
	return nil
}

// pruneLocked drops records whose title has expired. m.mu must be held.
func (m *MemoryStore) pruneLocked() {
	m.set.Cleanup()
	for title := range m.records {
		if !m.set.Has(title) {
			delete(m.records, title)
		}
	}
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for title, r := range m.records {
		if m.set.Has(title) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	return newestFirst(out, limit), nil
}

func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return m.set.Len(), nil
}

func (m *MemoryStore) Close() error {
	m.set.Close()
	return nil
}

func newestFirst(recs []Record, limit int) []Record {
	sort.Slice(recs, func(i, j int) bool { return recs[i].PostedAt.After(recs[j].PostedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
