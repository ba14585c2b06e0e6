// Package cache is an in-memory string set whose members can expire.
package cache

import (
	"sync"
	"time"
)

type item struct {
	expiresAt time.Time // zero means never
}

// Set holds keys with an optional time-to-live. A zero TTL keeps keys
// for the lifetime of the Set.
type Set struct {
	mu    sync.RWMutex
	items map[string]item
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

func New(ttl time.Duration) *Set {
	return NewWithClock(ttl, time.Now)
}

// NewWithClock is New with expiry measured against now.
func NewWithClock(ttl time.Duration, now func() time.Time) *Set {
	s := &Set{
		items: make(map[string]item),
		ttl:   ttl,
		now:   now,
		stop:  make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanupLoop(cleanupInterval(ttl))
	}
	return s
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < time.Hour {
		return ttl
	}
	return time.Hour
}

// Add inserts key, refreshing its expiry when already present.
func (s *Set) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var it item
	if s.ttl > 0 {
		it.expiresAt = s.now().Add(s.ttl)
	}
	s.items[key] = it
}

// Has reports whether key is present and unexpired.
func (s *Set) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[key]
	if !ok {
		return false
	}
	return it.expiresAt.IsZero() || s.now().Before(it.expiresAt)
}

// Len counts members, including expired ones not yet swept.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close stops the background sweeper.
func (s *Set) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Set) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stop:
			return
		}
	}
}

// Cleanup drops expired members.
func (s *Set) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, it := range s.items {
		if !it.expiresAt.IsZero() && !now.Before(it.expiresAt) {
			delete(s.items, key)
		}
	}
}
