// Package storage ships the built-in key-value backends the session
// store can persist through: process memory, JSON files and SQLite.
package storage

import (
	"sync"
	"time"
)

const defaultTTL = 30 * time.Minute

// MemoryStore is a thread-safe, TTL-based in-process store. A background
// goroutine periodically removes expired entries; expiry is also checked
// lazily on access.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	done    chan struct{}
	closed  bool
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store with the given default TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

func (s *MemoryStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) Pull(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	if time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) Put(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}
