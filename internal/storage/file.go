package storage

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps one JSON file per key in a directory. Suitable for
// single-host deployments without an external cache.
type FileStore struct {
	dir string
	ttl time.Duration
}

type fileEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create storage directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, ttl: ttl}, nil
}

func (s *FileStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *FileStore) Get(key string) ([]byte, bool) {
	e, ok := s.read(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.ExpiresAt) {
		os.Remove(s.path(key))
		return nil, false
	}
	return e.Value, true
}

func (s *FileStore) Pull(key string) ([]byte, bool) {
	value, ok := s.Get(key)
	os.Remove(s.path(key))
	return value, ok
}

func (s *FileStore) Put(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(fileEntry{Value: value, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(key), data, 0o600)
}

func (s *FileStore) read(key string) (fileEntry, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return fileEntry{}, false
	}
	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		// Skip malformed entries instead of failing the dispatch.
		return fileEntry{}, false
	}
	return e, true
}

func (s *FileStore) path(key string) string {
	// Keys are hashed so arbitrary identifiers stay filesystem-safe.
	sum := md5.Sum([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}
