package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"botkit/internal/domain"
)

// Every backend must satisfy the same contract.
var _ domain.Storage = (*MemoryStore)(nil)
var _ domain.Storage = (*FileStore)(nil)
var _ domain.Storage = (*SQLiteStore)(nil)

func backends(t *testing.T) map[string]domain.Storage {
	t.Helper()
	mem := NewMemoryStore(time.Minute)
	t.Cleanup(mem.Close)

	file, err := NewFileStore(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	lite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), time.Minute, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { lite.Close() })

	return map[string]domain.Storage{"memory": mem, "file": file, "sqlite": lite}
}

func TestContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if s.Has("k") {
				t.Fatal("fresh store must be empty")
			}
			if err := s.Put("k", []byte("v1"), time.Minute); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, ok := s.Get("k")
			if !ok || !bytes.Equal(got, []byte("v1")) {
				t.Fatalf("Get = %q, %v", got, ok)
			}

			// Put overwrites.
			if err := s.Put("k", []byte("v2"), time.Minute); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if got, _ := s.Get("k"); !bytes.Equal(got, []byte("v2")) {
				t.Fatalf("Get after overwrite = %q", got)
			}

			// Pull removes.
			got, ok = s.Pull("k")
			if !ok || !bytes.Equal(got, []byte("v2")) {
				t.Fatalf("Pull = %q, %v", got, ok)
			}
			if s.Has("k") {
				t.Fatal("key survived Pull")
			}
			if _, ok := s.Pull("k"); ok {
				t.Fatal("second Pull must miss")
			}
		})
	}
}

func TestExpiry(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put("k", []byte("v"), time.Nanosecond); err != nil {
				t.Fatalf("Put: %v", err)
			}
			time.Sleep(5 * time.Millisecond)
			if s.Has("k") {
				t.Fatal("expired key still visible")
			}
		})
	}
}

func TestFileStoreSkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, time.Minute)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Put("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.WriteFile(s.path("k"), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if s.Has("k") {
		t.Fatal("malformed entry must read as a miss")
	}
}

func TestFileStoreKeysAreFilesystemSafe(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, time.Minute)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key := "../weird/..\\key with spaces/and:colons"
	if err := s.Put(key, []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := s.Get(key)
	if !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Put("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = NewSQLiteStore(path, time.Minute, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, ok := s.Get("k")
	if !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get after reopen = %q, %v", got, ok)
	}
}
