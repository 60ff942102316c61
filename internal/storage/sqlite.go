package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists keys in a SQLite database, so pending conversation
// state survives restarts and is shared by every process on the host.
type SQLiteStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, ttl time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, ttl: ttl, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	store.prune()
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_entries (
		key         TEXT PRIMARY KEY,
		value       BLOB NOT NULL,
		expires_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv_entries(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *SQLiteStore) Get(key string) ([]byte, bool) {
	var value []byte
	var expiresAt time.Time
	err := s.db.QueryRow(
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("storage read failed", "key", key, "err", err)
		return nil, false
	}
	if time.Now().After(expiresAt) {
		s.delete(key)
		return nil, false
	}
	return value, true
}

func (s *SQLiteStore) Pull(key string) ([]byte, bool) {
	value, ok := s.Get(key)
	s.delete(key)
	return value, ok
}

func (s *SQLiteStore) Put(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	_, err := s.db.Exec(
		`INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, time.Now().Add(ttl),
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) delete(key string) {
	if _, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		s.logger.Warn("storage delete failed", "key", key, "err", err)
	}
}

func (s *SQLiteStore) prune() {
	res, err := s.db.Exec(`DELETE FROM kv_entries WHERE expires_at < ?`, time.Now())
	if err != nil {
		s.logger.Warn("storage prune failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("pruned expired entries", "count", n)
	}
}
