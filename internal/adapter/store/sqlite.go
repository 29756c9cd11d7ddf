package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"conduit-ai/internal/domain"
)

// SQLite implements domain.StateStore over a single-file database.
// Values are stored as JSON so the schema never changes when callers
// evolve their state shapes.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the state database at path.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("%w: create dir: %v", domain.ErrStateStore, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrStateStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrStateStore, err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrStateStore, err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements domain.StateStore.
func (s *SQLite) Get(key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM kv_state WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %q: %v", domain.ErrStateStore, key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%w: decode %q: %v", domain.ErrStateStore, key, err)
	}
	return true, nil
}

// Set implements domain.StateStore.
func (s *SQLite) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %v", domain.ErrStateStore, key, err)
	}
	if _, err := s.db.Exec(
		"INSERT INTO kv_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, string(raw),
	); err != nil {
		return fmt.Errorf("%w: set %q: %v", domain.ErrStateStore, key, err)
	}
	return nil
}

// Has implements domain.StateStore.
func (s *SQLite) Has(key string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM kv_state WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: has %q: %v", domain.ErrStateStore, key, err)
	}
	return true, nil
}

// Delete implements domain.StateStore.
func (s *SQLite) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: delete %q: %v", domain.ErrStateStore, key, err)
	}
	return nil
}

// Keys implements domain.StateStore.
func (s *SQLite) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT key FROM kv_state WHERE key LIKE ? ORDER BY key",
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: keys %q: %v", domain.ErrStateStore, prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: scan key: %v", domain.ErrStateStore, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
