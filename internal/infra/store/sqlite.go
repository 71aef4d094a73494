// Package store persists application state in a local SQLite database. It
// exposes a small key/value surface; callers define what the values mean.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schemaVersion = 1

// DB is a durable key/value store backed by SQLite. Writes are atomic per
// key; a crash mid-write never leaves a torn value.
type DB struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or opens the store at path, creating parent directories and
// migrating the schema as needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	s := &DB{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Store opened")
	return s, nil
}

func (s *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS keyval (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		)`,
		fmt.Sprintf(`INSERT INTO store_meta (id, schema_version) VALUES (1, %d)
			ON CONFLICT(id) DO UPDATE SET schema_version = %d`, schemaVersion, schemaVersion),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
	}
	return nil
}

// Put stores raw bytes under key, replacing any previous value.
func (s *DB) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO keyval (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("putting %q: %w", key, err)
	}
	return nil
}

// Get retrieves the bytes stored under key. found is false when the key has
// never been written.
func (s *DB) Get(key string) (value []byte, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT value FROM keyval WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getting %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *DB) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM keyval WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

// PutJSON marshals v and stores it under key.
func (s *DB) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return s.Put(key, data)
}

// GetJSON unmarshals the value under key into v. found is false when the
// key is absent, in which case v is untouched.
func (s *DB) GetJSON(key string, v any) (found bool, err error) {
	data, found, err := s.Get(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// Close closes the underlying database.
func (s *DB) Close() error {
	return s.db.Close()
}
