package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clinicsync/internal/logger"
)

// Fixed domain keys. Every locally persisted slice of state lives under one
// of these, JSON-serialized, written synchronously on each mutation.
const (
	KeyActivityLogs = "activity_logs"
	KeyPettyCash    = "petty_cash"
	KeyBillingRules = "billing_rules"
)

const (
	maxOpenConns = 4
	maxIdleConns = 2
	queryTimeout = time.Second * 10
)

const kvSchema = `
    CREATE TABLE IF NOT EXISTS local_kv (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );`

// Store is a single-table key-value store over a local SQLite file. It backs
// the activity log and petty cash ledger so both survive restarts without any
// dependency on the remote backend.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the local store at path, with retry logic
// for transient open failures.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0775); err != nil {
			return nil, fmt.Errorf("failed to create data directory %q: %w", dir, err)
		}
	}

	db, err := openWithRetry(path, 3)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create local_kv table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func openWithRetry(path string, maxRetries int) (*sql.DB, error) {
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var db *sql.DB
		db, err = sql.Open("sqlite", path)
		if err != nil {
			logger.LogWarn("Local store open attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return nil, fmt.Errorf("failed to open local store after %d attempts: %w", maxRetries, err)
		}

		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = db.PingContext(ctx)
		cancel()

		if err != nil {
			logger.LogWarn("Local store ping attempt %d failed: %v", attempt, err)
			db.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return nil, fmt.Errorf("failed to ping local store after %d attempts: %w", maxRetries, err)
		}

		if err := enablePragmas(db); err != nil {
			logger.LogWarn("Failed to enable some local store optimizations: %v", err)
			// Pragma failures are not fatal.
		}

		return db, nil
	}

	return nil, fmt.Errorf("failed to initialize local store after %d attempts", maxRetries)
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	var lastErr error
	for _, pragma := range pragmas {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		_, err := db.ExecContext(ctx, pragma)
		cancel()

		if err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
			lastErr = err
		}
	}
	return lastErr
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put upserts the raw value under key.
func (s *Store) Put(key, value string) error {
	if s.db == nil {
		return fmt.Errorf("local store not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_kv (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Get returns the raw value under key and whether it exists.
func (s *Store) Get(key string) (string, bool, error) {
	if s.db == nil {
		return "", false, fmt.Errorf("local store not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM local_kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// SaveJSON marshals v and stores it under key.
func (s *Store) SaveJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %q: %w", key, err)
	}
	return s.Put(key, string(data))
}

// LoadJSON unmarshals the value under key into v. The second return is false
// when the key has never been written.
func (s *Store) LoadJSON(key string, v interface{}) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("failed to unmarshal value for key %q: %w", key, err)
	}
	return true, nil
}
