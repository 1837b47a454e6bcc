// Package store handles SQLite persistence for the tracking engine.
//
// Two independent records live in a single key-value table: the current cart
// session and the rolling analytics summary. Concurrent writers are not
// coordinated; the last write wins.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/carttrack/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Record keys.
const (
	keySession   = "session"
	keyAnalytics = "analytics"
)

// ErrNotFound is returned when a record has never been written.
var ErrNotFound = errors.New("record not found")

// Store wraps SQLite access for the session and analytics records.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadSession reads and decodes the persisted session record.
func (s *Store) LoadSession(ctx context.Context) (model.CartSession, error) {
	raw, err := s.get(ctx, keySession)
	if err != nil {
		return model.CartSession{}, err
	}
	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.CartSession{}, fmt.Errorf("decode session record: %w", err)
	}
	session, err := rec.toDomain()
	if err != nil {
		return model.CartSession{}, fmt.Errorf("map session record: %w", err)
	}
	return session, nil
}

// SaveSession serializes and writes the session record.
func (s *Store) SaveSession(ctx context.Context, session model.CartSession) error {
	raw, err := json.Marshal(newSessionRecord(session))
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	return s.put(ctx, keySession, string(raw))
}

// LoadAnalytics reads and decodes the persisted analytics record.
func (s *Store) LoadAnalytics(ctx context.Context) (model.CartAnalytics, error) {
	raw, err := s.get(ctx, keyAnalytics)
	if err != nil {
		return model.CartAnalytics{}, err
	}
	var rec analyticsRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.CartAnalytics{}, fmt.Errorf("decode analytics record: %w", err)
	}
	analytics, err := rec.toDomain()
	if err != nil {
		return model.CartAnalytics{}, fmt.Errorf("map analytics record: %w", err)
	}
	return analytics, nil
}

// SaveAnalytics serializes and writes the analytics record.
func (s *Store) SaveAnalytics(ctx context.Context, analytics model.CartAnalytics) error {
	raw, err := json.Marshal(newAnalyticsRecord(analytics))
	if err != nil {
		return fmt.Errorf("encode analytics record: %w", err)
	}
	return s.put(ctx, keyAnalytics, string(raw))
}

// Reset deletes both records. Counters only ever reset this way.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("reset records: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read record %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write record %q: %w", key, err)
	}
	return nil
}
