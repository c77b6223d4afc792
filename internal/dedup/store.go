// Package dedup persists the set of already-seen feed items so that restarts
// never re-alert within the retention window.
//
// The store is single-writer (the cycle loop) with multi-reader tolerance. On
// corruption it degrades to an in-memory set for the rest of the process
// lifetime rather than crashing.
package dedup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// ErrCorrupt marks a store that failed integrity checks; callers switch to the
// in-memory fallback and keep running.
var ErrCorrupt = errors.New("dedup: store corrupt")

// Store is the dedup contract used by the admission stage.
type Store interface {
	Seen(sourceID, canonicalID string) (bool, error)
	Mark(sourceID, canonicalID string, observed time.Time) error
	Purge(olderThan time.Time) (int64, error)
	Len() (int64, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS seen_items (
	source_id    TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	observed_at  INTEGER NOT NULL,
	PRIMARY KEY (source_id, canonical_id)
);
CREATE INDEX IF NOT EXISTS idx_seen_observed ON seen_items (observed_at);
`

// SQLStore is the production Store backed by an embedded sqlite file.
type SQLStore struct {
	db *sqlx.DB
}

// Open creates or opens the store at path, creating parent directories.
func Open(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("dedup: create dir: %w", err)
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("dedup: open %s: %w", path, err)
	}
	// Single writer; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrCorrupt, err)
	}

	var ok string
	if err := db.Get(&ok, "PRAGMA integrity_check"); err != nil || ok != "ok" {
		db.Close()
		return nil, fmt.Errorf("%w: integrity_check=%q err=%v", ErrCorrupt, ok, err)
	}

	return &SQLStore{db: db}, nil
}

// Seen reports whether the key is present.
func (s *SQLStore) Seen(sourceID, canonicalID string) (bool, error) {
	var n int
	err := s.db.Get(&n,
		"SELECT COUNT(1) FROM seen_items WHERE source_id = ? AND canonical_id = ?",
		sourceID, canonicalID)
	if err != nil {
		return false, fmt.Errorf("dedup: seen: %w", err)
	}
	return n > 0, nil
}

// Mark records a fully-processed item. Re-marking an existing key is a no-op
// so crash-restart replays are safe.
func (s *SQLStore) Mark(sourceID, canonicalID string, observed time.Time) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO seen_items (source_id, canonical_id, observed_at) VALUES (?, ?, ?)",
		sourceID, canonicalID, observed.UTC().Unix())
	if err != nil {
		return fmt.Errorf("dedup: mark: %w", err)
	}
	return nil
}

// Purge removes entries observed before the cutoff. Called opportunistically
// by the cycle loop; failures are non-fatal.
func (s *SQLStore) Purge(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM seen_items WHERE observed_at < ?", olderThan.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("dedup: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Len returns the number of live entries.
func (s *SQLStore) Len() (int64, error) {
	var n int64
	if err := s.db.Get(&n, "SELECT COUNT(1) FROM seen_items"); err != nil {
		return 0, fmt.Errorf("dedup: len: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// OpenWithFallback opens the sqlite store, falling back to an in-memory store
// when the file is corrupt or unopenable. The fallback loses cross-restart
// suppression but keeps the process alive.
func OpenWithFallback(path string) Store {
	store, err := Open(path)
	if err != nil {
		log.Error().Err(err).Str("component", "dedup").Str("path", path).
			Msg("dedup store unusable, falling back to in-memory set")
		return NewMemoryStore()
	}
	return store
}
