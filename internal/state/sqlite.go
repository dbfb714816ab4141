// Package state is the durable bookkeeping store for automations:
// which external events have already been handled, and the last known
// snapshot of the pipeline for diffing.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists processed ids and snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state store: wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_ids (
			namespace TEXT NOT NULL,
			id        TEXT NOT NULL,
			seen_at   TEXT NOT NULL,
			PRIMARY KEY (namespace, id)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			namespace  TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_processed_seen ON processed_ids(namespace, seen_at);
	`)
	if err != nil {
		return fmt.Errorf("state store: migrate: %w", err)
	}
	return nil
}

// MarkProcessed records an event id. Returns true the first time the
// id is seen in the namespace, false on replays.
func (s *Store) MarkProcessed(namespace, id string) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO processed_ids (namespace, id, seen_at) VALUES (?, ?, ?)
		ON CONFLICT(namespace, id) DO NOTHING
	`, namespace, id, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("state store: mark processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsProcessed reports whether an event id was already handled.
func (s *Store) IsProcessed(namespace, id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM processed_ids WHERE namespace = ? AND id = ?`, namespace, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state store: is processed: %w", err)
	}
	return true, nil
}

// PruneProcessed drops processed ids older than the cutoff.
func (s *Store) PruneProcessed(namespace string, before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM processed_ids WHERE namespace = ? AND seen_at < ?`,
		namespace, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("state store: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveSnapshot stores a JSON snapshot under the namespace, replacing
// any previous one.
func (s *Store) SaveSnapshot(namespace string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state store: marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO snapshots (namespace, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at
	`, namespace, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("state store: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot unmarshals the stored snapshot into v. Returns false
// when the namespace has no snapshot yet.
func (s *Store) LoadSnapshot(namespace string, v any) (bool, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE namespace = ?`, namespace).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state store: load snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("state store: unmarshal snapshot: %w", err)
	}
	return true, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *Store) DB() *sql.DB {
	return s.db
}
