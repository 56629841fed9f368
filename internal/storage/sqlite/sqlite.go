// Package sqlite keeps snapshots in an embedded SQLite database for
// standalone servers that run without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/coredefense/internal/storage"
)

// Store is a storage.Store backed by one SQLite file. Every snapshot is
// appended; Load returns the newest and Prune bounds the history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
//
// Precondition: path must be non-empty.
// Postcondition: The snapshots table exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id TEXT    NOT NULL,
			tick        INTEGER NOT NULL,
			taken_at    TEXT    NOT NULL,
			blob        BLOB    NOT NULL
		);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing %q: %w", path, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save implements storage.Store.
func (s *Store) Save(ctx context.Context, snap *storage.Snapshot) error {
	blob, err := storage.Encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (snapshot_id, tick, taken_at, blob) VALUES (?, ?, ?, ?)`,
		snap.ID.String(), snap.Tick, snap.TakenAt.UTC().Format("2006-01-02T15:04:05.000Z"), blob,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load implements storage.Store.
func (s *Store) Load(ctx context.Context) (*storage.Snapshot, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM snapshots ORDER BY seq DESC LIMIT 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return storage.Decode(blob)
}

// Prune deletes all but the newest keep snapshots.
//
// Precondition: keep >= 1.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("sqlite: keep must be >= 1, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE seq NOT IN (SELECT seq FROM snapshots ORDER BY seq DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}
