package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/coredefense/internal/storage"
)

// SnapshotStore keeps the latest snapshot of one simulation slot in the
// snapshots table.
type SnapshotStore struct {
	db   *pgxpool.Pool
	slot string
}

// NewSnapshotStore creates a SnapshotStore for slot.
//
// Precondition: db must be a valid, open connection pool; slot must be non-empty.
func NewSnapshotStore(db *pgxpool.Pool, slot string) *SnapshotStore {
	if slot == "" {
		panic("postgres.NewSnapshotStore: slot must not be empty")
	}
	return &SnapshotStore{db: db, slot: slot}
}

// Save implements storage.Store.
//
// Postcondition: The slot row holds s, replacing any earlier snapshot.
func (r *SnapshotStore) Save(ctx context.Context, s *storage.Snapshot) error {
	blob, err := storage.Encode(s)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO snapshots (slot, snapshot_id, tick, taken_at, blob, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (slot) DO UPDATE SET
			snapshot_id = EXCLUDED.snapshot_id,
			tick        = EXCLUDED.tick,
			taken_at    = EXCLUDED.taken_at,
			blob        = EXCLUDED.blob,
			updated_at  = NOW()`,
		r.slot, s.ID, s.Tick, s.TakenAt, blob,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load implements storage.Store.
//
// Postcondition: Returns storage.ErrNotFound when the slot has never been saved.
func (r *SnapshotStore) Load(ctx context.Context) (*storage.Snapshot, error) {
	var blob []byte
	err := r.db.QueryRow(ctx, `SELECT blob FROM snapshots WHERE slot = $1`, r.slot).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return storage.Decode(blob)
}

// SavedAt returns the time the slot was last written.
func (r *SnapshotStore) SavedAt(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := r.db.QueryRow(ctx, `SELECT updated_at FROM snapshots WHERE slot = $1`, r.slot).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, storage.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("loading snapshot time: %w", err)
	}
	return at, nil
}
