package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/structure"
	"github.com/cory-johannsen/coredefense/internal/storage"
	"github.com/cory-johannsen/coredefense/internal/storage/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "db", "coredefense.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshotAt(tick int64) *storage.Snapshot {
	return &storage.Snapshot{
		Version:    storage.Version,
		ID:         uuid.New(),
		Tick:       tick,
		TakenAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Difficulty: storage.Difficulty{Value: int(tick % 300), Lifetime: int(tick)},
		Core:       storage.Core{Integrity: 500},
		Structures: []structure.Record{{ID: "s1", Type: "arrow", Pos: geom.V(1, 0, 1)}},
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	_, err := openStore(t).Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_RoundTripReturnsNewest(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Save(ctx, snapshotAt(100)))
	latest := snapshotAt(200)
	require.NoError(t, s.Save(ctx, latest))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest, got)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for tick := int64(1); tick <= 5; tick++ {
		require.NoError(t, s.Save(ctx, snapshotAt(tick)))
	}
	removed, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Tick)

	_, err = s.Prune(ctx, 0)
	assert.Error(t, err)
}
