package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Load when no snapshot has been saved.
var ErrNotFound = errors.New("storage: no snapshot saved")

// Store saves and loads the latest snapshot.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// FileStore keeps the latest snapshot in a single file, replaced atomically.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
//
// Precondition: path must be non-empty.
func NewFileStore(path string) *FileStore {
	if path == "" {
		panic("storage.NewFileStore: path must not be empty")
	}
	return &FileStore{path: path}
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, s *Snapshot) error {
	blob, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context) (*Snapshot, error) {
	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return Decode(blob)
}

// NopStore discards snapshots.
type NopStore struct{}

// Save implements Store.
func (NopStore) Save(context.Context, *Snapshot) error { return nil }

// Load implements Store.
func (NopStore) Load(context.Context) (*Snapshot, error) { return nil, ErrNotFound }
