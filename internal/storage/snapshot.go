// Package storage persists simulation snapshots. A Snapshot is produced at a
// tick boundary by the simulation goroutine and written asynchronously by a
// Persister through a Store.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/structure"
	"github.com/cory-johannsen/coredefense/internal/game/unit"
)

// Version is the current snapshot layout version.
const Version = 1

// Difficulty is the persisted difficulty scalar.
type Difficulty struct {
	Value    int `json:"value"`
	Lifetime int `json:"lifetime"`
}

// Core is the persisted defended structure.
type Core struct {
	Integrity int        `json:"integrity"`
	Destroyed bool       `json:"destroyed"`
	Position  *geom.Vec3 `json:"position,omitempty"`
}

// Snapshot is the durable state of a simulation. Hostiles, projectiles and
// the wave cycle are transient and are not captured.
type Snapshot struct {
	Version    int                `json:"version"`
	ID         uuid.UUID          `json:"id"`
	Tick       int64              `json:"tick"`
	TakenAt    time.Time          `json:"taken_at"`
	TimeOfDay  int64              `json:"time_of_day"`
	Difficulty Difficulty         `json:"difficulty"`
	Core       Core               `json:"core"`
	Units      []unit.Record      `json:"units"`
	Structures []structure.Record `json:"structures"`
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Encode serializes s as zstd-compressed JSON.
func Encode(s *Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Decode parses a blob produced by Encode.
//
// Postcondition: Returns an error for corrupt input or an unsupported version.
func Decode(blob []byte) (*Snapshot, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Version < 1 || s.Version > Version {
		return nil, fmt.Errorf("decoding snapshot: unsupported version %d", s.Version)
	}
	return &s, nil
}
