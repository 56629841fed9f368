// Package entity provides the arena of live simulated bodies. Bodies are
// indexed by a stable, monotonically assigned ID; records that outlive a
// body (defending units, projectiles, taunts) hold a Handle and resolve it
// through the Registry, so a removed or dead body reads as absent.
package entity

import (
	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// ID identifies a body. IDs are never reused; 0 is never assigned.
type ID uint64

// Kind classifies a body for targeting predicates.
type Kind int

const (
	KindPlayer Kind = iota
	KindDefender
	KindHostile
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindDefender:
		return "defender"
	case KindHostile:
		return "hostile"
	default:
		return "unknown"
	}
}

// Body is one live simulated entity.
//
// Bodies are mutated only on the simulation goroutine.
type Body struct {
	ID     ID
	Kind   Kind
	Name   string
	TypeID string
	Pos    geom.Vec3
	HP     int
	MaxHP  int
	Speed  float64
	// Target is the body this one is pursuing. For hostiles the zero handle
	// means "the defended structure".
	Target Handle
	// Tier is the wave tier a hostile was drawn from; 0 for other kinds.
	Tier int

	removed bool
}

// Alive reports whether the body has hit points left and is still registered.
func (b *Body) Alive() bool {
	return b != nil && !b.removed && b.HP > 0
}

// Hostile reports whether b is a hostile agent.
func (b *Body) Hostile() bool { return b.Kind == KindHostile }

// HealthRatio returns HP / MaxHP in [0, 1]; 0 when MaxHP is 0.
func (b *Body) HealthRatio() float64 {
	if b.MaxHP <= 0 {
		return 0
	}
	return float64(b.HP) / float64(b.MaxHP)
}

// Damaged reports whether the body is alive and below full health.
func (b *Body) Damaged() bool {
	return b.Alive() && b.HP < b.MaxHP
}

// ApplyDamage reduces HP by amount, flooring at zero.
//
// Precondition: amount >= 0.
// Postcondition: Returns the damage actually applied and whether this call killed the body.
func (b *Body) ApplyDamage(amount int) (applied int, killed bool) {
	if !b.Alive() || amount <= 0 {
		return 0, false
	}
	applied = amount
	if applied > b.HP {
		applied = b.HP
	}
	b.HP -= applied
	return applied, b.HP == 0
}

// Heal raises HP by at most amount without exceeding MaxHP.
//
// Postcondition: Returns the HP actually restored; HP <= MaxHP.
func (b *Body) Heal(amount int) int {
	if !b.Alive() || amount <= 0 {
		return 0
	}
	missing := b.MaxHP - b.HP
	if amount > missing {
		amount = missing
	}
	b.HP += amount
	return amount
}

// Handle is an optional weak reference to a body.
type Handle struct {
	ID ID
}

// HandleOf returns a handle to b, or the zero handle when b is nil.
func HandleOf(b *Body) Handle {
	if b == nil {
		return Handle{}
	}
	return Handle{ID: b.ID}
}

// IsZero reports whether the handle refers to nothing.
func (h Handle) IsZero() bool { return h.ID == 0 }
