// Package core models the defended structure: a position and a bounded
// integrity pool that latches destroyed at zero.
package core

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/check"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// Integrity is the defended structure's state.
//
// Invariant: 0 <= value <= max. Once destroyed, Damage and Repair are no-ops until Reset.
// Written on the simulation goroutine; read from anywhere.
type Integrity struct {
	mu        sync.RWMutex
	value     int
	max       int
	destroyed bool
	pos       geom.Vec3
	placed    bool
	logger    *zap.Logger
}

// NewIntegrity creates a full-strength, unplaced core.
//
// Precondition: max > 0.
func NewIntegrity(max int, logger *zap.Logger) *Integrity {
	if max <= 0 {
		panic("core.NewIntegrity: max must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Integrity{value: max, max: max, logger: logger}
}

// Damage removes up to amount integrity.
//
// Postcondition: Returns the integrity removed and whether this call destroyed the core.
func (c *Integrity) Damage(amount int) (applied int, destroyed bool) {
	if !check.Invariant(c.logger, amount >= 0, "core damage must not be negative", zap.Int("amount", amount)) {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed || amount == 0 {
		return 0, false
	}
	applied = min(amount, c.value)
	c.value -= applied
	if c.value == 0 {
		c.destroyed = true
		return applied, true
	}
	return applied, false
}

// Repair restores up to amount integrity without exceeding max.
//
// Postcondition: Returns the integrity restored; 0 when destroyed.
func (c *Integrity) Repair(amount int) int {
	if !check.Invariant(c.logger, amount >= 0, "core repair must not be negative", zap.Int("amount", amount)) {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return 0
	}
	restored := min(amount, c.max-c.value)
	c.value += restored
	return restored
}

// Reset restores full integrity and clears the destroyed latch.
func (c *Integrity) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = c.max
	c.destroyed = false
}

// Restore loads persisted integrity, clamping out-of-range values.
func (c *Integrity) Restore(value int, destroyed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = check.ClampInt(c.logger, value, 0, c.max, "restored core integrity out of range")
	c.destroyed = destroyed || c.value == 0
}

// Value returns the current integrity.
func (c *Integrity) Value() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Max returns the integrity ceiling.
func (c *Integrity) Max() int { return c.max }

// Destroyed reports the latch.
func (c *Integrity) Destroyed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.destroyed
}

// NeedsRepair reports whether a repair would restore anything.
func (c *Integrity) NeedsRepair() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.destroyed && c.value < c.max
}

// Position returns the core position and whether one is set.
func (c *Integrity) Position() (geom.Vec3, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos, c.placed
}

// SetPosition places the core.
func (c *Integrity) SetPosition(p geom.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos, c.placed = p, true
}

// ClearPosition unplaces the core.
func (c *Integrity) ClearPosition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos, c.placed = geom.Vec3{}, false
}

// Anchor returns the core position when placed, otherwise fallback.
func (c *Integrity) Anchor(fallback geom.Vec3) geom.Vec3 {
	if p, ok := c.Position(); ok {
		return p
	}
	return fallback
}
