// Package world defines the world query service consumed by the simulation
// core and an in-memory implementation backed by the entity registry.
package world

import (
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// Query is the narrow read-only view of the world the simulation core uses.
type Query interface {
	// EntitiesInRadius returns alive bodies within radius of center that
	// satisfy pred (nil accepts all), in ascending ID order.
	EntitiesInRadius(center geom.Vec3, radius float64, pred func(*entity.Body) bool) []*entity.Body
	// GroundHeight returns the surface height at (x, z). ok is false when
	// the column has no terrain suitable for ground spawns.
	GroundHeight(x, z float64) (y float64, ok bool)
	// IsNight reports whether the day cycle is inside the night window.
	IsNight() bool
	// IsDay is the complement of IsNight.
	IsDay() bool
	// Players returns the alive player bodies in ascending ID order.
	Players() []*entity.Body
}

// Terrain answers ground-height queries.
type Terrain interface {
	GroundHeight(x, z float64) (float64, bool)
}

// TerrainFunc adapts a function to Terrain.
type TerrainFunc func(x, z float64) (float64, bool)

// GroundHeight calls f.
func (f TerrainFunc) GroundHeight(x, z float64) (float64, bool) { return f(x, z) }

// FlatTerrain is level ground at Height. When Radius is positive, columns
// farther than Radius from the origin have no ground.
type FlatTerrain struct {
	Height float64
	Radius float64
}

// GroundHeight implements Terrain.
func (t FlatTerrain) GroundHeight(x, z float64) (float64, bool) {
	if t.Radius > 0 && x*x+z*z > t.Radius*t.Radius {
		return 0, false
	}
	return t.Height, true
}

// Local is a Query over an in-process Registry, a Terrain and a DayCycle.
type Local struct {
	reg     *entity.Registry
	terrain Terrain
	cycle   *DayCycle
}

// NewLocal creates a Local.
//
// Precondition: reg, terrain and cycle must be non-nil.
// Postcondition: Returns a non-nil *Local.
func NewLocal(reg *entity.Registry, terrain Terrain, cycle *DayCycle) *Local {
	if reg == nil || terrain == nil || cycle == nil {
		panic("world.NewLocal: reg, terrain and cycle must not be nil")
	}
	return &Local{reg: reg, terrain: terrain, cycle: cycle}
}

// EntitiesInRadius implements Query.
func (l *Local) EntitiesInRadius(center geom.Vec3, radius float64, pred func(*entity.Body) bool) []*entity.Body {
	return l.reg.InRadius(center, radius, pred)
}

// GroundHeight implements Query.
func (l *Local) GroundHeight(x, z float64) (float64, bool) {
	return l.terrain.GroundHeight(x, z)
}

// IsNight implements Query.
func (l *Local) IsNight() bool { return l.cycle.IsNight() }

// IsDay implements Query.
func (l *Local) IsDay() bool { return !l.cycle.IsNight() }

// Players implements Query.
func (l *Local) Players() []*entity.Body { return l.reg.Living(entity.KindPlayer) }

// Registry exposes the backing registry.
func (l *Local) Registry() *entity.Registry { return l.reg }
