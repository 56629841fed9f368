package structure

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/core"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/targeting"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

var (
	// ErrNoCore rejects placement while the core has no position.
	ErrNoCore = errors.New("structure: defended core has no position")
	// ErrUnknownType rejects an unknown structure type.
	ErrUnknownType = errors.New("structure: unknown structure type")
	// ErrTooFar rejects placement beyond the build radius around the core.
	ErrTooFar = errors.New("structure: position is outside the build radius")
	// ErrUnknownStructure is returned for IDs that are not placed.
	ErrUnknownStructure = errors.New("structure: unknown structure")
)

// Structure is one placed emplacement.
type Structure struct {
	ID          string
	Pos         geom.Vec3
	Type        *Type
	Owner       string
	Kills       int
	DamageDealt int

	cooldown int
}

// CanAttack reports whether the cooldown has run out.
func (s *Structure) CanAttack() bool { return s.cooldown == 0 }

// Cooldown returns the ticks left before the next attack.
func (s *Structure) Cooldown() int { return s.cooldown }

// Env is what a structure reads and writes while ticking.
type Env struct {
	World       world.Query
	Registry    *entity.Registry
	Projectiles *combat.Scheduler
	Reporter    combat.Reporter
}

// Tick decrements the cooldown and, once it is zero, attacks the nearest
// living hostile in range.
//
// Postcondition: Returns true iff an attack was made; the cooldown is then Type.Cooldown.
func (s *Structure) Tick(env Env) bool {
	if s.cooldown > 0 {
		s.cooldown--
	}
	if s.cooldown > 0 {
		return false
	}
	target, ok := targeting.Nearest(env.World, s.Pos, s.Type.Range, targeting.LivingHostile)
	if !ok {
		return false
	}
	owner := combat.Owner{Kind: combat.OwnerStructure, ID: s.ID}
	if s.Type.Instant() {
		env.Reporter.Report(combat.Apply(owner, target, s.Type.Damage, false))
		if s.Type.SplashRadius > 0 {
			combat.SplashAround(env.Registry, owner, target.Pos, s.Type.SplashRadius,
				int(float64(s.Type.Damage)*s.Type.SplashFraction), entity.HandleOf(target), env.Reporter)
		}
	} else {
		env.Projectiles.Launch(combat.Projectile{
			Owner:          owner,
			Target:         entity.HandleOf(target),
			Pos:            s.Pos,
			Speed:          s.Type.ProjectileSpeed,
			Damage:         s.Type.Damage,
			SplashRadius:   s.Type.SplashRadius,
			SplashFraction: s.Type.SplashFraction,
		}, target.Pos)
	}
	s.cooldown = s.Type.Cooldown
	return true
}

// Record is the serializable form of a Structure.
type Record struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Pos         geom.Vec3 `json:"pos"`
	Owner       string    `json:"owner,omitempty"`
	Cooldown    int       `json:"cooldown"`
	Kills       int       `json:"kills"`
	DamageDealt int       `json:"damage_dealt"`
}

// Defense holds every placed structure in placement order.
type Defense struct {
	mu          sync.RWMutex
	catalog     *Catalog
	buildRadius float64
	structures  []*Structure
	logger      *zap.Logger
}

// NewDefense creates an empty Defense. buildRadius <= 0 allows placement anywhere.
//
// Precondition: catalog must be non-nil.
func NewDefense(catalog *Catalog, buildRadius float64, logger *zap.Logger) *Defense {
	if catalog == nil {
		panic("structure.NewDefense: catalog must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Defense{catalog: catalog, buildRadius: buildRadius, logger: logger}
}

// Catalog returns the type catalog.
func (d *Defense) Catalog() *Catalog { return d.catalog }

// Place validates and adds a structure.
//
// Postcondition: On error nothing is placed.
func (d *Defense) Place(typeID string, pos geom.Vec3, owner string, c *core.Integrity) (*Structure, error) {
	at, placed := c.Position()
	if !placed {
		return nil, ErrNoCore
	}
	t, ok := d.catalog.Lookup(typeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeID)
	}
	if d.buildRadius > 0 && pos.Dist(at) > d.buildRadius {
		return nil, fmt.Errorf("%w: %.1f from the core, limit %.1f", ErrTooFar, pos.Dist(at), d.buildRadius)
	}
	s := &Structure{ID: uuid.NewString(), Pos: pos, Type: t, Owner: owner}
	d.mu.Lock()
	d.structures = append(d.structures, s)
	d.mu.Unlock()
	return s, nil
}

// Remove deletes the structure with id. In-flight projectiles it fired still land.
func (d *Defense) Remove(id string) (*Structure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.structures {
		if s.ID == id {
			d.structures = append(d.structures[:i], d.structures[i+1:]...)
			return s, nil
		}
	}
	return nil, ErrUnknownStructure
}

// Get returns the structure with id.
func (d *Defense) Get(id string) (*Structure, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.structures {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// All returns the structures in placement order.
func (d *Defense) All() []*Structure {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Structure(nil), d.structures...)
}

// Tick advances every structure. A structure that panics is logged and
// skipped; the others still tick.
func (d *Defense) Tick(env Env) {
	for _, s := range d.All() {
		d.tickOne(s, env)
	}
}

func (d *Defense) tickOne(s *Structure, env Env) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("structure tick panicked",
				zap.String("structure", s.ID),
				zap.String("type", s.Type.ID),
				zap.Any("panic", r),
			)
		}
	}()
	s.Tick(env)
}

// Records snapshots every structure.
func (d *Defense) Records() []Record {
	all := d.All()
	out := make([]Record, 0, len(all))
	for _, s := range all {
		out = append(out, Record{
			ID:          s.ID,
			Type:        s.Type.ID,
			Pos:         s.Pos,
			Owner:       s.Owner,
			Cooldown:    s.cooldown,
			Kills:       s.Kills,
			DamageDealt: s.DamageDealt,
		})
	}
	return out
}

// Restore replaces all structures with recs. Records of unknown types are
// skipped and logged.
func (d *Defense) Restore(recs []Record) {
	var restored []*Structure
	for _, r := range recs {
		t, ok := d.catalog.Lookup(r.Type)
		if !ok {
			d.logger.Warn("dropping structure of unknown type", zap.String("structure", r.ID), zap.String("type", r.Type))
			continue
		}
		restored = append(restored, &Structure{
			ID:          r.ID,
			Pos:         r.Pos,
			Type:        t,
			Owner:       r.Owner,
			Kills:       r.Kills,
			DamageDealt: r.DamageDealt,
			cooldown:    min(max(r.Cooldown, 0), t.Cooldown),
		})
	}
	d.mu.Lock()
	d.structures = restored
	d.mu.Unlock()
}
