// Package ai drives defending units. Every role shares one decision loop;
// roles differ only in their hooks for engagement, per-tick action and
// support duty.
package ai

import (
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/core"
	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/mobility"
	"github.com/cory-johannsen/coredefense/internal/game/targeting"
	"github.com/cory-johannsen/coredefense/internal/game/unit"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

// Mode is the current behavior of a unit.
type Mode int

const (
	Combat Mode = iota
	Retreating
	Patrolling
	Following
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Combat:
		return "combat"
	case Retreating:
		return "retreating"
	case Patrolling:
		return "patrolling"
	case Following:
		return "following"
	default:
		return "unknown"
	}
}

// Status is the outcome of one Tick.
type Status int

const (
	Active Status = iota
	// Died is returned exactly once, on the tick the body is found dead or gone.
	Died
	// Inactive is returned for every Tick after Died.
	Inactive
)

// Env is everything a behavior reads or writes during a tick. It is built
// by the simulation and passed explicitly; behaviors hold no globals.
type Env struct {
	Now         int64
	World       world.Query
	Registry    *entity.Registry
	Mobility    mobility.Service
	Core        *core.Integrity
	Roller      *dice.Roller
	Projectiles *combat.Scheduler
	Reporter    combat.Reporter
	Sink        events.Sink
	Logger      *zap.Logger
}

// Behavior is the decision state of one defending unit. It is discarded
// when the unit's body is removed; the unit record survives.
type Behavior struct {
	unit *unit.Unit
	p    Params

	mode     Mode
	target   entity.Handle
	rally    entity.Handle
	attackCD int
	healCD   int
	repairCD int
	tauntCD  int

	patrol    geom.Vec3
	hasPatrol bool
	untilEval int
	dead      bool
}

// New creates a behavior for u, which must already have a body.
func New(u *unit.Unit, p Params) *Behavior {
	return &Behavior{unit: u, p: p, mode: Patrolling, tauntCD: p.TauntInterval}
}

// Unit returns the driven unit.
func (b *Behavior) Unit() *unit.Unit { return b.unit }

// Mode returns the current mode.
func (b *Behavior) Mode() Mode { return b.mode }

// Target returns the current target handle.
func (b *Behavior) Target() entity.Handle { return b.target }

// Rally returns the rally-point handle while retreating.
func (b *Behavior) Rally() entity.Handle { return b.rally }

// Dead reports whether the unit died.
func (b *Behavior) Dead() bool { return b.dead }

// AttackCooldown returns the ticks until the next attack.
func (b *Behavior) AttackCooldown() int { return b.attackCD }

// Tick runs one simulation step for the unit: cooldowns, the periodic
// decision cycle, then the role's per-tick action.
func (b *Behavior) Tick(env *Env) Status {
	if b.dead {
		return Inactive
	}
	body, ok := env.Registry.Resolve(b.unit.Body)
	if !ok {
		b.die(env)
		return Died
	}
	b.unit.LastPos = body.Pos
	b.tickCooldowns()

	b.untilEval--
	if b.untilEval <= 0 {
		b.untilEval = max(1, b.p.ReevaluateTicks)
		b.evaluate(env, body)
	}
	hooksFor(b.unit.Role).act(b, env, body)
	return Active
}

// Reevaluate forces a decision cycle on the next Tick.
func (b *Behavior) Reevaluate() { b.untilEval = 0 }

func (b *Behavior) tickCooldowns() {
	for _, cd := range []*int{&b.attackCD, &b.healCD, &b.repairCD, &b.tauntCD} {
		if *cd > 0 {
			*cd--
		}
	}
}

func (b *Behavior) die(env *Env) {
	b.dead = true
	b.target, b.rally = entity.Handle{}, entity.Handle{}
	if !b.unit.Body.IsZero() {
		env.Mobility.Stop(b.unit.Body.ID)
	}
	e := events.New(events.UnitDied, env.Now)
	e.Unit = b.unit.ID
	e.Entity = b.unit.Body.ID
	e.Position = b.unit.LastPos
	e.Detail = b.unit.Role.String()
	env.Sink.Emit(e)
	env.Logger.Info("defender died",
		zap.String("unit", b.unit.ID),
		zap.String("role", b.unit.Role.String()),
		zap.Int("level", b.unit.Level),
	)
	b.unit.Body = entity.Handle{}
}

// evaluate is the decision cycle. Checks run in priority order and the
// first that claims the unit ends the cycle.
func (b *Behavior) evaluate(env *Env, body *entity.Body) {
	ratio := body.HealthRatio()
	switch {
	case b.mode != Retreating && ratio < b.p.RetreatThreshold:
		b.mode = Retreating
		b.target, b.rally = entity.Handle{}, entity.Handle{}
	case b.mode == Retreating && ratio >= b.p.ReturnThreshold:
		b.mode = Combat
		b.rally = entity.Handle{}
	}
	if b.mode == Retreating {
		b.retreat(env, body)
		return
	}

	if b.unit.HasWaypoint && body.Pos.Dist(b.unit.Waypoint) > b.p.LeashRadius {
		b.mode, b.target, b.hasPatrol = Patrolling, entity.Handle{}, false
		b.moveTo(env, body, b.unit.Waypoint)
		return
	}

	if b.unit.Order == unit.OrderFollow {
		leader, ok := env.Registry.Resolve(entity.Handle{ID: b.unit.FollowID})
		if !ok {
			b.unit.Order, b.unit.FollowID = unit.OrderNone, 0
		} else if body.Pos.Dist(leader.Pos) > b.p.FollowDistance {
			b.mode, b.target = Following, entity.Handle{}
			env.Mobility.RequestMoveToEntity(body.ID, leader.ID, 0)
			return
		}
	}

	h := hooksFor(b.unit.Role)
	if h.duty != nil && h.duty(b, env, body) {
		return
	}
	if b.unit.Role.Combatant() {
		radius := b.p.AttackRadius
		if b.unit.Role == unit.Ranged {
			radius = math.Max(radius, b.p.RangedMax)
		}
		coreAt := env.Core.Anchor(body.Pos)
		if t, ok := targeting.FindBest(env.World, body.Pos, radius, coreAt, b.p.Weights); ok {
			b.mode, b.target = Combat, entity.HandleOf(t)
			h.engage(b, env, body, t)
			return
		}
	}
	b.target = entity.Handle{}
	b.patrolStep(env, body)
}

// retreat heads for the nearest living healer, else the core.
func (b *Behavior) retreat(env *Env, body *entity.Body) {
	if _, ok := env.Registry.Resolve(b.rally); !ok {
		b.rally = entity.Handle{}
		healer, found := targeting.Nearest(env.World, body.Pos, b.p.RallyRadius, func(c *entity.Body) bool {
			return c.Kind == entity.KindDefender && c.TypeID == unit.Healer.String() && c.ID != body.ID
		})
		if found {
			b.rally = entity.HandleOf(healer)
		}
	}
	if !b.rally.IsZero() {
		env.Mobility.RequestMoveToEntity(body.ID, b.rally.ID, 0)
		return
	}
	if at, ok := env.Core.Position(); ok {
		env.Mobility.RequestMoveTo(body.ID, at)
		return
	}
	env.Mobility.Stop(body.ID)
}

// patrolStep picks a new random point around the waypoint (or the core, or
// the unit's own position) whenever the previous one has been reached.
// Coming from any other mode, the active order belongs to that mode and is
// replaced.
func (b *Behavior) patrolStep(env *Env, body *entity.Body) {
	resume := b.mode == Patrolling && b.hasPatrol
	b.mode = Patrolling
	if b.unit.Order == unit.OrderStay {
		env.Mobility.Stop(body.ID)
		return
	}
	if resume && !env.Mobility.IsIdle(body.ID) {
		return
	}
	center := env.Core.Anchor(body.Pos)
	if b.unit.HasWaypoint {
		center = b.unit.Waypoint
	}
	p := center.OnCircle(env.Roller.Range(0, 2*math.Pi), env.Roller.Range(0, b.p.PatrolRadius))
	if y, ok := env.World.GroundHeight(p.X, p.Z); ok {
		p.Y = y
	}
	b.patrol, b.hasPatrol = p, true
	env.Mobility.RequestMoveTo(body.ID, p)
}

// moveTo requests movement unless the unit was ordered to stay.
func (b *Behavior) moveTo(env *Env, body *entity.Body, dest geom.Vec3) {
	if b.unit.Order == unit.OrderStay {
		env.Mobility.Stop(body.ID)
		return
	}
	env.Mobility.RequestMoveTo(body.ID, dest)
}

// chase requests pursuit of an entity unless the unit was ordered to stay.
func (b *Behavior) chase(env *Env, body, target *entity.Body) {
	if b.unit.Order == unit.OrderStay {
		env.Mobility.Stop(body.ID)
		return
	}
	env.Mobility.RequestMoveToEntity(body.ID, target.ID, 0)
}

// currentTarget resolves the target, clearing it when stale.
func (b *Behavior) currentTarget(env *Env) (*entity.Body, bool) {
	t, ok := env.Registry.Resolve(b.target)
	if !ok {
		b.target = entity.Handle{}
	}
	return t, ok
}

func (b *Behavior) owner() combat.Owner {
	return combat.Owner{Kind: combat.OwnerUnit, ID: b.unit.ID}
}

// AnnounceLevelUp emits one UnitLevelUp event per level gained.
func AnnounceLevelUp(sink events.Sink, u *unit.Unit, gained int, tick int64) {
	for i := gained - 1; i >= 0; i-- {
		e := events.New(events.UnitLevelUp, tick)
		e.Unit = u.ID
		e.Entity = u.Body.ID
		e.Amount = u.Level - i
		e.Position = u.LastPos
		e.Detail = u.Role.String()
		sink.Emit(e)
	}
}
