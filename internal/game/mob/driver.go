// Package mob drives hostile agents: each tick a hostile approaches its
// current target and attacks on contact once its cooldown allows.
package mob

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/core"
	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/mobility"
	"github.com/cory-johannsen/coredefense/internal/game/targeting"
	"github.com/cory-johannsen/coredefense/internal/game/wave"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

// Config tunes hostile pursuit.
type Config struct {
	// AggroRadius is how far a hostile with no core to attack looks for defenders.
	AggroRadius float64
	// CoreRadius is the footprint of the core; contact is Reach plus this.
	CoreRadius float64
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{AggroRadius: 12, CoreRadius: 1.5}
}

// Env is what the driver reads and writes in one tick.
type Env struct {
	Now      int64
	World    world.Query
	Registry *entity.Registry
	Mobility mobility.Service
	Core     *core.Integrity
	Roller   *dice.Roller
	Reporter combat.Reporter
	Sink     events.Sink
}

// Driver holds per-hostile attack cooldowns.
type Driver struct {
	cfg      Config
	tiers    *wave.TierTable
	cooldown map[entity.ID]int
	logger   *zap.Logger
}

// NewDriver creates a Driver that looks up agent stats in tiers.
//
// Precondition: tiers must be non-nil.
func NewDriver(cfg Config, tiers *wave.TierTable, logger *zap.Logger) *Driver {
	if tiers == nil {
		panic("mob.NewDriver: tiers must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg, tiers: tiers, cooldown: make(map[entity.ID]int), logger: logger}
}

// Step advances every living hostile one tick in ascending id order.
func (d *Driver) Step(env *Env) {
	for _, h := range env.Registry.Living(entity.KindHostile) {
		agent, ok := d.tiers.Lookup(h.TypeID)
		if !ok {
			continue
		}
		if cd := d.cooldown[h.ID]; cd > 0 {
			d.cooldown[h.ID] = cd - 1
		}
		if victim, ok := d.victim(env, h); ok {
			d.engageBody(env, h, victim, agent)
			continue
		}
		if at, placed := env.Core.Position(); placed && !env.Core.Destroyed() {
			d.engageCore(env, h, at, agent)
			continue
		}
		env.Mobility.Stop(h.ID)
	}
}

// Forget drops the cooldown of a removed hostile.
func (d *Driver) Forget(id entity.ID) { delete(d.cooldown, id) }

// victim resolves the hostile's taunt target, or the nearest defender in
// aggro range when the core cannot be attacked.
func (d *Driver) victim(env *Env, h *entity.Body) (*entity.Body, bool) {
	if t, ok := env.Registry.Resolve(h.Target); ok && !t.Hostile() {
		return t, true
	}
	h.Target = entity.Handle{}
	if _, placed := env.Core.Position(); placed && !env.Core.Destroyed() {
		return nil, false
	}
	t, ok := targeting.Nearest(env.World, h.Pos, d.cfg.AggroRadius, func(b *entity.Body) bool {
		return b.Alive() && !b.Hostile()
	})
	if ok {
		h.Target = entity.HandleOf(t)
	}
	return t, ok
}

func (d *Driver) engageBody(env *Env, h, victim *entity.Body, agent *wave.AgentType) {
	if h.Pos.Dist(victim.Pos) > agent.Reach {
		env.Mobility.RequestMoveToEntity(h.ID, victim.ID, h.Speed)
		return
	}
	env.Mobility.Stop(h.ID)
	if d.cooldown[h.ID] > 0 {
		return
	}
	dmg := env.Roller.Damage(agent.DamageExpr())
	env.Reporter.Report(combat.Apply(combat.Owner{Kind: combat.OwnerHostile, ID: agent.ID}, victim, max(dmg, 0), false))
	d.cooldown[h.ID] = agent.AttackCooldown
}

func (d *Driver) engageCore(env *Env, h *entity.Body, at geom.Vec3, agent *wave.AgentType) {
	if h.Pos.Dist(at) > agent.Reach+d.cfg.CoreRadius {
		env.Mobility.RequestMoveTo(h.ID, at)
		return
	}
	env.Mobility.Stop(h.ID)
	if d.cooldown[h.ID] > 0 {
		return
	}
	d.cooldown[h.ID] = agent.AttackCooldown
	applied, destroyed := env.Core.Damage(max(env.Roller.Damage(agent.DamageExpr()), 0))
	if applied == 0 {
		return
	}
	e := events.New(events.CoreDamaged, env.Now)
	e.Entity, e.Position, e.Amount = h.ID, h.Pos, applied
	e.Detail = agent.ID
	env.Sink.Emit(e)
	if destroyed {
		d.logger.Warn("core destroyed", zap.Uint64("hostile", uint64(h.ID)), zap.String("agent", agent.ID))
		e := events.New(events.CoreDestroyed, env.Now)
		e.Entity, e.Position = h.ID, at
		env.Sink.Emit(e)
	}
}
