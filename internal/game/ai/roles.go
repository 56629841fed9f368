package ai

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/unit"
)

// roleHooks are the role-specific parts of the decision loop.
type roleHooks struct {
	// engage positions the unit against a freshly selected target.
	engage func(b *Behavior, env *Env, body, target *entity.Body)
	// act runs every tick after the decision cycle.
	act func(b *Behavior, env *Env, body *entity.Body)
	// duty claims the unit for a support task; nil for pure combat roles.
	duty func(b *Behavior, env *Env, body *entity.Body) bool
}

var (
	meleeHooks   = roleHooks{engage: engageMelee, act: actMelee}
	tankHooks    = roleHooks{engage: engageMelee, act: actTank}
	rangedHooks  = roleHooks{engage: engageRanged, act: actRanged}
	healerHooks  = roleHooks{act: actHeal, duty: healDuty}
	builderHooks = roleHooks{act: actRepair, duty: repairDuty}
)

func hooksFor(r unit.Role) roleHooks {
	switch r {
	case unit.Tank:
		return tankHooks
	case unit.Ranged:
		return rangedHooks
	case unit.Healer:
		return healerHooks
	case unit.Builder:
		return builderHooks
	default:
		return meleeHooks
	}
}

func engageMelee(b *Behavior, env *Env, body, target *entity.Body) {
	if body.Pos.Dist(target.Pos) > b.p.MeleeReach {
		b.chase(env, body, target)
		return
	}
	env.Mobility.Stop(body.ID)
}

func actMelee(b *Behavior, env *Env, body *entity.Body) {
	if b.mode == Retreating {
		return
	}
	t, ok := b.currentTarget(env)
	if !ok || b.attackCD > 0 || body.Pos.Dist(t.Pos) > b.p.MeleeReach {
		return
	}
	dmg, crit := combat.RollDamage(env.Roller, b.unit.Stats.Damage, b.p.Crit)
	env.Reporter.Report(combat.Apply(b.owner(), t, dmg, crit))
	b.attackCD = b.p.MeleeCooldown
}

func actTank(b *Behavior, env *Env, body *entity.Body) {
	actMelee(b, env, body)
	if b.mode == Retreating || b.tauntCD > 0 {
		return
	}
	b.tauntCD = b.p.TauntInterval
	taunted := 0
	for _, h := range env.World.EntitiesInRadius(body.Pos, b.p.TauntRadius, func(c *entity.Body) bool { return c.Hostile() }) {
		if env.Roller.Chance(b.p.TauntChance, "taunt") {
			h.Target = entity.HandleOf(body)
			taunted++
		}
	}
	if taunted > 0 {
		env.Logger.Debug("tank taunted hostiles", zap.String("unit", b.unit.ID), zap.Int("count", taunted))
	}
}

// engageRanged keeps the target inside the stand-off band: back away when
// closer than half the preferred distance, advance when out of range,
// otherwise hold.
func engageRanged(b *Behavior, env *Env, body, target *entity.Body) {
	d := body.Pos.Dist(target.Pos)
	switch {
	case d < b.p.RangedPreferred/2:
		away := body.Pos.Sub(target.Pos).Normalize()
		if away == (geom.Vec3{}) {
			away.X = 1
		}
		b.moveTo(env, body, body.Pos.Add(away.Scale(b.p.RangedPreferred-d)))
	case d > b.p.RangedMax:
		b.chase(env, body, target)
	default:
		env.Mobility.Stop(body.ID)
	}
}

func actRanged(b *Behavior, env *Env, body *entity.Body) {
	if b.mode == Retreating {
		return
	}
	t, ok := b.currentTarget(env)
	if !ok || b.attackCD > 0 || body.Pos.Dist(t.Pos) > b.p.RangedMax {
		return
	}
	env.Projectiles.Launch(combat.Projectile{
		Owner:  b.owner(),
		Target: entity.HandleOf(t),
		Pos:    body.Pos,
		Speed:  b.p.ProjectileSpeed,
		Damage: b.unit.Stats.Damage,
	}, t.Pos)
	b.attackCD = b.p.RangedCooldown
}

// healCategory orders heal candidates: players, then other defenders, then self.
func healCategory(self, c *entity.Body) int {
	switch {
	case c.Kind == entity.KindPlayer:
		return 0
	case c.ID != self.ID:
		return 1
	default:
		return 2
	}
}

// pickHealTarget returns the damaged ally to heal: the first non-empty
// category wins, and within it the lowest health ratio (lowest ID on ties).
func pickHealTarget(b *Behavior, env *Env, body *entity.Body, radius float64) (*entity.Body, bool) {
	var best *entity.Body
	bestCat, bestRatio := 0, 0.0
	for _, c := range env.World.EntitiesInRadius(body.Pos, radius, func(c *entity.Body) bool {
		return c.Damaged() && (c.Kind == entity.KindPlayer || c.Kind == entity.KindDefender)
	}) {
		cat, ratio := healCategory(body, c), c.HealthRatio()
		if best == nil || cat < bestCat || (cat == bestCat && ratio < bestRatio) {
			best, bestCat, bestRatio = c, cat, ratio
		}
	}
	return best, best != nil
}

func healDuty(b *Behavior, env *Env, body *entity.Body) bool {
	t, ok := pickHealTarget(b, env, body, b.p.HealSearchRadius)
	if !ok {
		return false
	}
	b.mode = Combat
	if body.Pos.Dist(t.Pos) > b.p.HealRadius {
		b.chase(env, body, t)
	} else {
		env.Mobility.Stop(body.ID)
	}
	return true
}

func healAmount(b *Behavior) int {
	return b.p.HealAmount + b.unit.Level - 1
}

func actHeal(b *Behavior, env *Env, body *entity.Body) {
	if b.healCD > 0 {
		return
	}
	t, ok := pickHealTarget(b, env, body, b.p.HealRadius)
	if !ok {
		return
	}
	healed := t.Heal(healAmount(b))
	b.healCD = b.p.HealCooldown
	if healed == 0 {
		return
	}
	gained := b.unit.RecordHealing(env.Logger, healed)
	env.Logger.Debug("healer healed ally",
		zap.String("unit", b.unit.ID),
		zap.Uint64("target", uint64(t.ID)),
		zap.Int("amount", healed),
	)
	AnnounceLevelUp(env.Sink, b.unit, gained, env.Now)
}

func repairDuty(b *Behavior, env *Env, body *entity.Body) bool {
	at, placed := env.Core.Position()
	if !placed || !env.Core.NeedsRepair() {
		return false
	}
	b.mode = Combat
	if body.Pos.Dist(at) > b.p.RepairRadius {
		b.moveTo(env, body, at)
	} else {
		env.Mobility.Stop(body.ID)
	}
	return true
}

func actRepair(b *Behavior, env *Env, body *entity.Body) {
	if b.repairCD > 0 {
		return
	}
	at, placed := env.Core.Position()
	if !placed || !env.Core.NeedsRepair() || body.Pos.Dist(at) > b.p.RepairRadius {
		return
	}
	restored := env.Core.Repair(b.p.RepairAmount)
	b.repairCD = b.p.RepairCooldown
	if restored == 0 {
		return
	}
	e := events.New(events.CoreRepaired, env.Now)
	e.Unit = b.unit.ID
	e.Amount = restored
	e.Position = at
	env.Sink.Emit(e)
	AnnounceLevelUp(env.Sink, b.unit, b.unit.RecordRepair(env.Logger, restored), env.Now)
}
