package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/coredefense/internal/game/ai"
	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/core"
	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/mobility"
	"github.com/cory-johannsen/coredefense/internal/game/unit"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

type rig struct {
	reg   *entity.Registry
	mover *mobility.Mover
	core  *core.Integrity
	sched *combat.Scheduler
	rec   *events.Recorder
	hits  []combat.Result
	env   *ai.Env
}

func newRig(corePos geom.Vec3) *rig {
	r := &rig{
		reg:   entity.NewRegistry(),
		mover: mobility.NewMover(),
		core:  core.NewIntegrity(1000, nil),
		sched: combat.NewScheduler(),
		rec:   &events.Recorder{},
	}
	r.core.SetPosition(corePos)
	r.env = &ai.Env{
		World:       world.NewLocal(r.reg, world.FlatTerrain{}, world.NewDayCycle(100, 50, 90, 0)),
		Registry:    r.reg,
		Mobility:    r.mover,
		Core:        r.core,
		Roller:      dice.NewRoller(dice.NewSeededSource(5), nil),
		Projectiles: r.sched,
		Reporter:    combat.ReporterFunc(func(res combat.Result) { r.hits = append(r.hits, res) }),
		Sink:        r.rec,
		Logger:      zap.NewNop(),
	}
	return r
}

func (r *rig) defender(role unit.Role, pos geom.Vec3, p ai.Params) (*unit.Unit, *entity.Body, *ai.Behavior) {
	u := unit.New(role.String(), role, "", pos)
	body := r.reg.Spawn(&entity.Body{
		Kind:   entity.KindDefender,
		Name:   u.Name,
		TypeID: role.String(),
		Pos:    pos,
		HP:     u.Stats.MaxHP,
		MaxHP:  u.Stats.MaxHP,
		Speed:  u.Stats.Speed,
	})
	u.Body = entity.HandleOf(body)
	return u, body, ai.New(u, p)
}

func (r *rig) spawn(kind entity.Kind, pos geom.Vec3, hp, maxHP int) *entity.Body {
	return r.reg.Spawn(&entity.Body{Kind: kind, Pos: pos, HP: hp, MaxHP: maxHP, Speed: 0.2})
}

func (r *rig) tick(b *ai.Behavior, n int) ai.Status {
	var st ai.Status
	for i := 0; i < n; i++ {
		r.env.Now++
		st = b.Tick(r.env)
	}
	return st
}

func TestBehavior_RetreatHysteresis(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	_, body, b := r.defender(unit.Melee, geom.V(5, 0, 0), ai.DefaultParams())
	body.MaxHP = 100

	body.HP = 29
	r.tick(b, 1)
	require.Equal(t, ai.Retreating, b.Mode())

	body.HP = 35
	r.tick(b, 10)
	assert.Equal(t, ai.Retreating, b.Mode(), "35%% is below the return threshold")

	body.HP = 28
	r.tick(b, 10)
	assert.Equal(t, ai.Retreating, b.Mode())

	body.HP = 49
	r.tick(b, 10)
	assert.Equal(t, ai.Retreating, b.Mode())

	body.HP = 50
	r.tick(b, 10)
	assert.NotEqual(t, ai.Retreating, b.Mode())
}

func TestBehavior_RetreatRalliesAtNearestHealer(t *testing.T) {
	r := newRig(geom.V(100, 0, 0))
	_, far, _ := r.defender(unit.Healer, geom.V(20, 0, 0), ai.DefaultParams())
	_, near, _ := r.defender(unit.Healer, geom.V(-6, 0, 0), ai.DefaultParams())
	_, body, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
	body.HP = 1

	r.tick(b, 1)
	require.Equal(t, ai.Retreating, b.Mode())
	assert.Equal(t, near.ID, b.Rally().ID)
	assert.NotEqual(t, far.ID, b.Rally().ID)
}

func TestBehavior_RetreatingHealerDoesNotRallyOnItself(t *testing.T) {
	r := newRig(geom.V(30, 0, 0))
	_, body, b := r.defender(unit.Healer, geom.V(0, 0, 0), ai.DefaultParams())
	body.HP = 1

	r.tick(b, 1)
	require.Equal(t, ai.Retreating, b.Mode())
	assert.True(t, b.Rally().IsZero())
	r.mover.Step(r.reg)
	assert.Greater(t, body.Pos.X, 0.0, "falls back toward the core")
}

func TestBehavior_TargetsThreatNearestTheCore(t *testing.T) {
	r := newRig(geom.V(10, 0, 0))
	_, _, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
	r.spawn(entity.KindHostile, geom.V(-5, 0, 0), 20, 20)
	toward := r.spawn(entity.KindHostile, geom.V(5, 0, 0), 20, 20)

	r.tick(b, 1)
	assert.Equal(t, ai.Combat, b.Mode())
	assert.Equal(t, toward.ID, b.Target().ID)
}

func TestBehavior_MeleeCritDoesNotStack(t *testing.T) {
	p := ai.DefaultParams()
	p.Crit = combat.Crit{Chance: 1, Multiplier: 1.5}
	r := newRig(geom.V(0, 0, 0))
	u, _, b := r.defender(unit.Melee, geom.V(0, 0, 0), p)
	h := r.spawn(entity.KindHostile, geom.V(1, 0, 0), 50, 50)

	r.tick(b, 1)
	require.Len(t, r.hits, 1)
	assert.True(t, r.hits[0].Crit)
	want := int(float64(u.Stats.Damage) * 1.5)
	assert.Equal(t, want, r.hits[0].Damage)
	assert.Equal(t, 50-want, h.HP)
	assert.Equal(t, p.MeleeCooldown, b.AttackCooldown())
}

func TestBehavior_StaleTargetCleared(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	_, _, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
	h := r.spawn(entity.KindHostile, geom.V(1, 0, 0), 100, 100)

	r.tick(b, 1)
	require.Equal(t, h.ID, b.Target().ID)
	r.reg.Remove(h.ID)
	assert.NotPanics(t, func() { r.tick(b, 1) })
	assert.True(t, b.Target().IsZero())
}

func TestBehavior_RangedFiresProjectileThatFizzlesOnLostTarget(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	_, _, b := r.defender(unit.Ranged, geom.V(0, 0, 0), ai.DefaultParams())
	h := r.spawn(entity.KindHostile, geom.V(10, 0, 0), 30, 30)

	r.tick(b, 1)
	require.Equal(t, 1, r.sched.InFlight())
	assert.Equal(t, 30, h.HP, "ranged damage is not instant")

	r.reg.Remove(h.ID)
	for i := 0; i < 20; i++ {
		r.sched.Step(r.reg, r.env.Reporter)
	}
	assert.Zero(t, r.sched.InFlight())
	assert.Empty(t, r.hits)
}

func TestBehavior_RangedBacksAwayWhenTooClose(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	_, body, b := r.defender(unit.Ranged, geom.V(0, 0, 0), ai.DefaultParams())
	r.spawn(entity.KindHostile, geom.V(3, 0, 0), 30, 30)

	r.tick(b, 1)
	r.mover.Step(r.reg)
	assert.Less(t, body.Pos.X, 0.0)
}

func TestBehavior_HealerPrefersPlayer(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	_, _, b := r.defender(unit.Healer, geom.V(0, 0, 0), ai.DefaultParams())
	player := r.spawn(entity.KindPlayer, geom.V(2, 0, 0), 10, 20)
	ally := r.spawn(entity.KindDefender, geom.V(3, 0, 0), 5, 20)

	r.tick(b, 1)
	assert.Equal(t, 16, player.HP)
	assert.Equal(t, 5, ally.HP)
}

func TestBehavior_HealerHealsSelfLastAndNeverOverheals(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	_, self, b := r.defender(unit.Healer, geom.V(0, 0, 0), ai.DefaultParams())
	ally := r.spawn(entity.KindDefender, geom.V(3, 0, 0), 18, 20)
	self.HP = self.MaxHP - 10

	r.tick(b, 1)
	assert.Equal(t, 20, ally.HP, "ally healed to max, not beyond")
	assert.Equal(t, self.MaxHP-10, self.HP)

	r.tick(b, ai.DefaultParams().HealCooldown)
	assert.Equal(t, self.MaxHP-4, self.HP)
}

func TestBehavior_BuilderRepairsCore(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	u, _, b := r.defender(unit.Builder, geom.V(2, 0, 0), ai.DefaultParams())
	r.core.Damage(100)

	r.tick(b, 1)
	assert.Equal(t, 905, r.core.Value())
	assert.Equal(t, 1, u.XP)
	assert.Len(t, r.rec.OfType(events.CoreRepaired), 1)
}

func TestBehavior_BuilderPatrolsWhenCoreIsFull(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	_, _, b := r.defender(unit.Builder, geom.V(2, 0, 0), ai.DefaultParams())

	r.tick(b, 1)
	assert.Equal(t, ai.Patrolling, b.Mode())
	assert.Equal(t, 1000, r.core.Value())
}

func TestBehavior_ReturnsToPatrolWhenTargetEscapes(t *testing.T) {
	p := ai.DefaultParams()
	r := newRig(geom.V(0, 0, 0))
	_, body, b := r.defender(unit.Melee, geom.V(0, 0, 0), p)

	r.tick(b, 1)
	require.Equal(t, ai.Patrolling, b.Mode())

	h := r.spawn(entity.KindHostile, geom.V(8, 0, 0), 100, 100)
	b.Reevaluate()
	r.tick(b, 1)
	require.Equal(t, ai.Combat, b.Mode())
	require.Equal(t, h.ID, b.Target().ID)
	for i := 0; i < 5; i++ {
		r.mover.Step(r.reg)
	}

	h.Pos = geom.V(80, 0, 0)
	for i := 0; i < 400; i++ {
		r.tick(b, 1)
		r.mover.Step(r.reg)
	}
	assert.Equal(t, ai.Patrolling, b.Mode())
	assert.True(t, b.Target().IsZero())
	assert.LessOrEqual(t, body.Pos.Dist(geom.V(0, 0, 0)), p.PatrolRadius, "patrols around the core instead of trailing the hostile")
	assert.Equal(t, 100, h.HP)
}

func TestBehavior_HealerReturnsToPatrolAfterHealing(t *testing.T) {
	p := ai.DefaultParams()
	r := newRig(geom.V(0, 0, 0))
	_, body, b := r.defender(unit.Healer, geom.V(0, 0, 0), p)
	player := r.spawn(entity.KindPlayer, geom.V(20, 0, 0), 19, 20)

	r.tick(b, 1)
	require.Equal(t, ai.Combat, b.Mode())
	for i := 0; i < 400 && player.HP < player.MaxHP; i++ {
		r.tick(b, 1)
		r.mover.Step(r.reg)
	}
	require.Equal(t, player.MaxHP, player.HP)

	for i := 0; i < 400; i++ {
		r.tick(b, 1)
		r.mover.Step(r.reg)
	}
	assert.Equal(t, ai.Patrolling, b.Mode())
	assert.LessOrEqual(t, body.Pos.Dist(geom.V(0, 0, 0)), p.PatrolRadius)
}

func TestBehavior_WaypointOverridesCombat(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	u, body, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
	u.SetWaypoint(geom.V(50, 0, 0))
	h := r.spawn(entity.KindHostile, geom.V(1, 0, 0), 20, 20)

	r.tick(b, 1)
	assert.Equal(t, ai.Patrolling, b.Mode())
	assert.True(t, b.Target().IsZero())
	assert.Equal(t, 20, h.HP)
	assert.False(t, r.mover.IsIdle(body.ID))
}

func TestBehavior_StayHoldsPosition(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	u, body, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
	u.Order = unit.OrderStay
	r.spawn(entity.KindHostile, geom.V(10, 0, 0), 20, 20)

	r.tick(b, 1)
	assert.True(t, r.mover.IsIdle(body.ID))
}

func TestBehavior_FollowsLeader(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	u, _, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
	leader := r.spawn(entity.KindPlayer, geom.V(10, 0, 0), 20, 20)
	u.Order, u.FollowID = unit.OrderFollow, leader.ID

	r.tick(b, 1)
	assert.Equal(t, ai.Following, b.Mode())

	r.reg.Remove(leader.ID)
	r.tick(b, ai.DefaultParams().ReevaluateTicks)
	assert.Equal(t, unit.OrderNone, u.Order)
}

func TestBehavior_TankTaunts(t *testing.T) {
	p := ai.DefaultParams()
	p.TauntInterval = 1
	p.TauntChance = 1
	r := newRig(geom.V(0, 0, 0))
	_, body, b := r.defender(unit.Tank, geom.V(0, 0, 0), p)
	near := r.spawn(entity.KindHostile, geom.V(3, 0, 0), 20, 20)
	far := r.spawn(entity.KindHostile, geom.V(30, 0, 0), 20, 20)

	r.tick(b, 1)
	assert.Equal(t, body.ID, near.Target.ID)
	assert.True(t, far.Target.IsZero())
}

func TestBehavior_DeathEmittedOnce(t *testing.T) {
	r := newRig(geom.V(0, 0, 0))
	u, body, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
	body.ApplyDamage(body.HP)

	assert.Equal(t, ai.Died, r.tick(b, 1))
	assert.Equal(t, ai.Inactive, r.tick(b, 5))
	assert.Len(t, r.rec.OfType(events.UnitDied), 1)
	assert.True(t, u.Body.IsZero())
	assert.True(t, b.Dead())
}

func TestProperty_NoOscillationBelowReturnThreshold(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := newRig(geom.V(0, 0, 0))
		_, body, b := r.defender(unit.Melee, geom.V(0, 0, 0), ai.DefaultParams())
		body.MaxHP = 100
		body.HP = 29
		r.tick(b, 1)
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			body.HP = rapid.IntRange(1, 49).Draw(rt, "hp")
			r.tick(b, 10)
			if b.Mode() != ai.Retreating {
				rt.Fatalf("left Retreating at %d%% health", body.HP)
			}
		}
	})
}
