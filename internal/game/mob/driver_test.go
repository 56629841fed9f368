package mob_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/core"
	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/mob"
	"github.com/cory-johannsen/coredefense/internal/game/mobility"
	"github.com/cory-johannsen/coredefense/internal/game/wave"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

type rig struct {
	reg    *entity.Registry
	mover  *mobility.Mover
	rec    *events.Recorder
	env    *mob.Env
	driver *mob.Driver
	hits   []combat.Result
}

func newRig(t *testing.T, coreAt *geom.Vec3) *rig {
	t.Helper()
	r := &rig{reg: entity.NewRegistry(), mover: mobility.NewMover(), rec: &events.Recorder{}}
	c := core.NewIntegrity(10, nil)
	if coreAt != nil {
		c.SetPosition(*coreAt)
	}
	r.env = &mob.Env{
		World:    world.NewLocal(r.reg, world.FlatTerrain{}, world.NewDayCycle(100, 50, 99, 60)),
		Registry: r.reg,
		Mobility: r.mover,
		Core:     c,
		Roller:   dice.NewRoller(dice.NewSeededSource(3), nil),
		Reporter: combat.ReporterFunc(func(res combat.Result) { r.hits = append(r.hits, res) }),
		Sink:     r.rec,
	}
	r.driver = mob.NewDriver(mob.DefaultConfig(), wave.DefaultTierTable(), nil)
	return r
}

func (r *rig) zombie(pos geom.Vec3) *entity.Body {
	return r.reg.Spawn(&entity.Body{Kind: entity.KindHostile, TypeID: "zombie", Pos: pos, HP: 20, MaxHP: 20, Speed: 0.5})
}

func (r *rig) run(ticks int) {
	for i := 0; i < ticks; i++ {
		r.env.Now++
		r.driver.Step(r.env)
		r.mover.Step(r.reg)
	}
}

func TestDriver_HostileWalksToCoreAndDamagesIt(t *testing.T) {
	at := geom.V(0, 0, 0)
	r := newRig(t, &at)
	r.zombie(geom.V(10, 0, 0))
	r.run(200)

	dmg := r.rec.OfType(events.CoreDamaged)
	require.NotEmpty(t, dmg)
	total := 0
	for _, e := range dmg {
		total += e.Amount
	}
	assert.Equal(t, 10-r.env.Core.Value(), total)
}

func TestDriver_CoreDestroyedEmittedOnce(t *testing.T) {
	at := geom.V(0, 0, 0)
	r := newRig(t, &at)
	for i := 0; i < 5; i++ {
		r.zombie(geom.V(1, 0, float64(i)*0.1))
	}
	r.run(400)
	assert.True(t, r.env.Core.Destroyed())
	assert.Len(t, r.rec.OfType(events.CoreDestroyed), 1)
}

func TestDriver_TauntedHostileAttacksTank(t *testing.T) {
	at := geom.V(0, 0, 0)
	r := newRig(t, &at)
	tank := r.reg.Spawn(&entity.Body{Kind: entity.KindDefender, Pos: geom.V(20, 0, 0), HP: 100, MaxHP: 100})
	h := r.zombie(geom.V(21, 0, 0))
	h.Target = entity.HandleOf(tank)
	r.run(30)

	require.NotEmpty(t, r.hits)
	assert.Equal(t, tank.ID, r.hits[0].Target.ID)
	assert.Equal(t, combat.OwnerHostile, r.hits[0].Owner.Kind)
	assert.Less(t, tank.HP, 100)
	assert.Empty(t, r.rec.OfType(events.CoreDamaged))
}

func TestDriver_LostTauntFallsBackToCore(t *testing.T) {
	at := geom.V(0, 0, 0)
	r := newRig(t, &at)
	tank := r.reg.Spawn(&entity.Body{Kind: entity.KindDefender, Pos: geom.V(5, 0, 0), HP: 100, MaxHP: 100})
	h := r.zombie(geom.V(6, 0, 0))
	h.Target = entity.HandleOf(tank)
	r.reg.Remove(tank.ID)
	r.run(1)
	assert.True(t, h.Target.IsZero())
	assert.Less(t, h.Pos.X, 6.0)
}

func TestDriver_WithoutCoreHuntsNearbyDefenders(t *testing.T) {
	r := newRig(t, nil)
	d := r.reg.Spawn(&entity.Body{Kind: entity.KindDefender, Pos: geom.V(5, 0, 0), HP: 100, MaxHP: 100})
	far := r.zombie(geom.V(100, 0, 0))
	h := r.zombie(geom.V(0, 0, 0))
	r.run(1)
	assert.Equal(t, d.ID, h.Target.ID)
	assert.True(t, far.Target.IsZero())
	assert.True(t, r.mover.IsIdle(far.ID))
}
