package structure_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/core"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/structure"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

type rig struct {
	reg     *entity.Registry
	env     structure.Env
	results []combat.Result
}

func newRig() *rig {
	r := &rig{reg: entity.NewRegistry()}
	r.env = structure.Env{
		World:       world.NewLocal(r.reg, world.FlatTerrain{}, world.NewDayCycle(100, 50, 99, 0)),
		Registry:    r.reg,
		Projectiles: combat.NewScheduler(),
		Reporter:    combat.ReporterFunc(func(res combat.Result) { r.results = append(r.results, res) }),
	}
	return r
}

func (r *rig) spawn(kind entity.Kind, pos geom.Vec3, hp int) *entity.Body {
	return r.reg.Spawn(&entity.Body{Kind: kind, Pos: pos, HP: hp, MaxHP: hp})
}

func placedCore() *core.Integrity {
	c := core.NewIntegrity(100, nil)
	c.SetPosition(geom.V(0, 0, 0))
	return c
}

func TestDefense_PlaceRequiresCore(t *testing.T) {
	d := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	_, err := d.Place("arrow", geom.V(1, 0, 1), "alice", core.NewIntegrity(100, nil))
	assert.ErrorIs(t, err, structure.ErrNoCore)
	assert.Empty(t, d.All())
}

func TestDefense_PlaceRejectsUnknownTypeAndDistance(t *testing.T) {
	d := structure.NewDefense(structure.DefaultCatalog(), 30, nil)
	c := placedCore()
	_, err := d.Place("catapult", geom.V(1, 0, 1), "", c)
	assert.ErrorIs(t, err, structure.ErrUnknownType)
	_, err = d.Place("arrow", geom.V(40, 0, 0), "", c)
	assert.ErrorIs(t, err, structure.ErrTooFar)
	s, err := d.Place("arrow", geom.V(10, 0, 0), "alice", c)
	require.NoError(t, err)
	assert.True(t, s.CanAttack())
	assert.Len(t, d.All(), 1)
}

func TestDefense_Remove(t *testing.T) {
	d := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	s, err := d.Place("mortar", geom.V(1, 0, 0), "", placedCore())
	require.NoError(t, err)
	_, err = d.Remove("missing")
	assert.ErrorIs(t, err, structure.ErrUnknownStructure)
	removed, err := d.Remove(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, removed)
	assert.Empty(t, d.All())
}

func TestStructure_ArrowAttacksExactlyOncePerCooldown(t *testing.T) {
	r := newRig()
	d := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	s, err := d.Place("arrow", geom.V(0, 0, 0), "", placedCore())
	require.NoError(t, err)
	r.spawn(entity.KindHostile, geom.V(5, 0, 0), 10000)

	for i := 0; i < 3*structure.Arrow.Cooldown; i++ {
		d.Tick(r.env)
	}
	// Attacks on ticks 1, 21 and 41.
	require.Len(t, r.results, 3)
	assert.Equal(t, structure.Arrow.Damage, r.results[0].Damage)
	assert.Equal(t, 1, s.Cooldown())
}

func TestStructure_TargetsNearestHostileOnly(t *testing.T) {
	r := newRig()
	d := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	_, err := d.Place("arrow", geom.V(0, 0, 0), "", placedCore())
	require.NoError(t, err)
	r.spawn(entity.KindDefender, geom.V(1, 0, 0), 10)
	far := r.spawn(entity.KindHostile, geom.V(15, 0, 0), 50)
	near := r.spawn(entity.KindHostile, geom.V(8, 0, 0), 50)
	r.spawn(entity.KindHostile, geom.V(25, 0, 0), 50)

	d.Tick(r.env)
	require.Len(t, r.results, 1)
	assert.Equal(t, near.ID, r.results[0].Target.ID)
	assert.Equal(t, 50, far.HP)
	assert.Equal(t, combat.OwnerStructure, r.results[0].Owner.Kind)
}

func TestStructure_IdleWithoutTargetKeepsReady(t *testing.T) {
	r := newRig()
	d := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	s, err := d.Place("arrow", geom.V(0, 0, 0), "", placedCore())
	require.NoError(t, err)
	d.Tick(r.env)
	assert.True(t, s.CanAttack())
	r.spawn(entity.KindHostile, geom.V(3, 0, 0), 50)
	d.Tick(r.env)
	assert.Len(t, r.results, 1)
}

func TestStructure_MortarSplashSparesDefenders(t *testing.T) {
	r := newRig()
	d := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	_, err := d.Place("mortar", geom.V(0, 0, 0), "", placedCore())
	require.NoError(t, err)
	primary := r.spawn(entity.KindHostile, geom.V(4, 0, 0), 100)
	neighbour := r.spawn(entity.KindHostile, geom.V(6, 0, 0), 100)
	ally := r.spawn(entity.KindDefender, geom.V(5, 0, 0), 100)

	d.Tick(r.env)
	assert.Equal(t, 1, r.env.Projectiles.InFlight())
	for i := 0; i < 10 && r.env.Projectiles.InFlight() > 0; i++ {
		r.env.Projectiles.Step(r.reg, r.env.Reporter)
	}
	assert.Equal(t, 100-structure.Mortar.Damage, primary.HP)
	assert.Equal(t, 100-structure.Mortar.Damage/2, neighbour.HP)
	assert.Equal(t, 100, ally.HP)
}

func TestDefense_RecordsRestore(t *testing.T) {
	r := newRig()
	d := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	s, err := d.Place("arrow", geom.V(2, 0, 2), "bob", placedCore())
	require.NoError(t, err)
	r.spawn(entity.KindHostile, geom.V(3, 0, 2), 100)
	d.Tick(r.env)

	recs := d.Records()
	recs = append(recs, structure.Record{ID: "ghost", Type: "ballista"})
	restored := structure.NewDefense(structure.DefaultCatalog(), 0, nil)
	restored.Restore(recs)
	require.Len(t, restored.All(), 1)
	got, ok := restored.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s.Cooldown(), got.Cooldown())
	assert.Equal(t, "bob", got.Owner)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "towers.yaml"), []byte(`
types:
  - id: ballista
    name: Ballista
    range: 30
    damage: 9
    cooldown: 45
`), 0o644))
	c, err := structure.LoadCatalog(dir)
	require.NoError(t, err)
	bt, ok := c.Lookup("ballista")
	require.True(t, ok)
	assert.True(t, bt.Instant())
	assert.Equal(t, []string{"ballista"}, c.IDs())
}

func TestLoadCatalog_ShippedContentMatchesBuiltIn(t *testing.T) {
	c, err := structure.LoadCatalog(filepath.Join("..", "..", "..", "content", "structures"))
	require.NoError(t, err)
	assert.Equal(t, structure.DefaultCatalog().IDs(), c.IDs())
	for _, want := range []structure.Type{structure.Arrow, structure.Mortar} {
		got, ok := c.Lookup(want.ID)
		require.True(t, ok, want.ID)
		assert.Equal(t, want, *got)
	}
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	a, b := structure.Arrow, structure.Arrow
	_, err := structure.NewCatalog([]*structure.Type{&a, &b})
	assert.Error(t, err)
}

func TestProperty_AttacksMatchCooldownSchedule(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cooldown := rapid.IntRange(1, 30).Draw(rt, "cooldown")
		ticks := rapid.IntRange(1, 200).Draw(rt, "ticks")
		typ := structure.Type{ID: "t", Name: "T", Range: 10, Damage: 1, Cooldown: cooldown}
		cat, err := structure.NewCatalog([]*structure.Type{&typ})
		if err != nil {
			rt.Fatal(err)
		}
		r := newRig()
		d := structure.NewDefense(cat, 0, nil)
		if _, err := d.Place("t", geom.V(0, 0, 0), "", placedCore()); err != nil {
			rt.Fatal(err)
		}
		r.spawn(entity.KindHostile, geom.V(2, 0, 0), 1<<30)
		for i := 0; i < ticks; i++ {
			d.Tick(r.env)
		}
		want := (ticks-1)/cooldown + 1
		if len(r.results) != want {
			rt.Fatalf("got %d attacks over %d ticks with cooldown %d, want %d", len(r.results), ticks, cooldown, want)
		}
	})
}
