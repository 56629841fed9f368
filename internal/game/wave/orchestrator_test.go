package wave_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/difficulty"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/wave"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

type fixture struct {
	reg   *entity.Registry
	cycle *world.DayCycle
	diff  *difficulty.Tracker
	orch  *wave.Orchestrator
	rec   *events.Recorder
	tiers *wave.TierTable
}

func testConfig() wave.Config {
	cfg := wave.DefaultConfig()
	cfg.WarningTicks = 2
	cfg.SpawnTicks = 3
	cfg.CooldownTicks = 4
	return cfg
}

// newFixture builds an orchestrator at night with one player at the origin.
func newFixture(t testing.TB, level int, terrain world.Terrain) *fixture {
	reg := entity.NewRegistry()
	reg.Spawn(&entity.Body{Kind: entity.KindPlayer, Name: "ada", Pos: geom.V(0, 64, 0), HP: 20, MaxHP: 20})
	cycle := world.NewDayCycle(100, 50, 99, 60)
	w := world.NewLocal(reg, terrain, cycle)
	diff := difficulty.NewTracker(difficulty.Config{Interval: time.Minute, Step: 1}, level, level, time.Now(), nil)
	rec := &events.Recorder{}
	tiers := wave.DefaultTierTable()
	orch := wave.NewOrchestrator(testConfig(), wave.Deps{
		Tiers:      tiers,
		Difficulty: diff,
		World:      w,
		Roller:     dice.NewRoller(dice.NewSeededSource(99), nil),
		Spawner:    wave.RegistrySpawner{Registry: reg},
		Sink:       rec,
	})
	return &fixture{reg: reg, cycle: cycle, diff: diff, orch: orch, rec: rec, tiers: tiers}
}

// runCycle ticks until Finished and returns the distinct states visited.
func (f *fixture) runCycle(t testing.TB) []string {
	var visited []string
	for now := int64(1); now < 500; now++ {
		step := f.orch.Tick(now)
		if step.Changed() {
			visited = append(visited, step.To.String())
		}
		if f.orch.State().Phase == wave.Finished {
			return visited
		}
	}
	t.Fatalf("cycle did not finish; visited %v", visited)
	return nil
}

func TestOrchestrator_PhaseOrderStopsAfterWaveThreeBelowUnlock(t *testing.T) {
	f := newFixture(t, 50, world.FlatTerrain{Height: 64})
	assert.Equal(t, []string{
		"Warning", "Spawning(1)", "Cooldown(1)", "Spawning(2)", "Cooldown(2)", "Spawning(3)", "Finished",
	}, f.runCycle(t))
}

func TestOrchestrator_PhaseOrderContinuesPastWaveThree(t *testing.T) {
	f := newFixture(t, 150, world.FlatTerrain{Height: 64})
	assert.Equal(t, []string{
		"Warning", "Spawning(1)", "Cooldown(1)", "Spawning(2)", "Cooldown(2)", "Spawning(3)",
		"Cooldown(3)", "Spawning(4)", "Finished",
	}, f.runCycle(t))
}

func TestOrchestrator_WaveFiveIsTerminal(t *testing.T) {
	f := newFixture(t, 250, world.FlatTerrain{Height: 64})
	visited := f.runCycle(t)
	require.GreaterOrEqual(t, len(visited), 2)
	assert.Equal(t, "Spawning(5)", visited[len(visited)-2])
	assert.Equal(t, "Finished", visited[len(visited)-1])
	assert.Len(t, f.rec.OfType(events.WaveCompleted), 5)
}

func TestOrchestrator_CooldownRechecksGate(t *testing.T) {
	f := newFixture(t, 100, world.FlatTerrain{Height: 64})
	for now := int64(1); f.orch.State().String() != "Cooldown(3)"; now++ {
		require.Less(t, now, int64(200))
		f.orch.Tick(now)
	}
	// Drop below the wave-4 threshold during the cooldown.
	f.diff.DecayTick(time.Now().Add(2 * time.Minute))
	require.Less(t, f.diff.Value(), 100)
	var last wave.Step
	for now := int64(200); f.orch.State().Phase == wave.Cooldown; now++ {
		last = f.orch.Tick(now)
	}
	assert.Equal(t, wave.Finished, last.To.Phase)
}

func TestOrchestrator_StaysInactiveByDayOrWithoutDifficulty(t *testing.T) {
	f := newFixture(t, 0, world.FlatTerrain{Height: 64})
	f.orch.Tick(1)
	assert.Equal(t, wave.Inactive, f.orch.State().Phase)

	g := newFixture(t, 10, world.FlatTerrain{Height: 64})
	g.cycle.SetTimeOfDay(10)
	g.orch.Tick(1)
	assert.Equal(t, wave.Inactive, g.orch.State().Phase)
}

func TestOrchestrator_DayResetsAndDiscardsPoints(t *testing.T) {
	f := newFixture(t, 10, world.FlatTerrain{Height: 64})
	f.orch.Tick(1)
	f.orch.Tick(2)
	f.orch.Tick(3)
	require.Equal(t, wave.Spawning, f.orch.State().Phase)
	require.NotEmpty(t, f.orch.SpawnPoints())

	f.cycle.SetTimeOfDay(10)
	f.orch.Tick(4)
	assert.Equal(t, wave.Inactive, f.orch.State().Phase)
	assert.Empty(t, f.orch.SpawnPoints())
	assert.Len(t, f.rec.OfType(events.CycleReset), 1)
}

func TestOrchestrator_ForcedCycleIgnoresDay(t *testing.T) {
	f := newFixture(t, 0, world.FlatTerrain{Height: 64})
	f.cycle.SetTimeOfDay(10)
	require.NoError(t, f.orch.ForceStart(40, 1))
	for now := int64(2); now < 20; now++ {
		f.orch.Tick(now)
	}
	assert.NotEqual(t, wave.Inactive, f.orch.State().Phase)
	assert.True(t, f.orch.Forced() || f.orch.State().Phase == wave.Finished)
}

func TestOrchestrator_ForceStartRejections(t *testing.T) {
	f := newFixture(t, 10, world.FlatTerrain{Height: 64})
	assert.True(t, errors.Is(f.orch.ForceStart(0, 1), wave.ErrInvalidDifficulty))
	assert.True(t, errors.Is(f.orch.ForceStart(-5, 1), wave.ErrInvalidDifficulty))
	assert.Equal(t, wave.Inactive, f.orch.State().Phase)

	require.NoError(t, f.orch.ForceStart(10, 1))
	assert.True(t, errors.Is(f.orch.ForceStart(10, 2), wave.ErrCycleActive))

	empty := entity.NewRegistry()
	w := world.NewLocal(empty, world.FlatTerrain{}, world.NewDayCycle(100, 50, 99, 0))
	o := wave.NewOrchestrator(testConfig(), wave.Deps{
		Tiers:      wave.DefaultTierTable(),
		Difficulty: difficulty.NewTracker(difficulty.Config{Interval: time.Minute, Step: 1}, 0, 0, time.Now(), nil),
		World:      w,
		Roller:     dice.NewRoller(dice.NewSeededSource(1), nil),
		Spawner:    wave.RegistrySpawner{Registry: empty},
	})
	assert.True(t, errors.Is(o.ForceStart(10, 1), wave.ErrNoAnchor))
	assert.Equal(t, wave.Inactive, o.State().Phase)
}

func TestOrchestrator_EndToEndScalar120(t *testing.T) {
	f := newFixture(t, 120, world.FlatTerrain{Height: 64})
	require.NoError(t, f.orch.ForceStart(120, 1))

	points := f.orch.SpawnPoints()
	require.Len(t, points, wave.DefaultConfig().LocationsPerPlayer)
	for _, p := range points {
		d := geom.V(p.Pos.X, 64, p.Pos.Z).Dist(geom.V(0, 64, 0))
		assert.GreaterOrEqual(t, d, 24.0-1e-9)
		assert.LessOrEqual(t, d, 48.0+1e-9)
		assert.Equal(t, 64.0, p.Pos.Y)
	}

	var spawned int
	for now := int64(2); f.orch.State().Phase != wave.Spawning; now++ {
		spawned += f.orch.Tick(now).Spawned
	}
	perPoint := 9 // floor(3 * 3.2)
	assert.Equal(t, perPoint, f.orch.BatchSize(1, 120))
	assert.Equal(t, perPoint*len(points), spawned)

	hostiles := f.reg.Living(entity.KindHostile)
	require.Len(t, hostiles, perPoint*len(points))
	tier1 := map[string]bool{}
	for _, a := range f.tiers.Agents(1) {
		tier1[a.ID] = true
	}
	for _, h := range hostiles {
		assert.True(t, tier1[h.TypeID], "agent %q is not tier 1", h.TypeID)
		assert.Equal(t, 1, h.Tier)
	}
}

func TestOrchestrator_FallbackAboveAnchorWithoutGround(t *testing.T) {
	noGround := world.TerrainFunc(func(x, z float64) (float64, bool) { return 0, false })
	f := newFixture(t, 10, noGround)
	require.NoError(t, f.orch.ForceStart(10, 1))
	for _, p := range f.orch.SpawnPoints() {
		assert.Equal(t, 64.0+wave.DefaultConfig().FallbackHeight, p.Pos.Y)
	}
}

func TestOrchestrator_SpawnsAroundCoreWithoutPlayers(t *testing.T) {
	reg := entity.NewRegistry()
	w := world.NewLocal(reg, world.FlatTerrain{}, world.NewDayCycle(100, 50, 99, 60))
	o := wave.NewOrchestrator(testConfig(), wave.Deps{
		Tiers:      wave.DefaultTierTable(),
		Difficulty: difficulty.NewTracker(difficulty.Config{Interval: time.Minute, Step: 1}, 5, 5, time.Now(), nil),
		World:      w,
		CoreAnchor: func() (geom.Vec3, bool) { return geom.V(100, 0, 100), true },
		Roller:     dice.NewRoller(dice.NewSeededSource(1), nil),
		Spawner:    wave.RegistrySpawner{Registry: reg},
	})
	o.Tick(1)
	assert.Equal(t, wave.Warning, o.State().Phase)
	assert.Len(t, o.SpawnPoints(), 3)
}

// untilSpawning ticks f until the first batch is out.
func (f *fixture) untilSpawning(t *testing.T) {
	for now := int64(1); f.orch.State().Phase != wave.Spawning; now++ {
		require.Less(t, now, int64(50), "no wave spawned")
		f.orch.Tick(now)
	}
}

func TestOrchestrator_ScalesByTrackerUnlessForced(t *testing.T) {
	natural := newFixture(t, 350, world.FlatTerrain{Height: 64})
	natural.untilSpawning(t)
	hostiles := natural.reg.Living(entity.KindHostile)
	perPoint := int(math.Floor(float64(wave.DefaultConfig().BaseCounts[1]) * natural.diff.SpawnCountMultiplier()))
	require.Len(t, hostiles, perPoint*len(natural.orch.SpawnPoints()))
	for _, h := range hostiles {
		assert.Equal(t, natural.diff.SpawnTierFor(1), h.Tier)
		agent, ok := natural.tiers.Lookup(h.TypeID)
		require.True(t, ok)
		assert.Equal(t, int(math.Round(float64(agent.MaxHP)*natural.diff.TierStrengthMultiplier())), h.MaxHP)
	}

	forced := newFixture(t, 350, world.FlatTerrain{Height: 64})
	require.NoError(t, forced.orch.ForceStart(10, 1))
	forced.untilSpawning(t)
	hostiles = forced.reg.Living(entity.KindHostile)
	require.NotEmpty(t, hostiles)
	for _, h := range hostiles {
		assert.Equal(t, 1, h.Tier, "the override, not the tracker, picks the tier")
		agent, ok := forced.tiers.Lookup(h.TypeID)
		require.True(t, ok)
		assert.Equal(t, agent.MaxHP, h.MaxHP)
	}
}

func TestProperty_BatchSizeIsFlooredProduct(t *testing.T) {
	f := newFixture(t, 0, world.FlatTerrain{})
	rapid.Check(t, func(rt *rapid.T) {
		level := rapid.IntRange(0, 600).Draw(rt, "level")
		n := rapid.IntRange(1, wave.FinalWave).Draw(rt, "wave")
		base := wave.DefaultConfig().BaseCounts[n]
		got := f.orch.BatchSize(n, level)
		exact := float64(base) * difficulty.MultiplierFor(level)
		if float64(got) > exact+1e-6 || float64(got+1) <= exact-1e-6 {
			rt.Fatalf("batch %d is not floor(%v)", got, exact)
		}
	})
}

func TestLoadTierTable(t *testing.T) {
	dir := t.TempDir()
	for tier := 1; tier <= 2; tier++ {
		body := "tier: " + string(rune('0'+tier)) + "\nagents:\n" +
			"  - id: a" + string(rune('0'+tier)) + "\n    name: Agent\n    max_hp: 10\n    speed: 0.2\n" +
			"    damage: 1d4\n    attack_cooldown: 20\n    reach: 1.5\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "tier"+string(rune('0'+tier))+".yaml"), []byte(body), 0o644))
	}
	table, err := wave.LoadTierTable(dir, 2)
	require.NoError(t, err)
	a, ok := table.Lookup("a2")
	require.True(t, ok)
	assert.Equal(t, 4, a.DamageExpr().Max())

	_, err = wave.LoadTierTable(dir, 3)
	assert.Error(t, err, "tier 3 is missing")
}

func TestLoadTierTable_ShippedContentMatchesBuiltIn(t *testing.T) {
	loaded, err := wave.LoadTierTable(filepath.Join("..", "..", "..", "content", "tiers"), difficulty.MaxTier)
	require.NoError(t, err)
	builtin := wave.DefaultTierTable()
	for tier := 1; tier <= difficulty.MaxTier; tier++ {
		want := builtin.Agents(tier)
		got := loaded.Agents(tier)
		require.Len(t, got, len(want), "tier %d", tier)
		for i := range want {
			assert.Equal(t, want[i].ID, got[i].ID)
			assert.Equal(t, want[i].MaxHP, got[i].MaxHP)
			assert.Equal(t, want[i].Damage, got[i].Damage)
			assert.Equal(t, want[i].AttackCooldown, got[i].AttackCooldown)
			assert.InDelta(t, want[i].Speed, got[i].Speed, 1e-9)
			assert.InDelta(t, want[i].Reach, got[i].Reach, 1e-9)
		}
	}
}

func TestTierTable_RejectsInvalidAgent(t *testing.T) {
	_, err := wave.NewTierTable(map[int][]*wave.AgentType{
		1: {{ID: "x", Name: "X", MaxHP: 1, Speed: 1, Damage: "bogus", AttackCooldown: 1, Reach: 1}},
	}, 1)
	assert.Error(t, err)
}
