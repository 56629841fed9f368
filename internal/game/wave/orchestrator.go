package wave

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/difficulty"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

// FinalWave is terminal: Spawning(FinalWave) always leads to Finished.
const FinalWave = 5

var (
	// ErrInvalidDifficulty rejects a forced start at difficulty <= 0.
	ErrInvalidDifficulty = errors.New("wave: difficulty must be positive")
	// ErrCycleActive rejects a forced start while a cycle is running.
	ErrCycleActive = errors.New("wave: a wave cycle is already in progress")
	// ErrNoAnchor rejects a start with no players and no core position.
	ErrNoAnchor = errors.New("wave: no players or core position to place spawn points around")
)

// Config holds the cycle timings and spawn geometry.
type Config struct {
	WarningTicks       int64
	SpawnTicks         int64
	CooldownTicks      int64
	LocationsPerPlayer int
	MinDistance        float64
	MaxDistance        float64
	PlacementRetries   int
	FallbackHeight     float64
	MobSpread          float64
	// BaseCounts[n] is the per-spawn-point batch size of wave n before scaling.
	BaseCounts [FinalWave + 1]int
	// UnlockThresholds[n] is the minimum difficulty for wave n to start.
	UnlockThresholds [FinalWave + 1]int
}

// DefaultConfig returns the stock timings and geometry.
func DefaultConfig() Config {
	return Config{
		WarningTicks:       200,
		SpawnTicks:         600,
		CooldownTicks:      1200,
		LocationsPerPlayer: 3,
		MinDistance:        24,
		MaxDistance:        48,
		PlacementRetries:   10,
		FallbackHeight:     5,
		MobSpread:          4,
		BaseCounts:         [FinalWave + 1]int{0, 3, 4, 5, 6, 8},
		UnlockThresholds:   [FinalWave + 1]int{0, 0, 0, 0, 100, 200},
	}
}

// SpawnPoint is a location hostiles are emitted from.
type SpawnPoint struct {
	Pos         geom.Vec3
	Owner       entity.ID
	OwnerName   string
	CreatedTick int64
}

// Spawner materializes hostile agents.
type Spawner interface {
	SpawnHostile(agent *AgentType, pos geom.Vec3, tier int, strength float64) *entity.Body
}

// RegistrySpawner spawns hostiles straight into a registry.
type RegistrySpawner struct {
	Registry *entity.Registry
}

// SpawnHostile implements Spawner.
func (s RegistrySpawner) SpawnHostile(agent *AgentType, pos geom.Vec3, tier int, strength float64) *entity.Body {
	hp := max(1, int(math.Round(float64(agent.MaxHP)*strength)))
	return s.Registry.Spawn(&entity.Body{
		Kind:   entity.KindHostile,
		Name:   agent.Name,
		TypeID: agent.ID,
		Pos:    pos,
		HP:     hp,
		MaxHP:  hp,
		Speed:  agent.Speed,
		Tier:   tier,
	})
}

// Step reports what one Tick did.
type Step struct {
	From, To      State
	CompletedWave int
	Spawned       int
}

// Changed reports whether the phase changed.
func (s Step) Changed() bool { return !s.From.Equal(s.To) }

// Orchestrator owns the single live wave State.
// It is driven only by the simulation goroutine.
type Orchestrator struct {
	cfg     Config
	tiers   *TierTable
	diff    *difficulty.Tracker
	world   world.Query
	anchor  func() (geom.Vec3, bool)
	roller  *dice.Roller
	spawner Spawner
	sink    events.Sink
	logger  *zap.Logger

	state    State
	points   []SpawnPoint
	forced   bool
	override int
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Tiers      *TierTable
	Difficulty *difficulty.Tracker
	World      world.Query
	// CoreAnchor returns the defended structure position, used to place
	// spawn points when no player is online.
	CoreAnchor func() (geom.Vec3, bool)
	Roller     *dice.Roller
	Spawner    Spawner
	Sink       events.Sink
	Logger     *zap.Logger
}

// NewOrchestrator creates an Inactive orchestrator.
//
// Precondition: Tiers, Difficulty, World, Roller and Spawner must be non-nil.
func NewOrchestrator(cfg Config, d Deps) *Orchestrator {
	if d.Tiers == nil || d.Difficulty == nil || d.World == nil || d.Roller == nil || d.Spawner == nil {
		panic("wave.NewOrchestrator: missing dependency")
	}
	if d.Sink == nil {
		d.Sink = events.Discard
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.CoreAnchor == nil {
		d.CoreAnchor = func() (geom.Vec3, bool) { return geom.Vec3{}, false }
	}
	return &Orchestrator{
		cfg:     cfg,
		tiers:   d.Tiers,
		diff:    d.Difficulty,
		world:   d.World,
		anchor:  d.CoreAnchor,
		roller:  d.Roller,
		spawner: d.Spawner,
		sink:    d.Sink,
		logger:  d.Logger,
	}
}

// State returns the live state.
func (o *Orchestrator) State() State { return o.state }

// Forced reports whether the running cycle was force-started.
func (o *Orchestrator) Forced() bool { return o.forced }

// SpawnPoints returns a copy of the live spawn points.
func (o *Orchestrator) SpawnPoints() []SpawnPoint {
	return append([]SpawnPoint(nil), o.points...)
}

// Level returns the difficulty the cycle is scaled by: the forced override
// during a forced cycle, the tracker value otherwise.
func (o *Orchestrator) Level() int {
	if o.forced {
		return o.override
	}
	return o.diff.Value()
}

// ForceStart begins a cycle immediately at the given difficulty, regardless
// of the time of day.
//
// Precondition: level > 0; the cycle is Inactive or Finished.
// Postcondition: On error no state has changed.
func (o *Orchestrator) ForceStart(level int, now int64) error {
	if level <= 0 {
		return ErrInvalidDifficulty
	}
	if o.state.Phase != Inactive && o.state.Phase != Finished {
		return ErrCycleActive
	}
	points := o.placeSpawnPoints(now)
	if len(points) == 0 {
		return ErrNoAnchor
	}
	o.forced, o.override = true, level
	o.enterWarning(points, now)
	return nil
}

// Reset discards the cycle and returns to Inactive.
func (o *Orchestrator) Reset(now int64, reason string) {
	if o.state.Phase == Inactive {
		return
	}
	from := o.state
	o.points = nil
	o.forced, o.override = false, 0
	o.transition(State{Phase: Inactive, Since: now})
	e := events.New(events.CycleReset, now)
	e.Detail = reason
	e.Wave = from.Wave
	o.sink.Emit(e)
}

// Tick advances the phase machine by one tick.
func (o *Orchestrator) Tick(now int64) Step {
	step := Step{From: o.state}
	defer func() { step.To = o.state }()

	if o.state.Phase == Inactive {
		if o.world.IsNight() && o.diff.Value() > 0 {
			if points := o.placeSpawnPoints(now); len(points) > 0 {
				o.enterWarning(points, now)
			}
		}
		return step
	}
	// A forced cycle runs to Finished regardless of the time of day.
	if !o.forced && o.world.IsDay() {
		o.Reset(now, "day")
		return step
	}

	elapsed := now - o.state.Since
	switch o.state.Phase {
	case Warning:
		if elapsed >= o.cfg.WarningTicks {
			step.Spawned = o.enterSpawning(1, now)
		}
	case Spawning:
		if elapsed >= o.cfg.SpawnTicks {
			n := o.state.Wave
			step.CompletedWave = n
			e := events.New(events.WaveCompleted, now)
			e.Wave = n
			o.sink.Emit(e)
			if n >= FinalWave || !o.unlocked(n+1) {
				o.finish(now)
			} else {
				o.transition(State{Phase: Cooldown, Wave: n, Since: now})
			}
		}
	case Cooldown:
		if elapsed >= o.cfg.CooldownTicks {
			n := o.state.Wave + 1
			if o.unlocked(n) {
				step.Spawned = o.enterSpawning(n, now)
			} else {
				o.finish(now)
			}
		}
	}
	return step
}

func (o *Orchestrator) unlocked(n int) bool {
	return n <= FinalWave && o.Level() >= o.cfg.UnlockThresholds[n]
}

func (o *Orchestrator) enterWarning(points []SpawnPoint, now int64) {
	o.points = points
	o.transition(State{Phase: Warning, Since: now})
	e := events.New(events.WaveWarning, now)
	e.Amount = len(points)
	o.sink.Emit(e)
}

func (o *Orchestrator) enterSpawning(n int, now int64) int {
	o.transition(State{Phase: Spawning, Wave: n, Since: now})
	spawned := o.emitBatch(n)
	e := events.New(events.WaveStarted, now)
	e.Wave = n
	e.Amount = spawned
	o.sink.Emit(e)
	return spawned
}

func (o *Orchestrator) finish(now int64) {
	o.points = nil
	o.transition(State{Phase: Finished, Wave: o.state.Wave, Since: now})
	e := events.New(events.CycleFinished, now)
	e.Wave = o.state.Wave
	o.sink.Emit(e)
	o.forced, o.override = false, 0
}

func (o *Orchestrator) transition(to State) {
	from := o.state
	o.state = to
	o.logger.Info("wave phase changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int64("tick", to.Since),
		zap.Int("difficulty", o.Level()),
	)
	e := events.New(events.PhaseChanged, to.Since)
	e.Wave = to.Wave
	e.Detail = to.String()
	o.sink.Emit(e)
}

// BatchSize returns floor(BaseCounts[n] * multiplier) for the given level.
func (o *Orchestrator) BatchSize(n, level int) int {
	return o.batchSize(n, difficulty.MultiplierFor(level))
}

func (o *Orchestrator) batchSize(n int, mult float64) int {
	if n < 1 || n > FinalWave {
		return 0
	}
	return int(math.Floor(float64(o.cfg.BaseCounts[n])*mult + 1e-9))
}

// scaling returns the spawn multiplier, tier and hit-point strength for
// wave n. A forced cycle scales by its override instead of the tracker.
func (o *Orchestrator) scaling(n int) (mult float64, tier int, strength float64) {
	if o.forced {
		return difficulty.MultiplierFor(o.override), difficulty.TierFor(o.override, n), difficulty.StrengthFor(o.override)
	}
	return o.diff.SpawnCountMultiplier(), o.diff.SpawnTierFor(n), o.diff.TierStrengthMultiplier()
}

func (o *Orchestrator) emitBatch(n int) int {
	mult, tier, strength := o.scaling(n)
	count := o.batchSize(n, mult)
	total := 0
	for _, p := range o.points {
		for i := 0; i < count; i++ {
			agent := o.tiers.Draw(tier, o.roller)
			pos := p.Pos.OnCircle(o.roller.Range(0, 2*math.Pi), o.roller.Range(0, o.cfg.MobSpread))
			if y, ok := o.world.GroundHeight(pos.X, pos.Z); ok {
				pos.Y = y
			}
			if o.spawner.SpawnHostile(agent, pos, tier, strength) != nil {
				total++
			}
		}
	}
	o.logger.Info("wave batch spawned",
		zap.Int("wave", n),
		zap.Int("tier", tier),
		zap.Int("per_point", count),
		zap.Int("points", len(o.points)),
		zap.Int("total", total),
	)
	return total
}

// placeSpawnPoints creates LocationsPerPlayer points around every online
// player, or around the core when nobody is online.
func (o *Orchestrator) placeSpawnPoints(now int64) []SpawnPoint {
	type anchor struct {
		id   entity.ID
		name string
		pos  geom.Vec3
	}
	var anchors []anchor
	for _, p := range o.world.Players() {
		anchors = append(anchors, anchor{id: p.ID, name: p.Name, pos: p.Pos})
	}
	if len(anchors) == 0 {
		if pos, ok := o.anchor(); ok {
			anchors = append(anchors, anchor{name: "core", pos: pos})
		}
	}
	var points []SpawnPoint
	for _, a := range anchors {
		for i := 0; i < o.cfg.LocationsPerPlayer; i++ {
			points = append(points, SpawnPoint{
				Pos:         o.placeAround(a.pos),
				Owner:       a.id,
				OwnerName:   a.name,
				CreatedTick: now,
			})
		}
	}
	return points
}

// placeAround tries PlacementRetries random positions in the distance band
// and returns the first with ground under it, else the last candidate
// lifted FallbackHeight above the anchor.
func (o *Orchestrator) placeAround(center geom.Vec3) geom.Vec3 {
	var candidate geom.Vec3
	for attempt := 0; attempt < max(1, o.cfg.PlacementRetries); attempt++ {
		candidate = center.OnCircle(o.roller.Range(0, 2*math.Pi), o.roller.Range(o.cfg.MinDistance, o.cfg.MaxDistance))
		if y, ok := o.world.GroundHeight(candidate.X, candidate.Z); ok {
			candidate.Y = y
			return candidate
		}
	}
	candidate.Y = center.Y + o.cfg.FallbackHeight
	o.logger.Debug("no ground for spawn point, using fallback height",
		zap.Stringer("anchor", center),
		zap.Stringer("position", candidate),
	)
	return candidate
}
