// Package gameserver hosts the simulation loop, the between-tick command
// queue, and the gRPC command service in front of it.
package gameserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/ai"
	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/core"
	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/difficulty"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/mob"
	"github.com/cory-johannsen/coredefense/internal/game/mobility"
	"github.com/cory-johannsen/coredefense/internal/game/structure"
	"github.com/cory-johannsen/coredefense/internal/game/unit"
	"github.com/cory-johannsen/coredefense/internal/game/wave"
	"github.com/cory-johannsen/coredefense/internal/game/world"
	"github.com/cory-johannsen/coredefense/internal/storage"
)

// Deps are the collaborators of a Simulation. Nil fields get defaults.
type Deps struct {
	Tiers     *wave.TierTable
	Catalog   *structure.Catalog
	Terrain   world.Terrain
	Source    dice.Source
	Sink      events.Sink
	Clock     func() time.Time
	Snapshots func(*storage.Snapshot)
	Logger    *zap.Logger
}

// Simulation owns every piece of game state and advances it one tick at a
// time on a single goroutine. Other goroutines interact only through the
// command queue, Status, and the event sink.
type Simulation struct {
	cfg       Settings
	logger    *zap.Logger
	clock     func() time.Time
	sink      events.Sink
	snapshots func(*storage.Snapshot)

	reg         *entity.Registry
	cycle       *world.DayCycle
	world       *world.Local
	mover       *mobility.Mover
	roller      *dice.Roller
	diff        *difficulty.Tracker
	core        *core.Integrity
	tiers       *wave.TierTable
	waves       *wave.Orchestrator
	defense     *structure.Defense
	roster      *unit.Roster
	behaviors   map[string]*ai.Behavior
	respawn     *unit.RespawnQueue
	projectiles *combat.Scheduler
	mobs        *mob.Driver
	players     map[string]entity.ID

	now int64

	mu      sync.Mutex
	queue   []pending
	stopped bool

	status atomic.Pointer[Status]
}

// NewSimulation builds a simulation at tick 0 with a full, unplaced core.
//
// Precondition: cfg.TickInterval > 0; cfg.DayLength > 0; difficulty interval and step > 0.
func NewSimulation(cfg Settings, d Deps) *Simulation {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tiers == nil {
		d.Tiers = wave.DefaultTierTable()
	}
	if d.Catalog == nil {
		d.Catalog = structure.DefaultCatalog()
	}
	if d.Terrain == nil {
		d.Terrain = world.FlatTerrain{}
	}
	if d.Source == nil {
		d.Source = dice.NewCryptoSource()
	}
	if d.Sink == nil {
		d.Sink = events.Discard
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	s := &Simulation{
		cfg:         cfg,
		logger:      d.Logger,
		clock:       d.Clock,
		sink:        d.Sink,
		snapshots:   d.Snapshots,
		reg:         entity.NewRegistry(),
		cycle:       world.NewDayCycle(cfg.DayLength, cfg.NightStart, cfg.NightEnd, cfg.StartTimeOfDay),
		mover:       mobility.NewMover(),
		roller:      dice.NewRoller(d.Source, d.Logger),
		core:        core.NewIntegrity(cfg.CoreMaxIntegrity, d.Logger),
		tiers:       d.Tiers,
		roster:      unit.NewRoster(),
		behaviors:   make(map[string]*ai.Behavior),
		respawn:     unit.NewRespawnQueue(cfg.RespawnTicks),
		projectiles: combat.NewScheduler(),
		players:     make(map[string]entity.ID),
	}
	s.world = world.NewLocal(s.reg, d.Terrain, s.cycle)
	s.diff = difficulty.NewTracker(cfg.Difficulty, 0, 0, s.clock(), d.Logger)
	s.defense = structure.NewDefense(d.Catalog, cfg.BuildRadius, d.Logger)
	s.mobs = mob.NewDriver(cfg.Mob, d.Tiers, d.Logger)
	s.waves = wave.NewOrchestrator(cfg.Wave, wave.Deps{
		Tiers:      d.Tiers,
		Difficulty: s.diff,
		World:      s.world,
		CoreAnchor: s.core.Position,
		Roller:     s.roller,
		Spawner:    wave.RegistrySpawner{Registry: s.reg},
		Sink:       s.sink,
		Logger:     d.Logger,
	})
	s.publishStatus()
	return s
}

// Now returns the current tick.
func (s *Simulation) Now() int64 { return s.now }

// Registry exposes the entity arena to tests and adapters on the simulation goroutine.
func (s *Simulation) Registry() *entity.Registry { return s.reg }

// Run ticks at the configured interval until ctx is cancelled. A final
// snapshot is handed off on the way out and queued commands are rejected.
func (s *Simulation) Run(ctx context.Context) error {
	if s.cfg.TickInterval <= 0 {
		return fmt.Errorf("gameserver: tick interval must be > 0")
	}
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	s.logger.Info("simulation started", zap.Duration("tick_interval", s.cfg.TickInterval))
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Simulation) shutdown() {
	s.mu.Lock()
	s.stopped = true
	rejected := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, p := range rejected {
		p.reply <- reject(ErrStopped)
	}
	if s.snapshots != nil {
		s.snapshots(s.Snapshot())
	}
	s.logger.Info("simulation stopped", zap.Int64("tick", s.now))
}

// Tick advances the simulation by one step. Queued commands apply first,
// then the components run in their fixed order.
func (s *Simulation) Tick() {
	s.now++
	s.drainCommands()
	s.advanceDay()

	if n := s.diff.DecayTick(s.clock()); n > 0 {
		s.logger.Debug("difficulty decayed", zap.Int("steps", n), zap.Int("value", s.diff.Value()))
	}
	if step := s.waves.Tick(s.now); step.CompletedWave > 0 {
		s.creditWave(step.CompletedWave)
	}
	s.defense.Tick(structure.Env{World: s.world, Registry: s.reg, Projectiles: s.projectiles, Reporter: s})
	s.tickUnits()
	s.projectiles.Step(s.reg, s)
	s.mobs.Step(&mob.Env{
		Now:      s.now,
		World:    s.world,
		Registry: s.reg,
		Mobility: s.mover,
		Core:     s.core,
		Roller:   s.roller,
		Reporter: s,
		Sink:     s.sink,
	})
	s.mover.Step(s.reg)
	s.reapHostiles()
	s.respawnDue()
	s.publishStatus()

	if s.snapshots != nil && s.cfg.SnapshotEveryTicks > 0 && s.now%s.cfg.SnapshotEveryTicks == 0 {
		s.snapshots(s.Snapshot())
	}
}

func (s *Simulation) advanceDay() {
	var t events.Type
	switch s.cycle.Advance() {
	case world.NightBegan:
		t = events.NightBegan
	case world.DayBegan:
		t = events.DayBegan
	default:
		return
	}
	e := events.New(t, s.now)
	e.Amount = int(s.cycle.TimeOfDay())
	s.sink.Emit(e)
	s.logger.Info("time of day changed", zap.String("event", string(t)), zap.Int64("tick", s.now))
}

func (s *Simulation) aiEnv() *ai.Env {
	return &ai.Env{
		Now:         s.now,
		World:       s.world,
		Registry:    s.reg,
		Mobility:    s.mover,
		Core:        s.core,
		Roller:      s.roller,
		Projectiles: s.projectiles,
		Reporter:    s,
		Sink:        s.sink,
		Logger:      s.logger,
	}
}

func (s *Simulation) tickUnits() {
	env := s.aiEnv()
	for _, u := range s.roster.All() {
		b, ok := s.behaviors[u.ID]
		if !ok {
			continue
		}
		body := u.Body
		if s.tickUnit(b, env) == ai.Died {
			delete(s.behaviors, u.ID)
			s.reg.Remove(body.ID)
			s.mover.Forget(body.ID)
			s.respawn.Schedule(u.ID, s.now)
			continue
		}
		s.syncBody(u)
	}
}

// tickUnit isolates one unit: a panic is logged and the unit is skipped
// for this tick.
func (s *Simulation) tickUnit(b *ai.Behavior, env *ai.Env) (st ai.Status) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("unit tick panicked",
				zap.String("unit", b.Unit().ID),
				zap.String("role", b.Unit().Role.String()),
				zap.Any("panic", r),
			)
			st = ai.Active
		}
	}()
	return b.Tick(env)
}

// syncBody applies level-derived stats to the unit's live body. Raising
// MaxHP raises HP by the same amount.
func (s *Simulation) syncBody(u *unit.Unit) {
	body, ok := s.reg.Resolve(u.Body)
	if !ok {
		return
	}
	if grow := u.Stats.MaxHP - body.MaxHP; grow > 0 {
		body.MaxHP += grow
		body.HP += grow
	}
	body.Speed = u.Stats.Speed
}

func (s *Simulation) creditWave(n int) {
	for _, u := range s.roster.All() {
		if _, alive := s.reg.Resolve(u.Body); !alive {
			continue
		}
		ai.AnnounceLevelUp(s.sink, u, u.RecordWaveSurvived(s.logger), s.now)
	}
	s.logger.Info("wave completed", zap.Int("wave", n), zap.Int("difficulty", s.diff.Value()))
}

func (s *Simulation) reapHostiles() {
	for _, b := range s.reg.Reap(entity.KindHostile) {
		s.mobs.Forget(b.ID)
		s.mover.Forget(b.ID)
	}
}

func (s *Simulation) respawnDue() {
	for _, id := range s.respawn.Due(s.now) {
		u, err := s.roster.Get(id)
		if err != nil {
			continue
		}
		s.spawnBody(u, s.core.Anchor(u.LastPos))
		e := events.New(events.UnitRespawned, s.now)
		e.Unit, e.Entity, e.Position = u.ID, u.Body.ID, u.LastPos
		e.Detail = u.Role.String()
		s.sink.Emit(e)
	}
}

// spawnBody gives u a full-health body at pos and a fresh behavior.
func (s *Simulation) spawnBody(u *unit.Unit, pos geom.Vec3) {
	if y, ok := s.world.GroundHeight(pos.X, pos.Z); ok {
		pos.Y = y
	}
	body := s.reg.Spawn(&entity.Body{
		Kind:   entity.KindDefender,
		Name:   u.Name,
		TypeID: u.Role.String(),
		Pos:    pos,
		HP:     u.Stats.MaxHP,
		MaxHP:  u.Stats.MaxHP,
		Speed:  u.Stats.Speed,
	})
	u.Body = entity.HandleOf(body)
	u.LastPos = pos
	s.behaviors[u.ID] = ai.New(u, s.cfg.AI)
}

// Report implements combat.Reporter. It credits the damage source and turns
// hostile deaths into kill events and difficulty.
func (s *Simulation) Report(r combat.Result) {
	if r.Target == nil {
		return
	}
	e := events.New(events.HostileKilled, s.now)
	switch r.Owner.Kind {
	case combat.OwnerUnit:
		if u, err := s.roster.Get(r.Owner.ID); err == nil {
			u.RecordDamage(r.Damage)
			if r.Killed {
				ai.AnnounceLevelUp(s.sink, u, u.RecordKill(s.logger), s.now)
			}
		}
		e.Unit = r.Owner.ID
	case combat.OwnerStructure:
		if st, ok := s.defense.Get(r.Owner.ID); ok {
			st.DamageDealt += r.Damage
			if r.Killed {
				st.Kills++
			}
		}
		e.Structure = r.Owner.ID
	default:
		return
	}
	if !r.Killed || !r.Target.Hostile() {
		return
	}
	if s.cfg.KillDifficultyBonus > 0 {
		_ = s.diff.Add(s.cfg.KillDifficultyBonus)
	}
	e.Entity, e.Position = r.Target.ID, r.Target.Pos
	e.Wave = s.waves.State().Wave
	e.Amount = r.Target.Tier
	e.Detail = r.Target.TypeID
	s.sink.Emit(e)
}

// Snapshot captures the durable state. Must be called on the simulation goroutine.
func (s *Simulation) Snapshot() *storage.Snapshot {
	snap := &storage.Snapshot{
		Version:    storage.Version,
		ID:         uuid.New(),
		Tick:       s.now,
		TakenAt:    s.clock().UTC(),
		TimeOfDay:  s.cycle.TimeOfDay(),
		Difficulty: storage.Difficulty{Value: s.diff.Value(), Lifetime: s.diff.Lifetime()},
		Core:       storage.Core{Integrity: s.core.Value(), Destroyed: s.core.Destroyed()},
		Structures: s.defense.Records(),
	}
	if at, ok := s.core.Position(); ok {
		snap.Core.Position = &at
	}
	for _, u := range s.roster.All() {
		if body, ok := s.reg.Resolve(u.Body); ok {
			u.LastPos = body.Pos
		}
		snap.Units = append(snap.Units, u.ToRecord())
	}
	return snap
}

// Restore loads snap into a fresh simulation. Units reappear at their last
// position with full health; records that fail to parse are skipped.
//
// Precondition: called before the first Tick.
func (s *Simulation) Restore(snap *storage.Snapshot) {
	s.now = snap.Tick
	s.cycle.SetTimeOfDay(snap.TimeOfDay)
	s.diff.Restore(snap.Difficulty.Value, snap.Difficulty.Lifetime, s.clock())
	s.core.Restore(snap.Core.Integrity, snap.Core.Destroyed)
	if snap.Core.Position != nil {
		s.core.SetPosition(*snap.Core.Position)
	}
	for _, rec := range snap.Units {
		u, err := unit.FromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping unit record", zap.String("unit", rec.ID), zap.Error(err))
			continue
		}
		s.roster.Add(u)
		s.spawnBody(u, u.LastPos)
	}
	s.defense.Restore(snap.Structures)
	s.publishStatus()
	s.logger.Info("simulation restored",
		zap.Int64("tick", snap.Tick),
		zap.Int("units", len(snap.Units)),
		zap.Int("structures", len(snap.Structures)),
		zap.Int("difficulty", snap.Difficulty.Value),
	)
}
