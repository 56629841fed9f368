package gameserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/unit"
)

var (
	// ErrStopped rejects commands submitted after the simulation stopped.
	ErrStopped = errors.New("simulation is not running")
	// ErrUnknownPlayer rejects references to players that are not online.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrInvalidOrder rejects an unrecognized unit order.
	ErrInvalidOrder = errors.New("order must be one of none, follow, stay")
	// ErrRosterFull rejects recruitment beyond the unit cap.
	ErrRosterFull = errors.New("unit roster is full")
	// ErrInvalidName rejects empty names.
	ErrInvalidName = errors.New("name must not be empty")
)

// CommandResult is the outcome of a command. Rejections carry a reason and
// leave the simulation unchanged.
type CommandResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	// ID names the entity a command created, when it created one.
	ID string `json:"id,omitempty"`
}

func reject(err error) CommandResult { return CommandResult{Reason: err.Error()} }

// Command is a mutation applied between ticks on the simulation goroutine.
type Command interface {
	// Name identifies the command in logs.
	Name() string
	apply(s *Simulation) (string, error)
}

type pending struct {
	cmd   Command
	reply chan CommandResult
}

// Enqueue queues cmd for the start of the next tick. The returned channel
// receives exactly one result.
func (s *Simulation) Enqueue(cmd Command) <-chan CommandResult {
	reply := make(chan CommandResult, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		reply <- reject(ErrStopped)
		return reply
	}
	s.queue = append(s.queue, pending{cmd: cmd, reply: reply})
	return reply
}

// Do queues cmd and waits for its result or for ctx to end.
func (s *Simulation) Do(ctx context.Context, cmd Command) CommandResult {
	select {
	case res := <-s.Enqueue(cmd):
		return res
	case <-ctx.Done():
		return reject(ctx.Err())
	}
}

func (s *Simulation) drainCommands() {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, p := range batch {
		p.reply <- s.execute(p.cmd)
	}
}

// execute applies one command, isolating panics as rejections.
func (s *Simulation) execute(cmd Command) (res CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("command panicked", zap.String("command", cmd.Name()), zap.Any("panic", r))
			res = CommandResult{Reason: "internal error"}
		}
	}()
	id, err := cmd.apply(s)
	if err != nil {
		s.logger.Warn("command rejected", zap.String("command", cmd.Name()), zap.Error(err))
		return reject(err)
	}
	s.logger.Debug("command applied", zap.String("command", cmd.Name()), zap.String("id", id))
	return CommandResult{OK: true, ID: id}
}

// ForceStartWave starts a wave cycle now at the given difficulty.
type ForceStartWave struct {
	Difficulty int `json:"difficulty"`
}

// Name implements Command.
func (ForceStartWave) Name() string { return "force_start_wave" }

func (c ForceStartWave) apply(s *Simulation) (string, error) {
	return "", s.waves.ForceStart(c.Difficulty, s.now)
}

// SetCorePosition places or moves the defended core.
type SetCorePosition struct {
	Position geom.Vec3 `json:"position"`
}

// Name implements Command.
func (SetCorePosition) Name() string { return "set_core_position" }

func (c SetCorePosition) apply(s *Simulation) (string, error) {
	s.core.SetPosition(c.Position)
	return "", nil
}

// ClearCorePosition removes the core from the world. Structures stay but no
// new ones can be placed.
type ClearCorePosition struct{}

// Name implements Command.
func (ClearCorePosition) Name() string { return "clear_core_position" }

func (ClearCorePosition) apply(s *Simulation) (string, error) {
	s.core.ClearPosition()
	return "", nil
}

// ResetCore restores the core to full integrity and clears the destroyed latch.
type ResetCore struct{}

// Name implements Command.
func (ResetCore) Name() string { return "reset_core" }

func (ResetCore) apply(s *Simulation) (string, error) {
	restored := s.core.Max() - s.core.Value()
	s.core.Reset()
	e := events.New(events.CoreRepaired, s.now)
	e.Amount = restored
	e.Detail = "reset"
	s.sink.Emit(e)
	return "", nil
}

// SetUnitOrder sets a standing order. Follow requires an online Leader.
type SetUnitOrder struct {
	UnitID string `json:"unit_id"`
	Order  string `json:"order"`
	Leader string `json:"leader,omitempty"`
}

// Name implements Command.
func (SetUnitOrder) Name() string { return "set_unit_order" }

func (c SetUnitOrder) apply(s *Simulation) (string, error) {
	u, err := s.roster.Get(c.UnitID)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(c.Order) {
	case "", "none":
		u.Order, u.FollowID = unit.OrderNone, 0
	case "stay":
		u.Order, u.FollowID = unit.OrderStay, 0
	case "follow":
		id, ok := s.players[c.Leader]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownPlayer, c.Leader)
		}
		u.Order, u.FollowID = unit.OrderFollow, id
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidOrder, c.Order)
	}
	s.reevaluate(u.ID)
	return u.ID, nil
}

// SetUnitWaypoint leashes a unit to a point.
type SetUnitWaypoint struct {
	UnitID   string    `json:"unit_id"`
	Position geom.Vec3 `json:"position"`
}

// Name implements Command.
func (SetUnitWaypoint) Name() string { return "set_unit_waypoint" }

func (c SetUnitWaypoint) apply(s *Simulation) (string, error) {
	u, err := s.roster.Get(c.UnitID)
	if err != nil {
		return "", err
	}
	u.SetWaypoint(c.Position)
	s.reevaluate(u.ID)
	return u.ID, nil
}

// ClearUnitWaypoint removes a unit's waypoint.
type ClearUnitWaypoint struct {
	UnitID string `json:"unit_id"`
}

// Name implements Command.
func (ClearUnitWaypoint) Name() string { return "clear_unit_waypoint" }

func (c ClearUnitWaypoint) apply(s *Simulation) (string, error) {
	u, err := s.roster.Get(c.UnitID)
	if err != nil {
		return "", err
	}
	u.ClearWaypoint()
	s.reevaluate(u.ID)
	return u.ID, nil
}

// PlaceStructure builds a structure near the core.
type PlaceStructure struct {
	Type     string    `json:"type"`
	Position geom.Vec3 `json:"position"`
	Owner    string    `json:"owner,omitempty"`
}

// Name implements Command.
func (PlaceStructure) Name() string { return "place_structure" }

func (c PlaceStructure) apply(s *Simulation) (string, error) {
	st, err := s.defense.Place(c.Type, c.Position, c.Owner, s.core)
	if err != nil {
		return "", err
	}
	e := events.New(events.StructurePlaced, s.now)
	e.Structure, e.Position, e.Detail = st.ID, st.Pos, st.Type.ID
	s.sink.Emit(e)
	return st.ID, nil
}

// RemoveStructure tears a structure down. Its projectiles in flight still land.
type RemoveStructure struct {
	ID string `json:"id"`
}

// Name implements Command.
func (RemoveStructure) Name() string { return "remove_structure" }

func (c RemoveStructure) apply(s *Simulation) (string, error) {
	st, err := s.defense.Remove(c.ID)
	if err != nil {
		return "", err
	}
	e := events.New(events.StructureRemoved, s.now)
	e.Structure, e.Position, e.Detail = st.ID, st.Pos, st.Type.ID
	s.sink.Emit(e)
	return st.ID, nil
}

// RecruitUnit adds a level-1 defender. Without a Position it appears at the
// core, or at the origin when the core is unplaced.
type RecruitUnit struct {
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	Owner    string     `json:"owner,omitempty"`
	Position *geom.Vec3 `json:"position,omitempty"`
}

// Name implements Command.
func (RecruitUnit) Name() string { return "recruit_unit" }

func (c RecruitUnit) apply(s *Simulation) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", ErrInvalidName
	}
	role, err := unit.ParseRole(c.Role)
	if err != nil {
		return "", err
	}
	if s.cfg.MaxUnits > 0 && s.roster.Len() >= s.cfg.MaxUnits {
		return "", fmt.Errorf("%w: limit %d", ErrRosterFull, s.cfg.MaxUnits)
	}
	pos := s.core.Anchor(geom.Vec3{})
	if c.Position != nil {
		pos = *c.Position
	}
	u := unit.New(c.Name, role, c.Owner, pos)
	s.roster.Add(u)
	s.spawnBody(u, pos)
	e := events.New(events.UnitRecruited, s.now)
	e.Unit, e.Entity, e.Position, e.Detail = u.ID, u.Body.ID, u.LastPos, role.String()
	s.sink.Emit(e)
	return u.ID, nil
}

// DismissUnit removes a defender and its body for good.
type DismissUnit struct {
	UnitID string `json:"unit_id"`
}

// Name implements Command.
func (DismissUnit) Name() string { return "dismiss_unit" }

func (c DismissUnit) apply(s *Simulation) (string, error) {
	u, err := s.roster.Get(c.UnitID)
	if err != nil {
		return "", err
	}
	if !u.Body.IsZero() {
		s.reg.Remove(u.Body.ID)
		s.mover.Forget(u.Body.ID)
	}
	delete(s.behaviors, u.ID)
	s.respawn.Cancel(u.ID)
	return u.ID, s.roster.Remove(u.ID)
}

// AddDifficulty raises the difficulty scalar.
type AddDifficulty struct {
	Amount int `json:"amount"`
}

// Name implements Command.
func (AddDifficulty) Name() string { return "add_difficulty" }

func (c AddDifficulty) apply(s *Simulation) (string, error) {
	return "", s.diff.Add(c.Amount)
}

const defaultPlayerHP = 20

// UpsertPlayer registers an online player or moves an existing one.
type UpsertPlayer struct {
	Name     string    `json:"name"`
	Position geom.Vec3 `json:"position"`
	HP       int       `json:"hp,omitempty"`
	MaxHP    int       `json:"max_hp,omitempty"`
}

// Name implements Command.
func (UpsertPlayer) Name() string { return "upsert_player" }

func (c UpsertPlayer) apply(s *Simulation) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", ErrInvalidName
	}
	maxHP := c.MaxHP
	if maxHP <= 0 {
		maxHP = defaultPlayerHP
	}
	hp := maxHP
	if c.HP > 0 {
		hp = min(c.HP, maxHP)
	}
	if id, ok := s.players[c.Name]; ok {
		if body, found := s.reg.Get(id); found {
			body.Pos, body.MaxHP = c.Position, maxHP
			switch {
			case c.HP > 0:
				body.HP = hp
			case body.HP <= 0:
				// A dead player rejoins at full health.
				body.HP = maxHP
			default:
				body.HP = min(body.HP, maxHP)
			}
			return fmt.Sprint(id), nil
		}
	}
	body := s.reg.Spawn(&entity.Body{Kind: entity.KindPlayer, Name: c.Name, Pos: c.Position, HP: hp, MaxHP: maxHP})
	s.players[c.Name] = body.ID
	return fmt.Sprint(body.ID), nil
}

// RemovePlayer takes a player offline. Units following them drop the order.
type RemovePlayer struct {
	Name string `json:"name"`
}

// Name implements Command.
func (RemovePlayer) Name() string { return "remove_player" }

func (c RemovePlayer) apply(s *Simulation) (string, error) {
	id, ok := s.players[c.Name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlayer, c.Name)
	}
	delete(s.players, c.Name)
	s.reg.Remove(id)
	for _, u := range s.roster.All() {
		if u.Order == unit.OrderFollow && u.FollowID == id {
			u.Order, u.FollowID = unit.OrderNone, 0
			s.reevaluate(u.ID)
		}
	}
	return fmt.Sprint(id), nil
}

// SetTimeOfDay jumps the day cycle.
type SetTimeOfDay struct {
	Tick int64 `json:"tick"`
}

// Name implements Command.
func (SetTimeOfDay) Name() string { return "set_time_of_day" }

func (c SetTimeOfDay) apply(s *Simulation) (string, error) {
	if c.Tick < 0 || c.Tick >= s.cfg.DayLength {
		return "", fmt.Errorf("time of day must be in [0, %d), got %d", s.cfg.DayLength, c.Tick)
	}
	s.cycle.SetTimeOfDay(c.Tick)
	return "", nil
}

func (s *Simulation) reevaluate(unitID string) {
	if b, ok := s.behaviors[unitID]; ok {
		b.Reevaluate()
	}
}
