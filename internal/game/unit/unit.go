package unit

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/check"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// Order is a standing command from a player.
type Order int

const (
	OrderNone Order = iota
	OrderFollow
	OrderStay
)

// String returns the order name.
func (o Order) String() string {
	switch o {
	case OrderFollow:
		return "follow"
	case OrderStay:
		return "stay"
	default:
		return "none"
	}
}

// Counters are lifetime statistics.
type Counters struct {
	Kills         int `json:"kills"`
	DamageDealt   int `json:"damage_dealt"`
	HealingDone   int `json:"healing_done"`
	Repairs       int `json:"repairs"`
	WavesSurvived int `json:"waves_survived"`
}

// Unit is the persistent record of one defending unit.
//
// Invariant: Level == LevelFor(XP) and never decreases; Stats == DeriveStats(BaseStats(Role), Level).
// Mutated only on the simulation goroutine.
type Unit struct {
	ID       string
	Name     string
	Role     Role
	Owner    string
	Level    int
	XP       int
	Counters Counters
	Stats    Stats
	LastPos  geom.Vec3
	Body     entity.Handle

	Order       Order
	FollowID    entity.ID
	Waypoint    geom.Vec3
	HasWaypoint bool

	healCarry   int
	repairCarry int
}

// New creates a level-1 unit with a fresh ID.
func New(name string, role Role, owner string, pos geom.Vec3) *Unit {
	u := &Unit{
		ID:      uuid.NewString(),
		Name:    name,
		Role:    role,
		Owner:   owner,
		Level:   1,
		LastPos: pos,
	}
	u.ApplyStats()
	return u
}

// ApplyStats recomputes Stats for the current level.
//
// Postcondition: Calling ApplyStats repeatedly yields identical Stats.
func (u *Unit) ApplyStats() {
	u.Stats = DeriveStats(BaseStats(u.Role), u.Level)
}

// GrantXP adds experience and levels the unit up as thresholds are crossed.
//
// Postcondition: Returns the number of levels gained; Stats reflect the new level.
func (u *Unit) GrantXP(logger *zap.Logger, amount int) int {
	if !check.Invariant(logger, amount >= 0, "experience grant must not be negative", zap.String("unit", u.ID)) {
		return 0
	}
	u.XP += amount
	next := LevelFor(u.XP)
	if !check.Invariant(logger, next >= u.Level, "unit level must not decrease", zap.String("unit", u.ID)) {
		next = u.Level
	}
	gained := next - u.Level
	if gained > 0 {
		u.Level = next
		u.ApplyStats()
	}
	return gained
}

// RecordKill credits a kill.
func (u *Unit) RecordKill(logger *zap.Logger) int {
	u.Counters.Kills++
	return u.GrantXP(logger, KillXP)
}

// RecordDamage adds to the damage-dealt counter.
func (u *Unit) RecordDamage(amount int) {
	u.Counters.DamageDealt += max(amount, 0)
}

// RecordWaveSurvived credits a completed wave.
func (u *Unit) RecordWaveSurvived(logger *zap.Logger) int {
	u.Counters.WavesSurvived++
	return u.GrantXP(logger, WaveXP)
}

// RecordHealing credits hp healed; one XP per HealPerXP cumulative HP.
func (u *Unit) RecordHealing(logger *zap.Logger, hp int) int {
	if hp <= 0 {
		return 0
	}
	u.Counters.HealingDone += hp
	u.healCarry += hp
	xp := u.healCarry / HealPerXP
	u.healCarry %= HealPerXP
	return u.GrantXP(logger, xp)
}

// RecordRepair credits integrity repaired; one XP per RepairPerXP cumulative points.
func (u *Unit) RecordRepair(logger *zap.Logger, amount int) int {
	if amount <= 0 {
		return 0
	}
	u.Counters.Repairs += amount
	u.repairCarry += amount
	xp := u.repairCarry / RepairPerXP
	u.repairCarry %= RepairPerXP
	return u.GrantXP(logger, xp)
}

// SetWaypoint assigns a patrol waypoint.
func (u *Unit) SetWaypoint(p geom.Vec3) { u.Waypoint, u.HasWaypoint = p, true }

// ClearWaypoint removes the patrol waypoint.
func (u *Unit) ClearWaypoint() { u.Waypoint, u.HasWaypoint = geom.Vec3{}, false }

// Record is the serializable form of a Unit.
type Record struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Owner       string     `json:"owner,omitempty"`
	Level       int        `json:"level"`
	XP          int        `json:"xp"`
	Counters    Counters   `json:"counters"`
	LastPos     geom.Vec3  `json:"last_pos"`
	Order       string     `json:"order,omitempty"`
	Waypoint    *geom.Vec3 `json:"waypoint,omitempty"`
	HealCarry   int        `json:"heal_carry,omitempty"`
	RepairCarry int        `json:"repair_carry,omitempty"`
}

// ToRecord snapshots u.
func (u *Unit) ToRecord() Record {
	r := Record{
		ID:          u.ID,
		Name:        u.Name,
		Role:        u.Role.String(),
		Owner:       u.Owner,
		Level:       u.Level,
		XP:          u.XP,
		Counters:    u.Counters,
		LastPos:     u.LastPos,
		HealCarry:   u.healCarry,
		RepairCarry: u.repairCarry,
	}
	if u.Order != OrderNone {
		r.Order = u.Order.String()
	}
	if u.HasWaypoint {
		wp := u.Waypoint
		r.Waypoint = &wp
	}
	return r
}

// FromRecord rebuilds a Unit. Level is recomputed from XP; a stored level
// above that is kept so levels never decrease.
func FromRecord(r Record) (*Unit, error) {
	role, err := ParseRole(r.Role)
	if err != nil {
		return nil, err
	}
	u := &Unit{
		ID:          r.ID,
		Name:        r.Name,
		Role:        role,
		Owner:       r.Owner,
		XP:          max(r.XP, 0),
		Counters:    r.Counters,
		LastPos:     r.LastPos,
		healCarry:   r.HealCarry,
		repairCarry: r.RepairCarry,
	}
	u.Level = min(max(LevelFor(u.XP), r.Level), MaxLevel)
	switch r.Order {
	case "follow":
		// The follow target is a live body and is not persisted.
		u.Order = OrderNone
	case "stay":
		u.Order = OrderStay
	}
	if r.Waypoint != nil {
		u.SetWaypoint(*r.Waypoint)
	}
	u.ApplyStats()
	return u, nil
}
