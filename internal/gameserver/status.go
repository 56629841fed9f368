package gameserver

import (
	"github.com/cory-johannsen/coredefense/internal/game/difficulty"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/unit"
)

// UnitStatus is the externally visible state of one defender.
type UnitStatus struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	Owner    string    `json:"owner,omitempty"`
	Level    int       `json:"level"`
	XP       int       `json:"xp"`
	Alive    bool      `json:"alive"`
	HP       int       `json:"hp"`
	MaxHP    int       `json:"max_hp"`
	Mode     string    `json:"mode,omitempty"`
	Order    string    `json:"order"`
	Position geom.Vec3 `json:"position"`

	// NextLevelXP is the experience the next level needs; zero at the cap.
	NextLevelXP int `json:"next_level_xp,omitempty"`
}

// StructureStatus is the externally visible state of one structure.
type StructureStatus struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Position geom.Vec3 `json:"position"`
	Cooldown int       `json:"cooldown"`
	Kills    int       `json:"kills"`
}

// Status is a read-only view of the simulation published after every tick.
type Status struct {
	Tick               int64             `json:"tick"`
	TimeOfDay          int64             `json:"time_of_day"`
	Night              bool              `json:"night"`
	Phase              string            `json:"phase"`
	Wave               int               `json:"wave"`
	Forced             bool              `json:"forced"`
	SpawnPoints        int               `json:"spawn_points"`
	Difficulty         int               `json:"difficulty"`
	DifficultyLifetime int               `json:"difficulty_lifetime"`
	SpawnMultiplier    float64           `json:"spawn_multiplier"`
	CoreIntegrity      int               `json:"core_integrity"`
	CoreMaxIntegrity   int               `json:"core_max_integrity"`
	CoreDestroyed      bool              `json:"core_destroyed"`
	CorePosition       *geom.Vec3        `json:"core_position,omitempty"`
	Hostiles           int               `json:"hostiles"`
	Projectiles        int               `json:"projectiles"`
	PendingRespawns    int               `json:"pending_respawns"`
	Units              []UnitStatus      `json:"units"`
	Structures         []StructureStatus `json:"structures"`
}

// Status returns the view published after the most recent tick.
// Safe to call from any goroutine.
func (s *Simulation) Status() *Status { return s.status.Load() }

func (s *Simulation) publishStatus() {
	st := &Status{
		Tick:               s.now,
		TimeOfDay:          s.cycle.TimeOfDay(),
		Night:              s.cycle.IsNight(),
		Phase:              s.waves.State().Phase.String(),
		Wave:               s.waves.State().Wave,
		Forced:             s.waves.Forced(),
		SpawnPoints:        len(s.waves.SpawnPoints()),
		Difficulty:         s.diff.Value(),
		DifficultyLifetime: s.diff.Lifetime(),
		SpawnMultiplier:    difficulty.MultiplierFor(s.waves.Level()),
		CoreIntegrity:      s.core.Value(),
		CoreMaxIntegrity:   s.core.Max(),
		CoreDestroyed:      s.core.Destroyed(),
		Hostiles:           s.reg.Count(entity.KindHostile),
		Projectiles:        s.projectiles.InFlight(),
		PendingRespawns:    s.respawn.Pending(),
	}
	if at, ok := s.core.Position(); ok {
		st.CorePosition = &at
	}
	for _, u := range s.roster.All() {
		us := UnitStatus{
			ID:       u.ID,
			Name:     u.Name,
			Role:     u.Role.String(),
			Owner:    u.Owner,
			Level:    u.Level,
			XP:       u.XP,
			MaxHP:    u.Stats.MaxHP,
			Order:    u.Order.String(),
			Position: u.LastPos,
		}
		if u.Level < unit.MaxLevel {
			us.NextLevelXP = unit.ThresholdFor(u.Level + 1)
		}
		if body, ok := s.reg.Resolve(u.Body); ok {
			us.Alive, us.HP, us.Position = true, body.HP, body.Pos
		}
		if b, ok := s.behaviors[u.ID]; ok {
			us.Mode = b.Mode().String()
		}
		st.Units = append(st.Units, us)
	}
	for _, sr := range s.defense.All() {
		st.Structures = append(st.Structures, StructureStatus{
			ID:       sr.ID,
			Type:     sr.Type.ID,
			Position: sr.Pos,
			Cooldown: sr.Cooldown(),
			Kills:    sr.Kills,
		})
	}
	s.status.Store(st)
}
