package gameserver

import (
	"time"

	"github.com/cory-johannsen/coredefense/internal/config"
	"github.com/cory-johannsen/coredefense/internal/game/ai"
	"github.com/cory-johannsen/coredefense/internal/game/difficulty"
	"github.com/cory-johannsen/coredefense/internal/game/mob"
	"github.com/cory-johannsen/coredefense/internal/game/wave"
)

// Settings are the tuning values of a Simulation.
type Settings struct {
	TickInterval        time.Duration
	Difficulty          difficulty.Config
	Wave                wave.Config
	AI                  ai.Params
	Mob                 mob.Config
	CoreMaxIntegrity    int
	DayLength           int64
	NightStart          int64
	NightEnd            int64
	StartTimeOfDay      int64
	RespawnTicks        int64
	KillDifficultyBonus int
	SnapshotEveryTicks  int64
	// BuildRadius bounds structure placement around the core; 0 is unbounded.
	BuildRadius float64
	// MaxUnits caps the roster; 0 is unbounded.
	MaxUnits int
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return SettingsFrom(config.Default().Simulation)
}

// SettingsFrom maps the simulation configuration section onto Settings.
//
// Precondition: c has passed config validation.
func SettingsFrom(c config.SimulationConfig) Settings {
	w := wave.DefaultConfig()
	w.WarningTicks = int64(c.Wave.WarningTicks)
	w.SpawnTicks = int64(c.Wave.SpawnTicks)
	w.CooldownTicks = int64(c.Wave.CooldownTicks)
	w.LocationsPerPlayer = c.Wave.SpawnLocationsCount
	w.MinDistance = c.Wave.MinDistance
	w.MaxDistance = c.Wave.MaxDistance
	w.PlacementRetries = c.Wave.PlacementRetries
	w.FallbackHeight = c.Wave.FallbackHeight
	w.MobSpread = c.Wave.MobSpread

	p := ai.DefaultParams()
	p.ReevaluateTicks = c.Unit.ReevaluateTicks
	p.RetreatThreshold = c.Unit.RetreatThreshold
	p.ReturnThreshold = c.Unit.ReturnThreshold

	return Settings{
		TickInterval:        c.TickInterval(),
		Difficulty:          difficulty.Config{Interval: c.DecayInterval, Step: c.DecayStep},
		Wave:                w,
		AI:                  p,
		Mob:                 mob.DefaultConfig(),
		CoreMaxIntegrity:    c.CoreMaxIntegrity,
		DayLength:           int64(c.DayLengthTicks),
		NightStart:          int64(c.NightStartTick),
		NightEnd:            int64(c.NightEndTick),
		RespawnTicks:        int64(c.Unit.RespawnTicks),
		KillDifficultyBonus: c.KillDifficultyBonus,
		SnapshotEveryTicks:  int64(c.SnapshotEveryTicks),
		BuildRadius:         64,
		MaxUnits:            32,
	}
}
