// Package events defines the notifications the simulation core produces and
// a non-blocking fan-out Bus that hands them to asynchronous consumers.
package events

import (
	"github.com/google/uuid"

	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// Type names an event kind. Values are stable and used as Lua hook suffixes.
type Type string

const (
	PhaseChanged     Type = "phase_changed"
	WaveWarning      Type = "wave_warning"
	WaveStarted      Type = "wave_started"
	WaveCompleted    Type = "wave_completed"
	CycleFinished    Type = "cycle_finished"
	CycleReset       Type = "cycle_reset"
	HostileKilled    Type = "hostile_killed"
	UnitDied         Type = "unit_died"
	UnitRespawned    Type = "unit_respawned"
	UnitLevelUp      Type = "unit_level_up"
	UnitRecruited    Type = "unit_recruited"
	CoreDamaged      Type = "core_damaged"
	CoreDestroyed    Type = "core_destroyed"
	CoreRepaired     Type = "core_repaired"
	StructurePlaced  Type = "structure_placed"
	StructureRemoved Type = "structure_removed"
	NightBegan       Type = "night_began"
	DayBegan         Type = "day_began"
)

// Event is one notification. Consumers dedupe by ID; delivery is at least once.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Tick      int64     `json:"tick"`
	Wave      int       `json:"wave,omitempty"`
	Entity    entity.ID `json:"entity,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Structure string    `json:"structure,omitempty"`
	Position  geom.Vec3 `json:"position"`
	Amount    int       `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// New returns an event of type t at tick with a fresh ID.
func New(t Type, tick int64) Event {
	return Event{ID: uuid.New(), Type: t, Tick: tick}
}

// Sink receives events from the simulation goroutine. Implementations must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
