// Package wave runs the nightly wave cycle: spawn-point placement around
// players, tiered hostile batches scaled by difficulty, and the
// Warning/Spawning/Cooldown phase machine.
package wave

import "fmt"

// Phase is the coarse state of the night cycle.
type Phase int

const (
	Inactive Phase = iota
	Warning
	Spawning
	Cooldown
	Finished
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Inactive:
		return "Inactive"
	case Warning:
		return "Warning"
	case Spawning:
		return "Spawning"
	case Cooldown:
		return "Cooldown"
	case Finished:
		return "Finished"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is the live phase, its wave number (Spawning and Cooldown only)
// and the tick it was entered.
type State struct {
	Phase Phase
	Wave  int
	Since int64
}

// String renders "Spawning(2)" style names.
func (s State) String() string {
	if s.Phase == Spawning || s.Phase == Cooldown {
		return fmt.Sprintf("%s(%d)", s.Phase, s.Wave)
	}
	return s.Phase.String()
}

// Equal compares phase and wave, ignoring the entry tick.
func (s State) Equal(o State) bool { return s.Phase == o.Phase && s.Wave == o.Wave }
