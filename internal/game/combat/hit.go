// Package combat resolves damage between bodies: direct hits, critical
// rolls and travel-time projectiles with optional splash.
package combat

import (
	"math"

	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/entity"
)

// OwnerKind identifies what dealt damage.
type OwnerKind int

const (
	OwnerUnit OwnerKind = iota
	OwnerStructure
	OwnerHostile
)

// Owner is the credited source of a hit: a defending unit or structure ID.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// Result describes one resolved hit.
type Result struct {
	Owner  Owner
	Target *entity.Body
	Damage int
	Crit   bool
	Killed bool
	Splash bool
}

// Reporter receives every resolved hit so kills and damage can be credited.
type Reporter interface {
	Report(Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Result)

// Report calls f.
func (f ReporterFunc) Report(r Result) { f(r) }

// Crit holds critical-hit parameters.
type Crit struct {
	Chance     float64
	Multiplier float64
}

// RollDamage returns base damage, multiplied by c.Multiplier when the
// independent critical roll succeeds. The critical multiplier is the only
// multiplier applied here.
//
// Postcondition: result >= 0.
func RollDamage(r *dice.Roller, base int, c Crit) (int, bool) {
	if base <= 0 {
		return 0, false
	}
	if r.Chance(c.Chance, "critical hit") {
		return int(math.Floor(float64(base) * c.Multiplier)), true
	}
	return base, false
}

// Apply deals amount to target on behalf of owner.
//
// Postcondition: Returns a zero-damage Result when target is nil or dead.
func Apply(owner Owner, target *entity.Body, amount int, crit bool) Result {
	res := Result{Owner: owner, Target: target, Crit: crit}
	if !target.Alive() {
		return res
	}
	res.Damage, res.Killed = target.ApplyDamage(amount)
	return res
}
