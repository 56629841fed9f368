// Package unit holds the persistent records of defending units: role,
// level, experience and lifetime counters. A record outlives the unit's
// body so the unit can be respawned.
package unit

import (
	"fmt"
	"strings"
)

// Role selects a unit's specialization.
type Role int

const (
	Melee Role = iota
	Ranged
	Healer
	Builder
	Tank
)

// Roles lists every role in declaration order.
var Roles = []Role{Melee, Ranged, Healer, Builder, Tank}

// String returns the lower-case role name.
func (r Role) String() string {
	switch r {
	case Melee:
		return "melee"
	case Ranged:
		return "ranged"
	case Healer:
		return "healer"
	case Builder:
		return "builder"
	case Tank:
		return "tank"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unit: unknown role %q", s)
}

// Combatant reports whether the role searches for hostile targets.
func (r Role) Combatant() bool {
	return r == Melee || r == Ranged || r == Tank
}

// Stats are the level-dependent attributes of a unit.
type Stats struct {
	MaxHP  int     `json:"max_hp"`
	Damage int     `json:"damage"`
	Speed  float64 `json:"speed"`
}

// BaseStats returns the level-1 stats of a role.
func BaseStats(r Role) Stats {
	switch r {
	case Ranged:
		return Stats{MaxHP: 20, Damage: 5, Speed: 0.25}
	case Healer:
		return Stats{MaxHP: 18, Damage: 2, Speed: 0.25}
	case Builder:
		return Stats{MaxHP: 22, Damage: 3, Speed: 0.25}
	case Tank:
		return Stats{MaxHP: 40, Damage: 4, Speed: 0.2}
	default:
		return Stats{MaxHP: 26, Damage: 6, Speed: 0.28}
	}
}
