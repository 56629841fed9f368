package ai

import (
	"github.com/cory-johannsen/coredefense/internal/game/combat"
	"github.com/cory-johannsen/coredefense/internal/game/targeting"
)

// Params are the tuning constants of the defender decision loop. Distances
// are in world units, durations in ticks.
type Params struct {
	ReevaluateTicks  int
	RetreatThreshold float64
	ReturnThreshold  float64
	RallyRadius      float64
	AttackRadius     float64
	LeashRadius      float64
	PatrolRadius     float64
	FollowDistance   float64
	Weights          targeting.Weights

	MeleeReach    float64
	MeleeCooldown int
	Crit          combat.Crit

	RangedPreferred float64
	RangedMax       float64
	RangedCooldown  int
	ProjectileSpeed float64

	HealRadius       float64
	HealSearchRadius float64
	HealCooldown     int
	HealAmount       int

	RepairRadius   float64
	RepairCooldown int
	RepairAmount   int

	TauntInterval int
	TauntChance   float64
	TauntRadius   float64
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		ReevaluateTicks:  10,
		RetreatThreshold: 0.30,
		ReturnThreshold:  0.50,
		RallyRadius:      24,
		AttackRadius:     16,
		LeashRadius:      8,
		PatrolRadius:     10,
		FollowDistance:   3,
		Weights:          targeting.DefaultWeights,

		MeleeReach:    2,
		MeleeCooldown: 20,
		Crit:          combat.Crit{Chance: 0.1, Multiplier: 1.5},

		RangedPreferred: 12,
		RangedMax:       20,
		RangedCooldown:  30,
		ProjectileSpeed: 1.5,

		HealRadius:       12,
		HealSearchRadius: 24,
		HealCooldown:     40,
		HealAmount:       6,

		RepairRadius:   6,
		RepairCooldown: 40,
		RepairAmount:   5,

		TauntInterval: 60,
		TauntChance:   0.8,
		TauntRadius:   8,
	}
}
