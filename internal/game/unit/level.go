package unit

import "math"

// MaxLevel is the level cap.
const MaxLevel = 5

// levelThresholds[i] is the experience needed for level i+1.
var levelThresholds = [MaxLevel]int{0, 10, 30, 60, 100}

// XP awards.
const (
	KillXP      = 1
	WaveXP      = 10
	HealPerXP   = 10
	RepairPerXP = 5
)

// LevelFor returns the level reached with xp experience.
//
// Postcondition: 1 <= result <= MaxLevel; non-decreasing in xp.
func LevelFor(xp int) int {
	level := 1
	for i, need := range levelThresholds {
		if xp >= need {
			level = i + 1
		}
	}
	return level
}

// ThresholdFor returns the experience needed to reach level.
func ThresholdFor(level int) int {
	if level < 1 {
		return 0
	}
	return levelThresholds[min(level, MaxLevel)-1]
}

// DeriveStats computes the stats of a unit at level from its base stats.
// The result depends only on its arguments, so recomputing for the same
// level never compounds bonuses.
//
//	HP     base * (1 + 0.15*(level-1))
//	Damage base * (1 + 0.10*(level-1))
//	Speed  base * (1 + 0.05*(level-1))
func DeriveStats(base Stats, level int) Stats {
	l := float64(min(max(level, 1), MaxLevel) - 1)
	return Stats{
		MaxHP:  int(math.Round(float64(base.MaxHP) * (1 + 0.15*l))),
		Damage: int(math.Round(float64(base.Damage) * (1 + 0.10*l))),
		Speed:  base.Speed * (1 + 0.05*l),
	}
}
