// Package targeting selects targets from the bodies around a position.
package targeting

import (
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
	"github.com/cory-johannsen/coredefense/internal/game/world"
)

// Weights combine distance to the searcher with distance to the defended structure.
type Weights struct {
	Unit float64
	Core float64
}

// DefaultWeights favour threats near the defended structure over easy kills.
var DefaultWeights = Weights{Unit: 0.3, Core: 0.7}

// Score returns the weighted distance score of candidate c; lower is better.
func Score(c, from, core geom.Vec3, w Weights) float64 {
	return w.Unit*c.Dist(from) + w.Core*c.Dist(core)
}

// LivingHostile is the candidate predicate for every attack search.
func LivingHostile(b *entity.Body) bool { return b.Alive() && b.Hostile() }

// Best returns the candidate with the lowest score. Candidates are expected
// in ascending ID order; the strict comparison keeps the first of equal
// scores, so the lowest ID wins a tie.
//
// Postcondition: Returns nil when candidates is empty.
func Best(candidates []*entity.Body, from, core geom.Vec3, w Weights) *entity.Body {
	var best *entity.Body
	bestScore := 0.0
	for _, c := range candidates {
		s := Score(c.Pos, from, core, w)
		if best == nil || s < bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

// FindBest searches radius around from for living hostiles and returns the
// best-scoring one.
func FindBest(q world.Query, from geom.Vec3, radius float64, core geom.Vec3, w Weights) (*entity.Body, bool) {
	b := Best(q.EntitiesInRadius(from, radius, LivingHostile), from, core, w)
	return b, b != nil
}

// Nearest returns the candidate within radius of from that is closest to it
// and satisfies pred; ties go to the lowest ID.
func Nearest(q world.Query, from geom.Vec3, radius float64, pred func(*entity.Body) bool) (*entity.Body, bool) {
	var best *entity.Body
	bestD := 0.0
	for _, c := range q.EntitiesInRadius(from, radius, pred) {
		d := c.Pos.DistSq(from)
		if best == nil || d < bestD {
			best, bestD = c, d
		}
	}
	return best, best != nil
}
