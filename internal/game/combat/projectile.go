package combat

import (
	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// Projectile is an attack in flight. It homes on its target and resolves on
// arrival; if the target is lost first, it flies on to the last known
// position and only its splash (if any) lands.
type Projectile struct {
	Owner  Owner
	Target entity.Handle
	Pos    geom.Vec3
	Speed  float64
	Damage int
	// SplashRadius > 0 makes the impact damage other hostiles within the radius.
	SplashRadius   float64
	SplashFraction float64

	aim geom.Vec3
}

// Scheduler owns every projectile in flight. It is driven by the simulation goroutine.
type Scheduler struct {
	inflight []*Projectile
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler { return &Scheduler{} }

// Launch adds p to the flight list, aimed at target.
//
// Precondition: p.Speed > 0.
func (s *Scheduler) Launch(p Projectile, target geom.Vec3) {
	if p.Speed <= 0 {
		p.Speed = 1
	}
	p.aim = target
	s.inflight = append(s.inflight, &p)
}

// InFlight returns the number of unresolved projectiles.
func (s *Scheduler) InFlight() int { return len(s.inflight) }

// Step advances each projectile one tick and resolves those that arrive.
//
// Postcondition: every resolved hit is passed to rep, primary before splash.
func (s *Scheduler) Step(reg *entity.Registry, rep Reporter) {
	kept := s.inflight[:0]
	for _, p := range s.inflight {
		target, alive := reg.Resolve(p.Target)
		if alive {
			p.aim = target.Pos
		} else {
			p.Target = entity.Handle{}
		}
		p.Pos = p.Pos.MoveToward(p.aim, p.Speed)
		if p.Pos.DistSq(p.aim) > 1e-9 {
			kept = append(kept, p)
			continue
		}
		s.resolve(reg, p, target, alive, rep)
	}
	for i := len(kept); i < len(s.inflight); i++ {
		s.inflight[i] = nil
	}
	s.inflight = kept
}

func (s *Scheduler) resolve(reg *entity.Registry, p *Projectile, target *entity.Body, alive bool, rep Reporter) {
	if alive {
		rep.Report(Apply(p.Owner, target, p.Damage, false))
	}
	if p.SplashRadius <= 0 {
		return
	}
	SplashAround(reg, p.Owner, p.aim, p.SplashRadius, int(float64(p.Damage)*p.SplashFraction), p.Target, rep)
}

// SplashAround deals amount to every living hostile within radius of point
// except the primary target. Non-hostile bodies are never hit.
func SplashAround(reg *entity.Registry, owner Owner, point geom.Vec3, radius float64, amount int, primary entity.Handle, rep Reporter) {
	if amount <= 0 {
		return
	}
	for _, b := range reg.InRadius(point, radius, func(b *entity.Body) bool { return b.Hostile() }) {
		if b.ID == primary.ID {
			continue
		}
		res := Apply(owner, b, amount, false)
		res.Splash = true
		rep.Report(res)
	}
}
