// Package mobility defines the movement service the simulation issues
// destination requests to, and a straight-line Mover that integrates those
// requests against the entity registry once per tick.
package mobility

import (
	"sort"
	"sync"

	"github.com/cory-johannsen/coredefense/internal/game/entity"
	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// Service accepts movement requests. Path computation is the service's concern.
type Service interface {
	RequestMoveTo(id entity.ID, dest geom.Vec3)
	RequestMoveToEntity(id, target entity.ID, speed float64)
	Stop(id entity.ID)
	IsIdle(id entity.ID) bool
}

// ArriveDistance is how close a body must get to a point destination before
// the order completes, and the stand-off distance kept from an entity target.
const ArriveDistance = 1.0

type order struct {
	dest   geom.Vec3
	target entity.Handle
	speed  float64
}

// Mover is a kinematic Service: bodies move in a straight line toward their
// destination at their own speed (or the requested speed) each Step.
type Mover struct {
	mu     sync.Mutex
	orders map[entity.ID]order
}

// NewMover creates an idle Mover.
func NewMover() *Mover {
	return &Mover{orders: make(map[entity.ID]order)}
}

// RequestMoveTo implements Service.
func (m *Mover) RequestMoveTo(id entity.ID, dest geom.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id] = order{dest: dest}
}

// RequestMoveToEntity implements Service. A non-positive speed uses the
// body's own speed.
func (m *Mover) RequestMoveToEntity(id, target entity.ID, speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id] = order{target: entity.Handle{ID: target}, speed: speed}
}

// Stop implements Service.
func (m *Mover) Stop(id entity.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
}

// IsIdle implements Service.
func (m *Mover) IsIdle(id entity.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.orders[id]
	return !busy
}

// Step advances every ordered body by one tick. Orders whose body or
// target entity no longer resolves are dropped.
//
// Postcondition: Point orders that reach their destination are removed.
func (m *Mover) Step(reg *entity.Registry) {
	m.mu.Lock()
	ids := make([]entity.ID, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m.mu.Lock()
		o, ok := m.orders[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		body, ok := reg.Resolve(entity.Handle{ID: id})
		if !ok {
			m.Stop(id)
			continue
		}
		speed := o.speed
		if speed <= 0 {
			speed = body.Speed
		}
		if o.target.IsZero() {
			body.Pos = body.Pos.MoveToward(o.dest, speed)
			if body.Pos.Dist(o.dest) <= ArriveDistance {
				m.Stop(id)
			}
			continue
		}
		target, ok := reg.Resolve(o.target)
		if !ok {
			m.Stop(id)
			continue
		}
		gap := body.Pos.Dist(target.Pos) - ArriveDistance
		if gap > 0 {
			body.Pos = body.Pos.MoveToward(target.Pos, min(speed, gap))
		}
	}
}

// Forget drops any order for id; used when a body is removed.
func (m *Mover) Forget(id entity.ID) { m.Stop(id) }
