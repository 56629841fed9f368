package entity

import (
	"sort"
	"sync"

	"github.com/cory-johannsen/coredefense/internal/game/geom"
)

// Registry tracks all live bodies by ID. Iteration is always in ascending
// ID order so runs are reproducible for a given random seed.
// All methods are safe for concurrent use; Body fields themselves are owned
// by the simulation goroutine.
type Registry struct {
	mu     sync.RWMutex
	bodies map[ID]*Body
	order  []ID
	next   ID
	dirty  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bodies: make(map[ID]*Body)}
}

// Spawn registers b under a freshly assigned ID and returns it.
//
// Precondition: b must be non-nil and not already registered.
// Postcondition: b.ID is unique and greater than every previously assigned ID.
func (r *Registry) Spawn(b *Body) *Body {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	b.ID = r.next
	b.removed = false
	r.bodies[b.ID] = b
	r.order = append(r.order, b.ID)
	return b
}

// Remove unregisters the body. Removing an unknown ID is a no-op.
//
// Postcondition: Handles to id resolve to absent.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bodies[id]
	if !ok {
		return
	}
	b.removed = true
	delete(r.bodies, id)
	r.dirty = true
}

// Get returns the registered body with the given ID, alive or not.
func (r *Registry) Get(id ID) (*Body, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bodies[id]
	return b, ok
}

// Resolve returns the body h refers to when it is still registered and alive.
//
// Postcondition: Returns (nil, false) for the zero handle, a removed body, or a dead body.
func (r *Registry) Resolve(h Handle) (*Body, bool) {
	if h.IsZero() {
		return nil, false
	}
	b, ok := r.Get(h.ID)
	if !ok || !b.Alive() {
		return nil, false
	}
	return b, true
}

// All returns a snapshot of every registered body in ascending ID order.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (r *Registry) All() []*Body {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compactLocked()
	out := make([]*Body, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bodies[id])
	}
	return out
}

// Living returns the alive bodies of kind in ascending ID order.
func (r *Registry) Living(kind Kind) []*Body {
	var out []*Body
	for _, b := range r.All() {
		if b.Kind == kind && b.Alive() {
			out = append(out, b)
		}
	}
	return out
}

// InRadius returns the alive bodies within radius of center that satisfy
// pred (nil accepts every body), in ascending ID order.
func (r *Registry) InRadius(center geom.Vec3, radius float64, pred func(*Body) bool) []*Body {
	r2 := radius * radius
	var out []*Body
	for _, b := range r.All() {
		if !b.Alive() || b.Pos.DistSq(center) > r2 {
			continue
		}
		if pred != nil && !pred(b) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Count returns the number of alive bodies of kind.
func (r *Registry) Count(kind Kind) int {
	return len(r.Living(kind))
}

// Reap removes every registered body of kind whose HP has reached zero and
// returns them in ascending ID order.
func (r *Registry) Reap(kind Kind) []*Body {
	var dead []*Body
	for _, b := range r.All() {
		if b.Kind == kind && b.HP <= 0 {
			dead = append(dead, b)
		}
	}
	for _, b := range dead {
		r.Remove(b.ID)
	}
	return dead
}

// compactLocked drops removed IDs from the iteration order.
// Caller must hold r.mu for writing.
func (r *Registry) compactLocked() {
	if !r.dirty {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.bodies[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
	// IDs are appended in increasing order; keep the invariant explicit after compaction.
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	r.dirty = false
}
