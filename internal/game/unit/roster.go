package unit

import (
	"errors"
	"sync"
)

// ErrUnknownUnit is returned for IDs not in the roster.
var ErrUnknownUnit = errors.New("unit: unknown unit")

// Roster holds every unit record in recruitment order.
type Roster struct {
	mu    sync.RWMutex
	units map[string]*Unit
	order []string
}

// NewRoster creates an empty Roster.
func NewRoster() *Roster {
	return &Roster{units: make(map[string]*Unit)}
}

// Add registers u. Re-adding an existing ID replaces the record in place.
func (r *Roster) Add(u *Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[u.ID]; !ok {
		r.order = append(r.order, u.ID)
	}
	r.units[u.ID] = u
}

// Get returns the unit with id.
func (r *Roster) Get(id string) (*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[id]
	if !ok {
		return nil, ErrUnknownUnit
	}
	return u, nil
}

// Remove drops the unit with id.
func (r *Roster) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; !ok {
		return ErrUnknownUnit
	}
	delete(r.units, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// All returns the units in recruitment order.
func (r *Roster) All() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Unit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.units[id])
	}
	return out
}

// Len returns the number of units.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
