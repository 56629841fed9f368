package unit

import "sync"

type respawnEntry struct {
	unitID  string
	readyAt int64
}

// RespawnQueue schedules dead units to return after a fixed number of ticks.
//
// Invariant: entries with a non-positive delay are never queued.
// Schedule may be called from any goroutine; Due is driven by the simulation goroutine.
type RespawnQueue struct {
	mu      sync.Mutex
	delay   int64
	pending []respawnEntry
}

// NewRespawnQueue creates a queue with the given delay in ticks.
// A delay <= 0 disables respawning.
func NewRespawnQueue(delay int64) *RespawnQueue {
	return &RespawnQueue{delay: delay}
}

// Schedule enqueues unitID to respawn at now+delay.
//
// Postcondition: No-op when the queue delay is <= 0 or unitID is already pending.
func (q *RespawnQueue) Schedule(unitID string, now int64) {
	if q.delay <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.pending {
		if e.unitID == unitID {
			return
		}
	}
	q.pending = append(q.pending, respawnEntry{unitID: unitID, readyAt: now + q.delay})
}

// Cancel drops any pending respawn for unitID.
func (q *RespawnQueue) Cancel(unitID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.pending[:0]
	for _, e := range q.pending {
		if e.unitID != unitID {
			kept = append(kept, e)
		}
	}
	q.pending = kept
}

// Due removes and returns, in scheduling order, the units ready at now.
func (q *RespawnQueue) Due(now int64) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ready []string
	var future []respawnEntry
	for _, e := range q.pending {
		if e.readyAt <= now {
			ready = append(ready, e.unitID)
		} else {
			future = append(future, e)
		}
	}
	q.pending = future
	return ready
}

// Pending returns the number of queued respawns.
func (q *RespawnQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
