package world

import (
	"fmt"
	"sync"
)

// TimePeriod is a named phase of the day.
type TimePeriod string

const (
	PeriodMidnight  TimePeriod = "Midnight"
	PeriodLateNight TimePeriod = "Late Night"
	PeriodDawn      TimePeriod = "Dawn"
	PeriodMorning   TimePeriod = "Morning"
	PeriodAfternoon TimePeriod = "Afternoon"
	PeriodDusk      TimePeriod = "Dusk"
	PeriodEvening   TimePeriod = "Evening"
	PeriodNight     TimePeriod = "Night"
)

// Hour is a clock hour in [0, 23].
type Hour int

// Period returns the named time period for this hour.
//
// Precondition: h is in [0, 23].
// Postcondition: Returns one of the eight TimePeriod constants.
func (h Hour) Period() TimePeriod {
	switch {
	case h == 0:
		return PeriodMidnight
	case h >= 1 && h <= 4:
		return PeriodLateNight
	case h >= 5 && h <= 6:
		return PeriodDawn
	case h >= 7 && h <= 11:
		return PeriodMorning
	case h >= 12 && h <= 16:
		return PeriodAfternoon
	case h >= 17 && h <= 18:
		return PeriodDusk
	case h >= 19 && h <= 21:
		return PeriodEvening
	default:
		return PeriodNight
	}
}

// String returns the hour in "HH:00" format.
func (h Hour) String() string {
	return fmt.Sprintf("%02d:00", int(h))
}

// Transition reports a day/night boundary crossed by Advance.
type Transition int

const (
	NoTransition Transition = iota
	NightBegan
	DayBegan
)

// DayCycle is a tick-driven time of day. Night is the half-open window
// [nightStart, nightEnd); the window may wrap past the end of the day.
//
// Advance is called from the simulation goroutine; readers may query from any goroutine.
type DayCycle struct {
	mu         sync.RWMutex
	timeOfDay  int64
	length     int64
	nightStart int64
	nightEnd   int64
}

// NewDayCycle creates a DayCycle at startTick.
//
// Precondition: length > 0; nightStart and nightEnd in [0, length).
// Postcondition: Returns a non-nil *DayCycle.
func NewDayCycle(length, nightStart, nightEnd, startTick int64) *DayCycle {
	if length <= 0 {
		panic("world.NewDayCycle: length must be > 0")
	}
	return &DayCycle{
		timeOfDay:  mod(startTick, length),
		length:     length,
		nightStart: mod(nightStart, length),
		nightEnd:   mod(nightEnd, length),
	}
}

// Advance moves the cycle forward one tick.
//
// Postcondition: Returns the boundary crossed, if any.
func (c *DayCycle) Advance() Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.nightAt(c.timeOfDay)
	c.timeOfDay = (c.timeOfDay + 1) % c.length
	after := c.nightAt(c.timeOfDay)
	switch {
	case !before && after:
		return NightBegan
	case before && !after:
		return DayBegan
	default:
		return NoTransition
	}
}

// TimeOfDay returns the tick within the current day.
func (c *DayCycle) TimeOfDay() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeOfDay
}

// SetTimeOfDay moves the cycle to t modulo the day length.
func (c *DayCycle) SetTimeOfDay(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeOfDay = mod(t, c.length)
}

// Hour maps the time of day onto a 24-hour clock.
func (c *DayCycle) Hour() Hour {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Hour(c.timeOfDay * 24 / c.length)
}

// IsNight reports whether the current time is inside the night window.
func (c *DayCycle) IsNight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nightAt(c.timeOfDay)
}

func (c *DayCycle) nightAt(t int64) bool {
	if c.nightStart == c.nightEnd {
		return false
	}
	if c.nightStart < c.nightEnd {
		return t >= c.nightStart && t < c.nightEnd
	}
	return t >= c.nightStart || t < c.nightEnd
}

func mod(v, m int64) int64 {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}
