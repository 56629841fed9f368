// Package difficulty holds the decaying difficulty scalar that drives wave
// size and hostile tier selection.
package difficulty

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/check"
)

// MaxTier is the highest hostile tier.
const MaxTier = 5

// TierBumpThreshold is the scalar at or above which waves draw from one tier higher.
const TierBumpThreshold = 300

// ErrNonPositive is returned by Add for amounts <= 0.
var ErrNonPositive = errors.New("difficulty: amount must be positive")

// Config holds the decay parameters.
type Config struct {
	// Interval is the real time that must elapse between decay steps.
	Interval time.Duration
	// Step is subtracted once per elapsed Interval while the scalar is positive.
	Step int
}

// Tracker owns the difficulty scalar.
//
// Invariant: value >= 0; lifetime never decreases.
// Mutation happens on the simulation goroutine; reads are safe from any goroutine.
type Tracker struct {
	mu        sync.RWMutex
	cfg       Config
	value     int
	lifetime  int
	lastDecay time.Time
	logger    *zap.Logger
}

// NewTracker creates a Tracker with the given initial state.
//
// Precondition: cfg.Interval > 0; cfg.Step > 0.
// Postcondition: Returns a non-nil Tracker whose decay clock starts at now.
func NewTracker(cfg Config, value, lifetime int, now time.Time, logger *zap.Logger) *Tracker {
	if cfg.Interval <= 0 || cfg.Step <= 0 {
		panic("difficulty.NewTracker: interval and step must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{cfg: cfg, lastDecay: now, logger: logger}
	t.value = check.ClampInt(logger, value, 0, maxInt, "difficulty value must not be negative")
	t.lifetime = check.ClampInt(logger, lifetime, t.value, maxInt, "lifetime must cover the current value")
	return t
}

const maxInt = int(^uint(0) >> 1)

// Add raises the scalar and the lifetime total by amount. Both saturate at
// the largest int.
//
// Precondition: amount > 0.
// Postcondition: Returns ErrNonPositive and leaves state unchanged for amount <= 0.
func (t *Tracker) Add(amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositive, amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = saturatingAdd(t.value, amount)
	t.lifetime = saturatingAdd(t.lifetime, amount)
	return nil
}

// saturatingAdd returns a+b for non-negative operands, capped at maxInt.
func saturatingAdd(a, b int) int {
	if b > maxInt-a {
		return maxInt
	}
	return a + b
}

// DecayTick applies one Step for every whole Interval elapsed since the last
// decay, clamping at zero.
//
// Postcondition: Returns the number of intervals consumed. The decay clock
// advances by whole intervals even while the scalar is zero.
func (t *Tracker) DecayTick(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := now.Sub(t.lastDecay)
	if elapsed < t.cfg.Interval {
		return 0
	}
	k := int(elapsed / t.cfg.Interval)
	t.lastDecay = t.lastDecay.Add(time.Duration(k) * t.cfg.Interval)
	if t.value > 0 {
		t.value -= k * t.cfg.Step
		if t.value < 0 {
			t.value = 0
		}
	}
	check.Invariant(t.logger, t.value >= 0, "difficulty value must not be negative")
	return k
}

// Value returns the current scalar.
func (t *Tracker) Value() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// Lifetime returns the monotonic total of every Add.
func (t *Tracker) Lifetime() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lifetime
}

// Restore replaces the scalar and lifetime, used when loading a snapshot.
func (t *Tracker) Restore(value, lifetime int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = check.ClampInt(t.logger, value, 0, maxInt, "restored difficulty must not be negative")
	t.lifetime = max(lifetime, t.value)
	t.lastDecay = now
}

// SpawnCountMultiplier returns MultiplierFor(Value()).
func (t *Tracker) SpawnCountMultiplier() float64 { return MultiplierFor(t.Value()) }

// SpawnTierFor returns TierFor(Value(), wave).
func (t *Tracker) SpawnTierFor(wave int) int { return TierFor(t.Value(), wave) }

// TierStrengthMultiplier returns StrengthFor(Value()).
func (t *Tracker) TierStrengthMultiplier() float64 { return StrengthFor(t.Value()) }

// MultiplierFor maps a scalar to a spawn-count multiplier:
//
//	v <= 0        1.0
//	0 < v <= 50   1.0 to 2.0, linear
//	50 < v <= 100 2.0 to 3.0, linear
//	100 < v <= 200 3.0 to 4.0, linear
//	v > 200       5.0
//
// Postcondition: non-decreasing in v.
func MultiplierFor(v int) float64 {
	f := float64(v)
	switch {
	case v <= 0:
		return 1.0
	case v <= 50:
		return 1.0 + f/50
	case v <= 100:
		return 2.0 + (f-50)/50
	case v <= 200:
		return 3.0 + (f-100)/100
	default:
		return 5.0
	}
}

// TierFor returns the hostile tier a wave draws from: the wave number, one
// tier higher once the scalar reaches TierBumpThreshold, capped at MaxTier.
//
// Postcondition: 1 <= result <= MaxTier.
func TierFor(v, wave int) int {
	tier := wave
	if v >= TierBumpThreshold {
		tier++
	}
	return min(max(tier, 1), MaxTier)
}

// StrengthFor scales hostile hit points with the scalar.
//
// Postcondition: 1.0 <= result <= 1.5; non-decreasing in v.
func StrengthFor(v int) float64 {
	switch {
	case v <= 100:
		return 1.0
	case v <= 200:
		return 1.25
	default:
		return 1.5
	}
}
