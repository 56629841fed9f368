package difficulty_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/coredefense/internal/game/difficulty"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTracker(value int) *difficulty.Tracker {
	return difficulty.NewTracker(difficulty.Config{Interval: time.Minute, Step: 1}, value, value, epoch, nil)
}

func TestTracker_AddRejectsNonPositive(t *testing.T) {
	tr := newTracker(5)
	err := tr.Add(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, difficulty.ErrNonPositive))
	assert.Error(t, tr.Add(-3))
	assert.Equal(t, 5, tr.Value())
}

func TestTracker_AddRaisesLifetime(t *testing.T) {
	tr := newTracker(0)
	require.NoError(t, tr.Add(7))
	require.NoError(t, tr.Add(3))
	assert.Equal(t, 10, tr.Value())
	assert.Equal(t, 10, tr.Lifetime())
}

func TestTracker_AddSaturatesAtMaxInt(t *testing.T) {
	tr := newTracker(0)
	require.NoError(t, tr.Add(math.MaxInt))
	require.NoError(t, tr.Add(1))
	assert.Equal(t, math.MaxInt, tr.Value())
	assert.Equal(t, math.MaxInt, tr.Lifetime())

	tr.DecayTick(epoch.Add(time.Minute))
	assert.Equal(t, math.MaxInt-1, tr.Value())
	assert.Equal(t, math.MaxInt, tr.Lifetime())
}

func TestTracker_SpawnScalingFollowsValue(t *testing.T) {
	tr := newTracker(0)
	assert.Equal(t, 1.0, tr.SpawnCountMultiplier())
	assert.Equal(t, 1, tr.SpawnTierFor(1))
	assert.Equal(t, 1.0, tr.TierStrengthMultiplier())

	require.NoError(t, tr.Add(350))
	assert.Equal(t, 5.0, tr.SpawnCountMultiplier())
	assert.Equal(t, 3, tr.SpawnTierFor(2))
	assert.Equal(t, 1.5, tr.TierStrengthMultiplier())
}

func TestTracker_DecayWaitsForInterval(t *testing.T) {
	tr := newTracker(10)
	assert.Equal(t, 0, tr.DecayTick(epoch.Add(59*time.Second)))
	assert.Equal(t, 10, tr.Value())
	assert.Equal(t, 1, tr.DecayTick(epoch.Add(61*time.Second)))
	assert.Equal(t, 9, tr.Value())
	// The remainder carries over: 61s + 59s is the second whole interval.
	assert.Equal(t, 1, tr.DecayTick(epoch.Add(120*time.Second)))
	assert.Equal(t, 8, tr.Value())
}

func TestTracker_DecayClampsAtZeroKeepsLifetime(t *testing.T) {
	tr := newTracker(2)
	tr.DecayTick(epoch.Add(10 * time.Minute))
	assert.Equal(t, 0, tr.Value())
	assert.Equal(t, 2, tr.Lifetime())
}

func TestMultiplierFor_Breakpoints(t *testing.T) {
	assert.Equal(t, 1.0, difficulty.MultiplierFor(0))
	assert.Equal(t, 2.0, difficulty.MultiplierFor(50))
	m60 := difficulty.MultiplierFor(60)
	assert.GreaterOrEqual(t, m60, 2.0)
	assert.Less(t, m60, 3.0)
	assert.InDelta(t, 3.2, difficulty.MultiplierFor(120), 1e-9)
	assert.Equal(t, 4.0, difficulty.MultiplierFor(200))
	assert.Equal(t, 5.0, difficulty.MultiplierFor(500))
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, 1, difficulty.TierFor(120, 1))
	assert.Equal(t, 2, difficulty.TierFor(300, 1))
	assert.Equal(t, 5, difficulty.TierFor(1000, 5))
	assert.Equal(t, 1, difficulty.TierFor(0, 0))
}

func TestProperty_MultiplierNonDecreasing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.IntRange(-50, 600).Draw(rt, "a")
		b := rapid.IntRange(a, 600).Draw(rt, "b")
		if difficulty.MultiplierFor(a) > difficulty.MultiplierFor(b) {
			rt.Fatalf("multiplier(%d)=%v > multiplier(%d)=%v", a, difficulty.MultiplierFor(a), b, difficulty.MultiplierFor(b))
		}
		if difficulty.StrengthFor(a) > difficulty.StrengthFor(b) {
			rt.Fatalf("strength not monotonic between %d and %d", a, b)
		}
	})
}

func TestProperty_NeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := newTracker(rapid.IntRange(0, 50).Draw(rt, "initial"))
		now := epoch
		ops := rapid.IntRange(1, 60).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_ = tr.Add(rapid.IntRange(1, 10).Draw(rt, "amount"))
			case 1:
				_ = tr.Add(rapid.IntRange(math.MaxInt-10, math.MaxInt).Draw(rt, "huge"))
			default:
				now = now.Add(time.Duration(rapid.IntRange(0, 300).Draw(rt, "secs")) * time.Second)
				tr.DecayTick(now)
			}
			if tr.Value() < 0 || tr.Lifetime() < tr.Value() {
				rt.Fatalf("value=%d lifetime=%d", tr.Value(), tr.Lifetime())
			}
		}
	})
}

func TestProperty_DecayAfterNIntervals(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		initial := rapid.IntRange(0, 100).Draw(rt, "initial")
		n := rapid.IntRange(0, 150).Draw(rt, "n")
		tr := newTracker(initial)
		now := epoch
		for i := 0; i < n; i++ {
			now = now.Add(time.Minute)
			tr.DecayTick(now)
		}
		want := max(0, initial-n)
		if tr.Value() != want {
			rt.Fatalf("after %d intervals from %d: got %d, want %d", n, initial, tr.Value(), want)
		}
	})
}
