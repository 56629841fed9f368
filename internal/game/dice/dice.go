// Package dice provides the randomness abstraction used by the simulation:
// deterministic and crypto sources, chance rolls, and damage expressions
// such as "2d4+1" carried by hostile-agent tables.
package dice

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Expression is a parsed damage expression "NdS+M". A plain integer such as
// "7" parses to a flat expression with Count == 0.
//
// Invariant: Count == 0 or Sides >= 2.
type Expression struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Parse parses "d6", "2d6", "2d6+3", "4d8-2", or a flat integer.
//
// Postcondition: Returns a valid Expression or a descriptive error.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}

	dIdx := strings.Index(s, "d")
	if dIdx < 0 {
		flat, err := strconv.Atoi(s)
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid flat value %q: %w", expr, err)
		}
		return Expression{Raw: expr, Modifier: flat}, nil
	}

	count := 1
	if dIdx > 0 {
		var err error
		count, err = strconv.Atoi(s[:dIdx])
		if err != nil || count < 1 {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q", expr)
		}
	}

	rest := s[dIdx+1:]
	modStr := ""
	if i := strings.IndexAny(rest, "+-"); i > 0 {
		modStr = rest[i:]
		rest = rest[:i]
	}

	sides, err := strconv.Atoi(rest)
	if err != nil || sides < 2 {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q", expr)
	}

	modifier := 0
	if modStr != "" {
		modifier, err = strconv.Atoi(modStr)
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", expr, err)
		}
	}
	return Expression{Raw: expr, Count: count, Sides: sides, Modifier: modifier}, nil
}

// MustParse parses expr and panics on error. Useful for built-in tables.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}

// Min returns the smallest total the expression can produce.
func (e Expression) Min() int { return e.Count + e.Modifier }

// Max returns the largest total the expression can produce.
func (e Expression) Max() int { return e.Count*e.Sides + e.Modifier }

// Roll evaluates e against src.
//
// Postcondition: Min() <= result <= Max().
func (e Expression) Roll(src Source) int {
	total := e.Modifier
	for i := 0; i < e.Count; i++ {
		total += src.Intn(e.Sides) + 1
	}
	return total
}

// Roller wraps a Source and a logger. Chance rolls and damage rolls are
// logged at debug level.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewRoller creates a Roller. A nil logger disables roll logging.
//
// Precondition: src must be non-nil.
func NewRoller(src Source, logger *zap.Logger) *Roller {
	if src == nil {
		panic("dice.NewRoller: src must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roller{src: src, logger: logger}
}

// Source returns the underlying randomness source.
func (r *Roller) Source() Source { return r.src }

// Intn returns a random int in [0, n).
func (r *Roller) Intn(n int) int { return r.src.Intn(n) }

// Float64 returns a random float in [0, 1).
func (r *Roller) Float64() float64 { return r.src.Float64() }

// Range returns a random float in [lo, hi).
//
// Precondition: lo <= hi.
func (r *Roller) Range(lo, hi float64) float64 {
	return lo + r.src.Float64()*(hi-lo)
}

// Chance reports whether an event with probability p occurs. p <= 0 never
// occurs and p >= 1 always occurs without consuming randomness.
func (r *Roller) Chance(p float64, reason string) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	v := r.src.Float64()
	hit := v < p
	r.logger.Debug("chance roll",
		zap.String("reason", reason),
		zap.Float64("p", p),
		zap.Float64("roll", v),
		zap.Bool("hit", hit),
	)
	return hit
}

// Damage rolls expr and logs the total.
func (r *Roller) Damage(expr Expression) int {
	total := expr.Roll(r.src)
	r.logger.Debug("damage roll",
		zap.String("expression", expr.Raw),
		zap.Int("total", total),
	)
	return total
}
