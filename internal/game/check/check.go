// Package check reports invariant violations. Builds tagged "debug" panic on
// a violation; release builds log it at warn level and let the caller clamp.
package check

import (
	"fmt"

	"go.uber.org/zap"
)

// Invariant reports whether cond holds. When it does not, the violation is
// logged (release) or panics (debug build).
//
// Postcondition: Returns cond unchanged in release builds.
func Invariant(logger *zap.Logger, cond bool, msg string, fields ...zap.Field) bool {
	if cond {
		return true
	}
	if strict {
		panic(fmt.Sprintf("invariant violated: %s", msg))
	}
	if logger != nil {
		logger.Warn("invariant violated, clamping", append([]zap.Field{zap.String("invariant", msg)}, fields...)...)
	}
	return false
}

// ClampInt returns v clamped to [lo, hi], reporting a violation when clamping was needed.
func ClampInt(logger *zap.Logger, v, lo, hi int, msg string) int {
	switch {
	case v < lo:
		Invariant(logger, false, msg, zap.Int("value", v), zap.Int("min", lo))
		return lo
	case v > hi:
		Invariant(logger, false, msg, zap.Int("value", v), zap.Int("max", hi))
		return hi
	}
	return v
}

// Strict reports whether violations panic.
func Strict() bool { return strict }
