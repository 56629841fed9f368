// Package geom provides the 3D vector arithmetic shared by every spatial
// component of the simulation. Y is the vertical axis.
package geom

import (
	"fmt"
	"math"
)

// Vec3 is a position or displacement in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// V constructs a Vec3.
func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist returns the Euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// DistSq returns the squared distance between v and o.
func (v Vec3) DistSq(o Vec3) float64 {
	d := v.Sub(o)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

// Normalize returns v scaled to unit length, or the zero vector when v is zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// MoveToward returns the point reached by moving from v toward target by at most step.
//
// Postcondition: the result equals target when target is within step.
func (v Vec3) MoveToward(target Vec3, step float64) Vec3 {
	d := target.Sub(v)
	l := d.Len()
	if l <= step || l == 0 {
		return target
	}
	return v.Add(d.Scale(step / l))
}

// OnCircle returns the horizontal point at angle (radians) and radius around v.
// The Y component is copied from v.
func (v Vec3) OnCircle(angle, radius float64) Vec3 {
	return Vec3{X: v.X + math.Cos(angle)*radius, Y: v.Y, Z: v.Z + math.Sin(angle)*radius}
}

// String formats v with one decimal.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}
