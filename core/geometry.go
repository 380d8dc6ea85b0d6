package core

import "math"

// Vec2 is a position in the simulation plane, in metres.
type Vec2 struct {
	X, Y float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec2) DistanceTo(other Vec2) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Lerp returns the point a fraction t of the way from v to other.
func (v Vec2) Lerp(other Vec2, t float64) Vec2 {
	return Vec2{
		X: v.X + (other.X-v.X)*t,
		Y: v.Y + (other.Y-v.Y)*t,
	}
}

// inRange reports whether two hosts can hear each other: both radios on
// and the distance within the shorter of the two ranges.
func inRange(a, b *Host) bool {
	if !a.IsRadioActive() || !b.IsRadioActive() {
		return false
	}
	return a.Position.DistanceTo(b.Position) <= math.Min(a.RadioRange(), b.RadioRange())
}
