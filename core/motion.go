package core

import "sort"

// MotionModel yields a host's position for a simulation time.
type MotionModel interface {
	Position(now float64) Vec2
}

// StaticMotion keeps a host at a fixed point.
type StaticMotion struct {
	At Vec2
}

// Position returns the fixed point.
func (m StaticMotion) Position(float64) Vec2 { return m.At }

// Waypoint is a position a host reaches at time T.
type Waypoint struct {
	T   float64
	Pos Vec2
}

// WaypointMotion moves linearly between time-stamped waypoints and holds
// the first and last positions outside the covered interval.
type WaypointMotion struct {
	points []Waypoint
}

// NewWaypointMotion sorts the waypoints by time.
func NewWaypointMotion(points []Waypoint) *WaypointMotion {
	ps := append([]Waypoint(nil), points...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].T < ps[j].T })
	return &WaypointMotion{points: ps}
}

// Position interpolates between the surrounding waypoints.
func (m *WaypointMotion) Position(now float64) Vec2 {
	n := len(m.points)
	switch {
	case n == 0:
		return Vec2{}
	case now <= m.points[0].T:
		return m.points[0].Pos
	case now >= m.points[n-1].T:
		return m.points[n-1].Pos
	}
	i := sort.Search(n, func(i int) bool { return m.points[i].T > now })
	prev, next := m.points[i-1], m.points[i]
	span := next.T - prev.T
	if span <= 0 {
		return next.Pos
	}
	return prev.Pos.Lerp(next.Pos, (now-prev.T)/span)
}
