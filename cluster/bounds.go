package cluster

import "math"

// Coord is a position in map space. X is longitude, Y is latitude.
type Coord struct {
	X, Y float64
}

// ScreenPoint is a position in projected pixel space.
type ScreenPoint struct {
	X, Y float64
}

// Bounds is an inclusive rectangle in map space.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// EmptyBounds returns bounds holding impossible extremes, so the first
// Extend call fully determines the result.
func EmptyBounds() Bounds {
	return Bounds{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
}

// Reset puts b back to the empty state without allocating.
func (b *Bounds) Reset() {
	b.MinX = math.Inf(1)
	b.MinY = math.Inf(1)
	b.MaxX = math.Inf(-1)
	b.MaxY = math.Inf(-1)
}

// IsEmpty reports whether no point has been added to b.
func (b Bounds) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Extend expands bounds to include a point
func (b *Bounds) Extend(c Coord) {
	b.MinX = math.Min(b.MinX, c.X)
	b.MinY = math.Min(b.MinY, c.Y)
	b.MaxX = math.Max(b.MaxX, c.X)
	b.MaxY = math.Max(b.MaxY, c.Y)
}

// ExtendBounds expands bounds to include another rectangle
func (b *Bounds) ExtendBounds(o Bounds) {
	if o.IsEmpty() {
		return
	}
	b.MinX = math.Min(b.MinX, o.MinX)
	b.MinY = math.Min(b.MinY, o.MinY)
	b.MaxX = math.Max(b.MaxX, o.MaxX)
	b.MaxY = math.Max(b.MaxY, o.MaxY)
}

// Intersects reports whether b and o share at least one point. Empty
// bounds intersect nothing.
func (b Bounds) Intersects(o Bounds) bool {
	return o.MinY <= b.MaxY && o.MaxY >= b.MinY &&
		o.MinX <= b.MaxX && o.MaxX >= b.MinX
}

// Contains reports whether c lies inside b, edges included.
func (b Bounds) Contains(c Coord) bool {
	return c.X >= b.MinX && c.X <= b.MaxX &&
		c.Y >= b.MinY && c.Y <= b.MaxY
}

// ContainsBounds reports whether o lies entirely inside b.
func (b Bounds) ContainsBounds(o Bounds) bool {
	return o.MinX >= b.MinX && o.MaxX <= b.MaxX &&
		o.MinY >= b.MinY && o.MaxY <= b.MaxY
}

// Pad returns b grown by ratio of its width and height on every side.
func (b Bounds) Pad(ratio float64) Bounds {
	if b.IsEmpty() {
		return b
	}
	dx := (b.MaxX - b.MinX) * ratio
	dy := (b.MaxY - b.MinY) * ratio
	return Bounds{
		MinX: b.MinX - dx,
		MinY: b.MinY - dy,
		MaxX: b.MaxX + dx,
		MaxY: b.MaxY + dy,
	}
}

// Center returns the midpoint of b.
func (b Bounds) Center() Coord {
	return Coord{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}

// WorldBounds covers every coordinate a Web Mercator map can show.
func WorldBounds() Bounds {
	return Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}
}
