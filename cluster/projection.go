package cluster

import "math"

// maxLatitude is the Web Mercator clipping latitude.
const maxLatitude = 85.0511287798

// Projector converts map coordinates to pixel space at a zoom level and back.
type Projector interface {
	Project(c Coord, zoom int) ScreenPoint
	Unproject(p ScreenPoint, zoom int) Coord
}

// WebMercator projects lng/lat onto a square world of Extent pixels at zoom 0.
type WebMercator struct {
	Extent float64
}

// Project converts lng/lat to pixel coordinates
func (w WebMercator) Project(c Coord, zoom int) ScreenPoint {
	lat := math.Max(math.Min(c.Y, maxLatitude), -maxLatitude)
	sin := math.Sin(lat * math.Pi / 180)
	x := (c.X + 180) / 360
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi

	scale := w.scale(zoom)
	return ScreenPoint{
		X: x * scale,
		Y: y * scale,
	}
}

// Unproject converts pixel coordinates back to lng/lat
func (w WebMercator) Unproject(p ScreenPoint, zoom int) Coord {
	scale := w.scale(zoom)

	// Convert to normalized coordinates
	x := p.X / scale
	y := p.Y / scale

	return Coord{
		X: x*360 - 180,
		Y: math.Atan(math.Sinh(math.Pi*(1-2*y))) * 180 / math.Pi,
	}
}

func (w WebMercator) scale(zoom int) float64 {
	extent := w.Extent
	if extent <= 0 {
		extent = 256
	}
	return math.Ldexp(extent, zoom)
}
