package cluster

import "math"

// cellKey addresses one bucket. Keys are floats so a degenerate cell size
// can fall back to raw coordinates.
type cellKey struct {
	X, Y float64
}

// DistanceGrid buckets items into square cells of a fixed size and answers
// "what is closest to this point" by looking at the 3x3 block of cells
// around it. Bucket order is insignificant.
type DistanceGrid[T comparable] struct {
	cellSize   float64
	sqCellSize float64
	cells      map[cellKey][]T
	points     map[T]ScreenPoint
}

// NewDistanceGrid creates an empty grid with the given cell size in pixels.
func NewDistanceGrid[T comparable](cellSize float64) *DistanceGrid[T] {
	return &DistanceGrid[T]{
		cellSize:   cellSize,
		sqCellSize: cellSize * cellSize,
		cells:      make(map[cellKey][]T),
		points:     make(map[T]ScreenPoint),
	}
}

// CellSize returns the side of one cell.
func (g *DistanceGrid[T]) CellSize() float64 {
	return g.cellSize
}

// Len returns the number of stored items.
func (g *DistanceGrid[T]) Len() int {
	return len(g.points)
}

// Buckets returns the number of non-empty cells.
func (g *DistanceGrid[T]) Buckets() int {
	return len(g.cells)
}

// PointOf returns the point item was last inserted at.
func (g *DistanceGrid[T]) PointOf(item T) (ScreenPoint, bool) {
	p, ok := g.points[item]
	return p, ok
}

// Insert adds item to the cell containing p.
func (g *DistanceGrid[T]) Insert(item T, p ScreenPoint) {
	key := g.key(p)
	g.cells[key] = append(g.cells[key], item)
	g.points[item] = p
}

// Remove deletes item from the cell containing p. It reports false, and
// changes nothing, when item is not stored there.
func (g *DistanceGrid[T]) Remove(item T, p ScreenPoint) bool {
	key := g.key(p)
	bucket, ok := g.cells[key]
	if !ok {
		return false
	}

	for i := range bucket {
		if bucket[i] != item {
			continue
		}
		last := len(bucket) - 1
		bucket[i] = bucket[last]
		var zero T
		bucket[last] = zero
		bucket = bucket[:last]

		if len(bucket) == 0 {
			delete(g.cells, key)
		} else {
			g.cells[key] = bucket
		}
		delete(g.points, item)
		return true
	}
	return false
}

// Update moves item to p. It is a remove from the last known point followed
// by an insert.
func (g *DistanceGrid[T]) Update(item T, p ScreenPoint) {
	if old, ok := g.points[item]; ok {
		g.Remove(item, old)
	}
	g.Insert(item, p)
}

// Each calls visit once for every stored item. visit returns true when it
// removed the item it was handed from the grid, so the cursor stays on the
// slot the swap moved into. visit must not insert.
func (g *DistanceGrid[T]) Each(visit func(item T) (removed bool)) {
	for key := range g.cells {
		for k := 0; k < len(g.cells[key]); k++ {
			if visit(g.cells[key][k]) {
				k--
			}
		}
	}
}

// Nearest returns the closest item to p among the cell of p and its eight
// neighbours, within one cell size. The first item found wins ties.
func (g *DistanceGrid[T]) Nearest(p ScreenPoint) (T, bool) {
	var closest T
	found := false
	closestSq := g.sqCellSize

	x := g.coord(p.X)
	y := g.coord(p.Y)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			for _, item := range g.cells[cellKey{X: x + float64(dj), Y: y + float64(di)}] {
				dist := sqDist(g.points[item], p)
				if dist < closestSq || (!found && dist <= closestSq) {
					closestSq = dist
					closest = item
					found = true
				}
			}
		}
	}
	return closest, found
}

func (g *DistanceGrid[T]) key(p ScreenPoint) cellKey {
	return cellKey{X: g.coord(p.X), Y: g.coord(p.Y)}
}

// coord falls back to the raw value when the division is not finite, which
// only happens for a zero cell size.
func (g *DistanceGrid[T]) coord(v float64) float64 {
	c := math.Floor(v / g.cellSize)
	if math.IsInf(c, 0) || math.IsNaN(c) {
		return v
	}
	return c
}

func sqDist(a, b ScreenPoint) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return dx*dx + dy*dy
}
