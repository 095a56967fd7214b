package cluster

import (
	"math/rand"
	"testing"
)

type gridItem struct {
	name string
}

func TestDistanceGridInsertRemove(t *testing.T) {
	grid := NewDistanceGrid[*gridItem](100)
	obj := &gridItem{"a"}

	grid.Insert(obj, ScreenPoint{0, 0})
	if grid.Len() != 1 || grid.Buckets() != 1 {
		t.Fatalf("Expected 1 item in 1 bucket, got %d items in %d buckets", grid.Len(), grid.Buckets())
	}
	if !grid.Remove(obj, ScreenPoint{0, 0}) {
		t.Error("Expected Remove to find the item")
	}
	if grid.Len() != 0 || grid.Buckets() != 0 {
		t.Errorf("Expected empty grid after remove, got %d items in %d buckets", grid.Len(), grid.Buckets())
	}
}

func TestDistanceGridRemoveAbsent(t *testing.T) {
	grid := NewDistanceGrid[int](10)
	grid.Insert(1, ScreenPoint{5, 5})
	grid.Insert(2, ScreenPoint{15, 5})

	testCases := []struct {
		name  string
		item  int
		point ScreenPoint
	}{
		{"unknown item", 3, ScreenPoint{5, 5}},
		{"wrong cell", 1, ScreenPoint{55, 55}},
		{"neighbour cell", 2, ScreenPoint{5, 5}},
	}

	for _, tc := range testCases {
		if grid.Remove(tc.item, tc.point) {
			t.Errorf("%s: expected Remove to report not found", tc.name)
		}
		if grid.Len() != 2 || grid.Buckets() != 2 {
			t.Errorf("%s: grid changed, now %d items in %d buckets", tc.name, grid.Len(), grid.Buckets())
		}
		if _, ok := grid.PointOf(1); !ok {
			t.Errorf("%s: item 1 lost its point", tc.name)
		}
	}
}

func TestDistanceGridEach(t *testing.T) {
	grid := NewDistanceGrid[int](100)
	for i := 0; i < 10; i++ {
		grid.Insert(i, ScreenPoint{float64(i * 30), 0})
	}

	seen := make(map[int]int)
	grid.Each(func(item int) bool {
		seen[item]++
		return false
	})
	if len(seen) != 10 {
		t.Errorf("Expected 10 distinct items visited, got %d", len(seen))
	}
	for item, n := range seen {
		if n != 1 {
			t.Errorf("Item %d visited %d times", item, n)
		}
	}
}

func TestDistanceGridEachWithRemoval(t *testing.T) {
	grid := NewDistanceGrid[int](100)
	// Same bucket, so every removal swaps another item into the cursor slot
	for i := 0; i < 6; i++ {
		grid.Insert(i, ScreenPoint{float64(i), float64(i)})
	}

	seen := make(map[int]int)
	grid.Each(func(item int) bool {
		seen[item]++
		if item%2 == 0 {
			p, _ := grid.PointOf(item)
			return grid.Remove(item, p)
		}
		return false
	})

	if len(seen) != 6 {
		t.Errorf("Expected all 6 items visited, got %d", len(seen))
	}
	for item, n := range seen {
		if n != 1 {
			t.Errorf("Item %d visited %d times", item, n)
		}
	}
	if grid.Len() != 3 {
		t.Errorf("Expected 3 items left, got %d", grid.Len())
	}
}

func TestDistanceGridNearest(t *testing.T) {
	grid := NewDistanceGrid[string](100)
	grid.Insert("a", ScreenPoint{0, 0})

	testCases := []struct {
		point ScreenPoint
		want  bool
	}{
		{ScreenPoint{50, 50}, true},
		{ScreenPoint{100, 0}, true}, // exactly one cell size away
		{ScreenPoint{100, 1}, false},
		{ScreenPoint{-99, 0}, true},
		{ScreenPoint{250, 0}, false},
	}

	for _, tc := range testCases {
		got, ok := grid.Nearest(tc.point)
		if ok != tc.want {
			t.Errorf("Nearest(%v): expected found=%v, got %v", tc.point, tc.want, ok)
		}
		if ok && got != "a" {
			t.Errorf("Nearest(%v): expected a, got %s", tc.point, got)
		}
	}
}

func TestDistanceGridNearestPicksClosest(t *testing.T) {
	grid := NewDistanceGrid[string](100)
	grid.Insert("far", ScreenPoint{90, 0})
	grid.Insert("near", ScreenPoint{10, 0})
	grid.Insert("other-cell", ScreenPoint{130, 0})

	got, ok := grid.Nearest(ScreenPoint{0, 0})
	if !ok || got != "near" {
		t.Errorf("Expected near, got %q (found=%v)", got, ok)
	}

	got, ok = grid.Nearest(ScreenPoint{120, 0})
	if !ok || got != "other-cell" {
		t.Errorf("Expected other-cell, got %q (found=%v)", got, ok)
	}
}

func TestDistanceGridZeroCellSize(t *testing.T) {
	grid := NewDistanceGrid[string](0)
	grid.Insert("a", ScreenPoint{0, 0})

	if _, ok := grid.Nearest(ScreenPoint{50, 50}); ok {
		t.Error("Expected nothing near (50,50) with a zero cell size")
	}
	if got, ok := grid.Nearest(ScreenPoint{0, 0}); !ok || got != "a" {
		t.Errorf("Expected exact match a, got %q (found=%v)", got, ok)
	}
	if !grid.Remove("a", ScreenPoint{0, 0}) {
		t.Error("Expected Remove to find a")
	}
}

func TestDistanceGridUpdate(t *testing.T) {
	grid := NewDistanceGrid[int](10)
	grid.Insert(7, ScreenPoint{1, 1})
	grid.Update(7, ScreenPoint{500, 500})

	if grid.Len() != 1 || grid.Buckets() != 1 {
		t.Fatalf("Expected 1 item in 1 bucket, got %d in %d", grid.Len(), grid.Buckets())
	}
	if _, ok := grid.Nearest(ScreenPoint{1, 1}); ok {
		t.Error("Item still found at its old position")
	}
	if got, ok := grid.Nearest(ScreenPoint{501, 501}); !ok || got != 7 {
		t.Errorf("Expected item at new position, got %d (found=%v)", got, ok)
	}
}

func TestDistanceGridSelfNearest(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	grid := NewDistanceGrid[int](20)
	points := make(map[int]ScreenPoint)
	for i := 0; i < 2000; i++ {
		p := ScreenPoint{X: r.Float64() * 1000, Y: r.Float64() * 1000}
		points[i] = p
		grid.Insert(i, p)
	}

	for i, p := range points {
		got, ok := grid.Nearest(p)
		if !ok {
			t.Fatalf("Nothing found at the point of item %d", i)
		}
		if got != i && sqDist(points[got], p) != 0 {
			t.Errorf("Nearest to item %d returned %d at distance² %f", i, got, sqDist(points[got], p))
		}
	}

	for i, p := range points {
		if !grid.Remove(i, p) {
			t.Errorf("Item %d not removed", i)
		}
	}
	if grid.Buckets() != 0 {
		t.Errorf("Expected no buckets after removing everything, got %d", grid.Buckets())
	}
}
