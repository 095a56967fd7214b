package runner

import (
	"errors"
	"testing"
	"time"

	"web/markercluster/animate"
	"web/markercluster/cluster"
	"web/markercluster/config"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var usBounds = cluster.Bounds{MinX: -125, MinY: 25, MaxX: -67, MaxY: 49}

func testOptions(clock *fakeClock, animated bool) Options {
	return Options{
		Cluster:     cluster.SuperclusterOptions{MinZoom: 0, MaxZoom: 8, Radius: 40, Extent: 256},
		Animated:    animated,
		SettleDelay: animate.DefaultSettleDelay,
		MaxSessions: 4,
		IdleTimeout: 10 * time.Minute,
		Now:         clock.Now,
	}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// expectDrawn checks that s draws exactly what is visible at zoom in
// bounds, with nothing left hidden.
func expectDrawn(t *testing.T, s *Session, bounds cluster.Bounds, zoom int) {
	t.Helper()
	want := make(map[cluster.Entity]bool)
	for _, c := range s.GetClusters(bounds, zoom) {
		want[c.Entity] = true
	}

	drawn := s.Drawn()
	if len(drawn) != len(want) {
		t.Errorf("zoom %d: expected %d entities drawn, got %d", zoom, len(want), len(drawn))
	}
	for _, c := range drawn {
		if !want[c.Entity] {
			t.Errorf("zoom %d: %v is drawn but not visible", zoom, c.Entity)
		}
	}
	if v := len(s.Visible()); v != len(drawn) {
		t.Errorf("zoom %d: %d of %d drawn entities are hidden", zoom, len(drawn)-v, len(drawn))
	}
}

func TestCreateGetRelease(t *testing.T) {
	r := New(testOptions(newClock(), false))
	defer r.Close()

	s := r.Create(cluster.GenerateTestPoints(50, usBounds, 42))
	if s.Len() != 50 {
		t.Errorf("Expected 50 markers, got %d", s.Len())
	}

	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get(%s) = %v, %v", s.ID, got, err)
	}

	if err := r.Release(s.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := r.Release(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on second release, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Expected no sessions, got %d", r.Len())
	}
}

func TestMaxSessionsEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newClock()
	opts := testOptions(clock, false)
	opts.MaxSessions = 2
	r := New(opts)
	defer r.Close()

	points := cluster.GenerateTestPoints(20, usBounds, 1)
	a := r.Create(points)
	clock.Advance(time.Second)
	b := r.Create(points)
	clock.Advance(time.Second)
	if _, err := r.Get(a.ID); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	c := r.Create(points)

	if r.Len() != 2 {
		t.Fatalf("Expected 2 sessions, got %d", r.Len())
	}
	if _, err := r.Get(b.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected %s evicted, got %v", b.ID, err)
	}
	for _, s := range []*Session{a, c} {
		if _, err := r.Get(s.ID); err != nil {
			t.Errorf("Expected %s alive, got %v", s.ID, err)
		}
	}

	infos := r.List()
	if len(infos) != 2 || infos[0].ID != a.ID || infos[1].ID != c.ID {
		t.Errorf("Expected sessions listed oldest first, got %+v", infos)
	}
}

func TestEvictIdle(t *testing.T) {
	clock := newClock()
	r := New(testOptions(clock, false))
	defer r.Close()

	points := cluster.GenerateTestPoints(20, usBounds, 2)
	old := r.Create(points)
	clock.Advance(5 * time.Minute)
	fresh := r.Create(points)
	clock.Advance(6 * time.Minute)

	if n := r.EvictIdle(); n != 1 {
		t.Errorf("Expected 1 idle session evicted, got %d", n)
	}
	if _, err := r.Get(old.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected %s evicted, got %v", old.ID, err)
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Errorf("Expected %s alive, got %v", fresh.ID, err)
	}
}

func TestImmediateSetView(t *testing.T) {
	r := New(testOptions(newClock(), false))
	defer r.Close()

	world := cluster.WorldBounds()
	s := r.Create(cluster.GenerateTestPoints(300, usBounds, 42))
	s.Show(2, world)
	expectDrawn(t, s, world, 2)

	for _, zoom := range []float64{4.6, 8, 3, 0, 6.2} {
		tr := s.SetView(zoom, world)
		if tr == nil || !tr.Completed() {
			t.Errorf("Expected a completed transition for zoom %v, got %v", zoom, tr)
		}
		expectDrawn(t, s, world, s.Zoom())
	}
	if s.Zoom() != 6 {
		t.Errorf("Expected zoom 6, got %d", s.Zoom())
	}
}

func TestAnimatedSetView(t *testing.T) {
	clock := newClock()
	r := New(testOptions(clock, true))
	defer r.Close()

	world := cluster.WorldBounds()
	s := r.Create(cluster.GenerateTestPoints(300, usBounds, 42))
	s.Show(2, world)

	var ended []*animate.Transition
	s.OnTransitionEnd(func(tr *animate.Transition) { ended = append(ended, tr) })

	for _, zoom := range []int{5, 1, 3} {
		tr := s.SetView(float64(zoom), world)
		if tr == nil {
			t.Fatalf("Expected a transition for zoom %d", zoom)
		}
		if tr.Completed() {
			t.Errorf("Expected zoom %d to wait for the settle delay", zoom)
		}
		if s.Phase() != animate.PendingRemoval {
			t.Errorf("Expected pending removal, got %s", s.Phase())
		}

		if n := r.Tick(); n != 0 {
			t.Errorf("Expected nothing due before the delay, %d tasks ran", n)
		}
		clock.Advance(animate.DefaultSettleDelay)
		if n := r.Tick(); n == 0 {
			t.Error("Expected deferred work to run after the delay")
		}

		if !tr.Completed() {
			t.Errorf("Expected zoom %d transition complete", zoom)
		}
		if s.Phase() != animate.Idle {
			t.Errorf("Expected idle, got %s", s.Phase())
		}
		expectDrawn(t, s, world, zoom)
	}

	if len(ended) != 3 {
		t.Errorf("Expected 3 ended transitions, got %d", len(ended))
	}
}

func TestSetViewFlushesPendingWork(t *testing.T) {
	clock := newClock()
	r := New(testOptions(clock, true))
	defer r.Close()

	world := cluster.WorldBounds()
	s := r.Create(cluster.GenerateTestPoints(300, usBounds, 7))
	s.Show(1, world)

	first := s.SetView(4, world)
	second := s.SetView(6, world)
	if !first.Completed() {
		t.Error("Expected the first transition completed by the second zoom")
	}

	s.Settle()
	if !second.Completed() {
		t.Error("Expected the second transition completed after settling")
	}
	expectDrawn(t, s, world, 6)
}

func TestPan(t *testing.T) {
	r := New(testOptions(newClock(), true))
	defer r.Close()

	s := r.Create(cluster.GenerateTestPoints(400, usBounds, 3))
	west := cluster.Bounds{MinX: -125, MinY: 25, MaxX: -100, MaxY: 49}
	east := cluster.Bounds{MinX: -95, MinY: 25, MaxX: -67, MaxY: 49}

	s.Show(5, west)
	expectDrawn(t, s, west, 5)

	if tr := s.SetView(5, east); tr != nil {
		t.Errorf("Expected no transition for a pan, got %v", tr)
	}
	expectDrawn(t, s, east, 5)
}

// expectNoAncestorDrawn checks that no drawn entity has an ancestor drawn
// alongside it.
func expectNoAncestorDrawn(t *testing.T, s *Session) {
	t.Helper()
	drawn := make(map[cluster.Entity]bool)
	for _, c := range s.Drawn() {
		drawn[c.Entity] = true
	}

	tree := s.sc.Tree
	for e := range drawn {
		for p := tree.Parent(e); p != cluster.NoNode; p = tree.Parent(p) {
			if drawn[p] {
				t.Errorf("%v is drawn together with its ancestor %v", e, p)
				break
			}
		}
	}
}

func TestAnimatedZoomInToPartOfTheView(t *testing.T) {
	r := New(testOptions(newClock(), true))
	defer r.Close()

	s := r.Create(cluster.GenerateTestPoints(400, usBounds, 3))
	west := cluster.Bounds{MinX: -125, MinY: 25, MaxX: -100, MaxY: 49}

	s.Show(3, usBounds)
	expectDrawn(t, s, usBounds, 3)

	if tr := s.SetView(4, west); tr == nil {
		t.Fatal("Expected a transition for the zoom in")
	}
	s.Settle()
	expectDrawn(t, s, west, 4)
	expectNoAncestorDrawn(t, s)

	// Pan back out to the whole area at the same zoom
	if tr := s.SetView(4, usBounds); tr != nil {
		t.Errorf("Expected no transition for a pan, got %v", tr)
	}
	expectDrawn(t, s, usBounds, 4)
	expectNoAncestorDrawn(t, s)
}

func TestAnimatedZoomOutToAnotherView(t *testing.T) {
	west := cluster.Bounds{MinX: -125, MinY: 25, MaxX: -100, MaxY: 49}
	east := cluster.Bounds{MinX: -95, MinY: 25, MaxX: -67, MaxY: 49}

	tests := []struct {
		name string
		to   cluster.Bounds
	}{
		{"widened", usBounds},
		{"shifted", east},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testOptions(newClock(), true))
			defer r.Close()

			s := r.Create(cluster.GenerateTestPoints(400, usBounds, 3))
			s.Show(5, west)

			if tr := s.SetView(3, tt.to); tr == nil {
				t.Fatal("Expected a transition for the zoom out")
			}
			s.Settle()
			expectDrawn(t, s, tt.to, 3)
			expectNoAncestorDrawn(t, s)
		})
	}
}

func TestZoomToDisjointView(t *testing.T) {
	r := New(testOptions(newClock(), true))
	defer r.Close()

	s := r.Create(cluster.GenerateTestPoints(400, usBounds, 3))
	west := cluster.Bounds{MinX: -125, MinY: 25, MaxX: -100, MaxY: 49}
	east := cluster.Bounds{MinX: -95, MinY: 25, MaxX: -67, MaxY: 49}

	s.Show(3, west)

	// Nothing shown can be split in place, so the view is redrawn
	if tr := s.SetView(5, east); tr != nil {
		t.Errorf("Expected no transition, got %v", tr)
	}
	if s.Zoom() != 5 {
		t.Errorf("Expected zoom 5, got %d", s.Zoom())
	}
	expectDrawn(t, s, east, 5)
	expectNoAncestorDrawn(t, s)
}

func TestTransitionListenerCanUseSession(t *testing.T) {
	clock := newClock()
	r := New(testOptions(clock, true))
	defer r.Close()

	world := cluster.WorldBounds()
	s := r.Create(cluster.GenerateTestPoints(300, usBounds, 42))
	s.Show(2, world)

	var zooms []int
	visible := 0
	s.OnTransitionEnd(func(tr *animate.Transition) {
		zooms = append(zooms, s.Zoom())
		visible = len(s.Visible())
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SetView(4, world)
		clock.Advance(animate.DefaultSettleDelay)
		s.Tick()
		s.SetView(6, world)
		s.Settle()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the session to stay usable from a transition listener")
	}

	if len(zooms) != 2 || zooms[0] != 4 || zooms[1] != 6 {
		t.Errorf("Expected listener calls at zooms [4 6], got %v", zooms)
	}
	if want := len(s.GetClusters(world, 6)); visible != want {
		t.Errorf("Expected the listener to see %d visible entities, got %d", want, visible)
	}
}

func TestAddRemoveMarkerImmediate(t *testing.T) {
	r := New(testOptions(newClock(), false))
	defer r.Close()

	world := cluster.WorldBounds()
	points := cluster.GenerateTestPoints(100, usBounds, 5)
	points = append(points, cluster.Point{ID: 1000, X: 100, Y: -40})
	s := r.Create(points)
	s.Show(3, world)

	// A marker on its own stays a marker
	if _, err := s.AddMarker(cluster.Point{ID: 1001, X: 150, Y: 60}); err != nil {
		t.Fatal(err)
	}
	expectDrawn(t, s, world, 3)

	// Next to a lone marker it forms a cluster
	tr, err := s.AddMarker(cluster.Point{ID: 1002, X: 100.0001, Y: -40.0001})
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil || !tr.Completed() {
		t.Errorf("Expected a completed add transition, got %v", tr)
	}
	expectDrawn(t, s, world, 3)

	if _, err := s.AddMarker(cluster.Point{ID: 1002, X: 0, Y: 0}); !errors.Is(err, ErrDuplicateMarker) {
		t.Errorf("Expected ErrDuplicateMarker, got %v", err)
	}

	// Removing one of the two dissolves the cluster back into a marker
	if err := s.RemoveMarker(1002); err != nil {
		t.Fatal(err)
	}
	expectDrawn(t, s, world, 3)
	lone, _ := s.sc.Leaf(1000)
	if !s.layer.Contains(lone) {
		t.Errorf("Expected %v drawn after its cluster dissolved", lone)
	}

	if err := s.RemoveMarker(1002); !errors.Is(err, ErrMarkerNotFound) {
		t.Errorf("Expected ErrMarkerNotFound, got %v", err)
	}
	if s.Len() != 102 {
		t.Errorf("Expected 102 markers, got %d", s.Len())
	}
}

func TestAddMarkerAnimated(t *testing.T) {
	clock := newClock()
	r := New(testOptions(clock, true))
	defer r.Close()

	world := cluster.WorldBounds()
	s := r.Create([]cluster.Point{{ID: 1, X: 10, Y: 10}, {ID: 2, X: -60, Y: 30}})
	s.Show(3, world)

	tr, err := s.AddMarker(cluster.Point{ID: 3, X: 10, Y: 10})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Completed() {
		t.Error("Expected the new cluster to wait for the settle delay")
	}

	clock.Advance(animate.DefaultSettleDelay)
	s.Tick()
	if !tr.Completed() {
		t.Error("Expected the add transition complete")
	}
	expectDrawn(t, s, world, 3)
}

func TestAddMarkerOutsideShownArea(t *testing.T) {
	r := New(testOptions(newClock(), false))
	defer r.Close()

	s := r.Create(cluster.GenerateTestPoints(50, usBounds, 9))
	s.Show(4, usBounds)

	tr, err := s.AddMarker(cluster.Point{ID: 500, X: 120, Y: -30})
	if err != nil {
		t.Fatal(err)
	}
	if tr != nil {
		t.Errorf("Expected no transition for a marker off screen, got %v", tr)
	}
	l, _ := s.sc.Leaf(500)
	if s.layer.Contains(l) {
		t.Error("Expected the off screen marker not drawn")
	}
}

func TestSummary(t *testing.T) {
	r := New(testOptions(newClock(), false))
	defer r.Close()

	s := r.Create(cluster.GenerateTestPoints(200, usBounds, 11))
	// Most markers are alone at the deepest zoom and keep their category
	s.Show(8, cluster.WorldBounds())

	summary := s.Summary()
	if summary.TotalPoints != 200 {
		t.Errorf("Expected 200 points summarised, got %d", summary.TotalPoints)
	}
	if _, ok := MetricsAverages(summary.MetricsSummary)["value"]; !ok {
		t.Error("Expected a value average")
	}
	if _, ok := MetadataStrings(summary.MetadataSummary)["category"]; !ok {
		t.Error("Expected a category summary")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}

	opts := OptionsFromConfig(cfg)
	if opts.Cluster.MaxZoom != cfg.Cluster.MaxZoom || opts.Cluster.Radius != cfg.Cluster.Radius {
		t.Errorf("Expected cluster options from config, got %+v", opts.Cluster)
	}
	if opts.SettleDelay != cfg.Derived.SettleDelay {
		t.Errorf("Expected settle delay %v, got %v", cfg.Derived.SettleDelay, opts.SettleDelay)
	}
	if opts.Animated != cfg.Animation.Enabled {
		t.Error("Expected animation flag from config")
	}
}
