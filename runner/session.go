package runner

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"web/markercluster/animate"
	"web/markercluster/cluster"
)

var (
	ErrDuplicateMarker = errors.New("marker already present")
	ErrMarkerNotFound  = errors.New("marker not found")
)

// Session is one clustered marker set together with what a map showing it
// currently draws.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	sc       *cluster.Supercluster
	layer    *animate.MemoryLayer
	scene    *animate.Scene
	anim     animate.Animator
	padding  float64
	viewport cluster.Bounds

	listeners []func(*animate.Transition)
	completed []*animate.Transition
}

func newSession(id string, points []cluster.Point, opts Options) *Session {
	sc := cluster.NewSupercluster(opts.Cluster)
	sc.Load(points)

	layer := animate.NewMemoryLayer()
	queue := animate.NewQueue(opts.SettleDelay, opts.now)
	scene := animate.NewScene(sc.Tree, sc.Top, layer, queue, sc.Projection(), sc.Options.MinZoom, sc.Options.MaxZoom)

	s := &Session{
		ID:       id,
		Created:  opts.now(),
		sc:       sc,
		layer:    layer,
		scene:    scene,
		anim:     animate.New(scene, opts.Animated),
		padding:  opts.ViewportPadding,
		viewport: cluster.WorldBounds(),
	}
	scene.Viewport = s.paddedViewport
	scene.OnEnd(func(tr *animate.Transition) {
		s.completed = append(s.completed, tr)
	})

	// A cluster reduced to one marker is replaced on the map by that marker
	sc.OnCollapse = func(c cluster.NodeID, survivor cluster.LeafID) {
		if !layer.Contains(c) {
			return
		}
		layer.Remove(c)
		layer.Add(survivor, sc.Projection().Project(sc.Tree.LeafCoord(survivor), scene.Zoom))
	}
	return s
}

func (s *Session) paddedViewport() cluster.Bounds {
	if s.padding <= 0 {
		return s.viewport
	}
	return s.viewport.Pad(s.padding)
}

// clampZoom rounds a fractional map zoom to a clustering level.
func (s *Session) clampZoom(zoom float64) int {
	z := int(math.Round(zoom))
	if z < s.sc.Options.MinZoom {
		z = s.sc.Options.MinZoom
	}
	if z > s.sc.Options.MaxZoom {
		z = s.sc.Options.MaxZoom
	}
	return z
}

// Show draws the visible set for the first time.
func (s *Session) Show(zoom float64, viewport cluster.Bounds) {
	s.mu.Lock()
	defer s.unlock()

	s.scene.Queue.Flush()
	s.layer.Clear()
	s.viewport = viewport
	s.scene.Render(s.clampZoom(zoom))
}

// SetView moves the map to zoom and viewport. It returns the transition
// started for a zoom change, or nil when the view only moved.
func (s *Session) SetView(zoom float64, viewport cluster.Bounds) *animate.Transition {
	s.mu.Lock()
	defer s.unlock()

	// Deferred work refers to node ids that a new transition may recycle
	s.scene.Queue.Flush()

	next := s.clampZoom(zoom)
	prev := s.scene.Zoom
	s.viewport = viewport

	switch {
	case prev < next && s.scene.ShownBounds.Intersects(s.paddedViewport()):
		s.anim.Start()
		return s.anim.ZoomIn(prev, next)
	case prev > next:
		s.anim.Start()
		return s.anim.ZoomOut(prev, next)
	}
	s.scene.Pan(next)
	return nil
}

// AddMarker adds p to the set and shows it if it falls in the shown area.
func (s *Session) AddMarker(p cluster.Point) (*animate.Transition, error) {
	s.mu.Lock()
	defer s.unlock()

	if _, ok := s.sc.Leaf(p.ID); ok {
		return nil, fmt.Errorf("marker %d: %w", p.ID, ErrDuplicateMarker)
	}
	s.scene.Queue.Flush()

	l := s.sc.AddPoint(p)
	owner := s.sc.Tree.VisibleAncestor(l, s.scene.Zoom)
	if !s.scene.ShownBounds.Contains(s.sc.Tree.Position(owner)) {
		return nil, nil
	}

	tr := s.anim.AddLayer(l, owner)
	s.scene.RefreshIcons()
	return tr, nil
}

// RemoveMarker takes the marker with the given id off the map and out of
// the set.
func (s *Session) RemoveMarker(id uint32) error {
	s.mu.Lock()
	defer s.unlock()

	l, ok := s.sc.Leaf(id)
	if !ok {
		return fmt.Errorf("marker %d: %w", id, ErrMarkerNotFound)
	}
	s.scene.Queue.Flush()

	s.layer.Remove(l)
	s.sc.RemovePoint(id)
	s.scene.RefreshIcons()
	return nil
}

// Tick applies deferred work that has become due and returns how many
// tasks ran.
func (s *Session) Tick() int {
	s.mu.Lock()
	defer s.unlock()
	return s.scene.Queue.RunDue()
}

// Settle applies all deferred work immediately.
func (s *Session) Settle() int {
	s.mu.Lock()
	defer s.unlock()
	return s.scene.Queue.Flush()
}

// OnTransitionEnd registers fn to be called when a transition completes.
// fn runs after the session is unlocked, so it may call back into it.
func (s *Session) OnTransitionEnd(fn func(*animate.Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// unlock releases the session and then reports the transitions that
// completed while it was held.
func (s *Session) unlock() {
	completed, listeners := s.completed, s.listeners
	s.completed = nil
	s.mu.Unlock()

	for _, tr := range completed {
		for _, fn := range listeners {
			fn(tr)
		}
	}
}

// Phase reports the animator's phase.
func (s *Session) Phase() animate.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anim.Phase()
}

// Zoom returns the zoom level the visible set was built for.
func (s *Session) Zoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Zoom
}

// Len returns the number of markers in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc.Len()
}

// Drawn describes every entity currently drawn, hidden ones included.
func (s *Session) Drawn() []cluster.ClusterNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return describeAll(s.sc, s.layer.Entities())
}

// Visible describes the drawn entities that are not hidden.
func (s *Session) Visible() []cluster.ClusterNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return describeAll(s.sc, s.layer.Visible())
}

// GetClusters returns what is visible at zoom inside bounds, independent
// of what is drawn.
func (s *Session) GetClusters(bounds cluster.Bounds, zoom int) []cluster.ClusterNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc.GetClusters(bounds, zoom)
}

// Summary aggregates the entities currently visible.
func (s *Session) Summary() cluster.MetadataSummary {
	return cluster.CalculateMetadataSummary(s.Visible())
}

// close releases the session's memory. The session must not be used after.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene.Queue.Flush()
	s.completed = nil
	s.layer.Clear()
	s.sc.CleanupCluster()
}
