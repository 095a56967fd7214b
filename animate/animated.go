package animate

import "web/markercluster/cluster"

// Animated moves entities between their parents and children and removes
// whatever became redundant once the scene's settle delay has passed.
type Animated struct {
	scene *Scene
}

func NewAnimated(s *Scene) *Animated {
	return &Animated{scene: s}
}

func (a *Animated) Start() {
	a.scene.start()
}

func (a *Animated) End() {
	a.scene.end()
}

func (a *Animated) Phase() Phase {
	s := a.scene
	switch {
	case s.running == 0:
		return Idle
	case s.Queue.Pending() > 0:
		return PendingRemoval
	default:
		return Running
	}
}

func (a *Animated) ZoomIn(prev, next int) *Transition {
	s := a.scene
	t := s.Tree
	tr := newTransition(KindZoomIn, prev, next)
	bounds := s.viewport()

	// Whatever left the view goes now, without animation
	s.removeChildren(s.Top, s.ShownBounds, prev, &bounds)
	s.Zoom = next

	// Draw the children of every cluster shown at prev, stacked on it
	t.ForEachInRange(s.Top, bounds, prev, s.MinZoom, func(c cluster.NodeID) {
		if t.IsSingleParent(c) && prev+1 == next {
			s.Layer.Remove(c)
			s.addChildren(c, nil, next, bounds)
		} else {
			var start *cluster.Coord
			if pos := t.Position(c); bounds.Contains(pos) {
				start = &pos
			}
			s.Layer.SetHidden(c, true)
			s.addChildren(c, start, next, bounds)
		}

		if t.Zoom(c) == prev {
			leaves := t.Leaves(c)
			for i := len(leaves) - 1; i >= 0; i-- {
				if !bounds.Contains(t.LeafCoord(leaves[i])) {
					s.Layer.Remove(leaves[i])
				}
			}
		}
	}, nil)

	s.flush()

	s.becomeVisible(s.Top, bounds, next)
	s.Layer.Each(func(e cluster.Entity) {
		if !e.IsCluster() {
			s.Layer.SetHidden(e, false)
		}
	})

	// Send them to where they belong
	t.ForEachInRange(s.Top, bounds, prev, next, func(c cluster.NodeID) {
		s.restoreChildPositions(c, next)
	}, nil)

	// and add what came into view with no parent drawn to start from
	s.addChildren(s.Top, nil, next, bounds)

	s.await(tr)
	s.Queue.Enqueue(func() {
		t.ForEachInRange(s.Top, bounds, prev, s.MinZoom, func(c cluster.NodeID) {
			s.Layer.Remove(c)
		}, nil)
		s.end()
	})

	s.ShownBounds = bounds
	return tr
}

func (a *Animated) ZoomOut(prev, next int) *Transition {
	s := a.scene
	tr := newTransition(KindZoomOut, prev, next)
	s.Zoom = next
	s.await(tr)

	s.zoomOutSingle(s.Top, prev-1, next)

	// Entities that only come into view now, and ones that leave it
	view := s.viewport()
	s.addChildren(s.Top, nil, next, view)
	s.removeChildren(s.Top, s.ShownBounds, prev, &view)

	s.ShownBounds = view
	return tr
}

func (a *Animated) AddLayer(leaf cluster.LeafID, owner cluster.Entity) *Transition {
	s := a.scene
	t := s.Tree
	tr := newTransition(KindAddLayer, s.Zoom, s.Zoom)
	tr.Entity = leaf

	s.addToMap(leaf, nil)

	n, ok := owner.(cluster.NodeID)
	if !ok {
		tr.complete()
		return tr
	}

	if t.ChildCount(n) > 2 {
		// Already a cluster: flash the marker on it and let it go
		s.redraw(n)
		s.flush()
		a.Start()
		s.await(tr)

		s.Layer.SetPosition(leaf, s.screen(t.Position(n)))
		s.Layer.SetHidden(leaf, true)

		s.Queue.Enqueue(func() {
			s.Layer.Remove(leaf)
			s.end()
		})
		return tr
	}

	// Just became a cluster: pull both markers into it
	s.flush()
	a.Start()
	s.await(tr)
	s.zoomOutSingle(n, s.MaxZoom, s.Zoom)
	return tr
}
