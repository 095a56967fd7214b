package animate

import "web/markercluster/cluster"

// Scene is the state every animation strategy works on: the cluster tree,
// what is drawn, and the view it is drawn for.
type Scene struct {
	Tree  *cluster.Tree
	Top   cluster.NodeID
	Layer Layer
	Queue *Queue

	Projection cluster.Projector
	MinZoom    int
	MaxZoom    int

	// Zoom is the zoom level the visible set was last built for.
	Zoom int
	// ShownBounds is the area the visible set was last built for.
	ShownBounds cluster.Bounds
	// Viewport returns the padded area the map currently shows. A nil
	// Viewport means the whole world.
	Viewport func() cluster.Bounds

	displaced map[cluster.Entity]struct{}
	awaiting  []*Transition
	running   int
	listeners []func(*Transition)
}

// NewScene creates a scene over tree. The visible set starts empty.
func NewScene(tree *cluster.Tree, top cluster.NodeID, layer Layer, queue *Queue, proj cluster.Projector, minZoom, maxZoom int) *Scene {
	if queue == nil {
		queue = NewQueue(DefaultSettleDelay, nil)
	}
	return &Scene{
		Tree:        tree,
		Top:         top,
		Layer:       layer,
		Queue:       queue,
		Projection:  proj,
		MinZoom:     minZoom,
		MaxZoom:     maxZoom,
		Zoom:        minZoom,
		ShownBounds: cluster.EmptyBounds(),
		displaced:   make(map[cluster.Entity]struct{}),
	}
}

// OnEnd registers fn to be called whenever a transition completes.
func (s *Scene) OnEnd(fn func(*Transition)) {
	s.listeners = append(s.listeners, fn)
}

// InAnimation reports whether a started transition has not ended yet.
func (s *Scene) InAnimation() bool {
	return s.running > 0
}

// Render builds the visible set for zoom from scratch.
func (s *Scene) Render(zoom int) {
	s.Zoom = zoom
	s.ShownBounds = s.viewport()
	s.addChildren(s.Top, nil, zoom, s.ShownBounds)
}

// Pan brings the visible set in line with a viewport that moved, and with
// zoom if it changed without a transition. Nothing happens while a
// transition is in flight.
func (s *Scene) Pan(zoom int) {
	if s.running > 0 {
		return
	}
	view := s.viewport()

	// Entities of another zoom are wrong wherever they are
	var except *cluster.Bounds
	if zoom == s.Zoom {
		except = &view
	}
	s.removeChildren(s.Top, s.ShownBounds, s.Zoom, except)
	s.addChildren(s.Top, nil, zoom, view)
	s.Zoom = zoom
	s.ShownBounds = view
}

// RefreshIcons redraws every drawn cluster whose content changed.
func (s *Scene) RefreshIcons() {
	s.Layer.Each(func(e cluster.Entity) {
		if n, ok := e.(cluster.NodeID); ok && s.Tree.IconDirty(n) {
			s.redraw(n)
		}
	})
}

func (s *Scene) viewport() cluster.Bounds {
	if s.Viewport == nil {
		return cluster.WorldBounds()
	}
	return s.Viewport()
}

func (s *Scene) screen(c cluster.Coord) cluster.ScreenPoint {
	return s.Projection.Project(c, s.Zoom)
}

func (s *Scene) start() {
	s.running++
}

// await registers tr to be completed by a later end.
func (s *Scene) await(tr *Transition) {
	s.awaiting = append(s.awaiting, tr)
}

// end closes the oldest awaited transition.
func (s *Scene) end() {
	if s.running > 0 {
		s.running--
	}
	if len(s.awaiting) == 0 {
		return
	}
	tr := s.awaiting[0]
	s.awaiting[0] = nil
	s.awaiting = s.awaiting[1:]
	s.finish(tr)
}

func (s *Scene) finish(tr *Transition) {
	tr.complete()
	for _, fn := range s.listeners {
		fn(tr)
	}
}

func (s *Scene) flush() {
	if f, ok := s.Layer.(Flusher); ok {
		f.Flush()
	}
}

func (s *Scene) redraw(n cluster.NodeID) {
	if r, ok := s.Layer.(Redrawer); ok {
		r.Redraw(n)
	}
	s.Tree.ClearIconDirty(n)
}

// addToMap draws e at start, or where it belongs when start is nil. An
// entity drawn away from its position is restored by restore.
func (s *Scene) addToMap(e cluster.Entity, start *cluster.Coord) {
	if start != nil {
		s.displaced[e] = struct{}{}
		s.Layer.Add(e, s.screen(*start))
		return
	}
	s.Layer.Add(e, s.screen(s.Tree.Position(e)))
}

func (s *Scene) restore(e cluster.Entity) {
	if _, ok := s.displaced[e]; !ok {
		return
	}
	delete(s.displaced, e)
	s.Layer.SetPosition(e, s.screen(s.Tree.Position(e)))
}

// addChildren draws everything below n that is visible at zoom within
// bounds. With start set, new entities are stacked there and hidden.
func (s *Scene) addChildren(n cluster.NodeID, start *cluster.Coord, zoom int, bounds cluster.Bounds) {
	t := s.Tree
	t.ForEachInRange(n, bounds, s.MinZoom-1, zoom,
		func(c cluster.NodeID) {
			if t.Zoom(c) == zoom {
				return
			}
			leaves := t.Leaves(c)
			for i := len(leaves) - 1; i >= 0; i-- {
				l := leaves[i]
				if !bounds.Contains(t.LeafCoord(l)) {
					continue
				}
				s.addToMap(l, start)
				if start != nil {
					s.Layer.SetHidden(l, true)
				}
			}
		},
		func(c cluster.NodeID) {
			if c != s.Top {
				s.addToMap(c, start)
			}
		},
	)
}

// removeChildren erases the markers of every level below n down to zoom-1
// and the clusters at zoom. Entities inside except stay.
func (s *Scene) removeChildren(n cluster.NodeID, bounds cluster.Bounds, zoom int, except *cluster.Bounds) {
	t := s.Tree
	t.ForEachInRange(n, bounds, s.MinZoom-1, zoom-1,
		func(c cluster.NodeID) {
			leaves := t.Leaves(c)
			for i := len(leaves) - 1; i >= 0; i-- {
				l := leaves[i]
				if except == nil || !except.Contains(t.LeafCoord(l)) {
					s.Layer.Remove(l)
				}
			}
		},
		func(c cluster.NodeID) {
			children := t.Children(c)
			for i := len(children) - 1; i >= 0; i-- {
				ch := children[i]
				if except == nil || !except.Contains(t.Position(ch)) {
					s.Layer.Remove(ch)
				}
			}
		},
	)
}

// becomeVisible unhides the clusters below n at zoom.
func (s *Scene) becomeVisible(n cluster.NodeID, bounds cluster.Bounds, zoom int) {
	s.Tree.ForEachInRange(n, bounds, s.MinZoom, zoom, nil, func(c cluster.NodeID) {
		s.Layer.SetHidden(c, false)
	})
}

// restoreChildPositions moves displaced markers below n back to their true
// positions, and the child clusters of the level just above zoom.
func (s *Scene) restoreChildPositions(n cluster.NodeID, zoom int) {
	t := s.Tree
	leaves := t.Leaves(n)
	for i := len(leaves) - 1; i >= 0; i-- {
		s.restore(leaves[i])
	}

	children := t.Children(n)
	for i := len(children) - 1; i >= 0; i-- {
		if zoom-1 == t.Zoom(n) {
			s.restore(children[i])
		} else {
			s.restoreChildPositions(children[i], zoom)
		}
	}
}

// animateChildrenIn moves every drawn entity below n, up to maxZoom, onto
// center and hides it.
func (s *Scene) animateChildrenIn(n cluster.NodeID, bounds cluster.Bounds, center cluster.ScreenPoint, maxZoom int) {
	t := s.Tree
	collapse := func(e cluster.Entity) {
		if s.Layer.Contains(e) {
			s.Layer.SetPosition(e, center)
			s.Layer.SetHidden(e, true)
		}
	}
	t.ForEachInRange(n, bounds, s.MinZoom, maxZoom-1,
		func(c cluster.NodeID) {
			leaves := t.Leaves(c)
			for i := len(leaves) - 1; i >= 0; i-- {
				collapse(leaves[i])
			}
		},
		func(c cluster.NodeID) {
			children := t.Children(c)
			for i := len(children) - 1; i >= 0; i-- {
				collapse(children[i])
			}
		},
	)
}

// animateChildrenInAndAddSelf collapses the content of every cluster at
// newZoom below n onto that cluster and draws the cluster.
func (s *Scene) animateChildrenInAndAddSelf(n cluster.NodeID, bounds, previous cluster.Bounds, prevZoom, newZoom int) {
	t := s.Tree
	t.ForEachInRange(n, bounds, newZoom, s.MinZoom, func(c cluster.NodeID) {
		s.animateChildrenIn(c, bounds, s.screen(t.Position(c)), prevZoom)

		// A wrapper one level up looks the same as its only child, so swap
		// them without animating.
		if t.IsSingleParent(c) && prevZoom-1 == newZoom {
			s.Layer.SetHidden(c, false)
			s.removeChildren(c, previous, prevZoom, nil)
			s.addToMap(c, nil)
			return
		}
		s.addToMap(c, nil)
		s.Layer.SetHidden(c, true)
	}, nil)
}

// zoomOutSingle merges everything below n into the clusters at newZoom,
// removing the merged entities once the settle delay has passed.
func (s *Scene) zoomOutSingle(n cluster.NodeID, prevZoom, newZoom int) {
	t := s.Tree
	bounds := s.viewport()

	s.animateChildrenInAndAddSelf(n, bounds, s.ShownBounds, prevZoom+1, newZoom)
	s.flush()
	s.becomeVisible(n, bounds, newZoom)

	s.Queue.Enqueue(func() {
		if t.ChildCount(n) <= 1 {
			// The cluster came apart before the delay ran out
			if leaves := t.Leaves(n); len(leaves) == 1 {
				m := leaves[0]
				s.Layer.SetPosition(m, s.screen(t.LeafCoord(m)))
				s.Layer.SetHidden(m, false)
			}
		} else {
			t.ForEachInRange(n, bounds, newZoom, s.MinZoom, func(c cluster.NodeID) {
				s.removeChildren(c, bounds, prevZoom+1, nil)
			}, nil)
		}
		s.end()
	})
}
