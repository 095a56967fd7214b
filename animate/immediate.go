package animate

import "web/markercluster/cluster"

// Immediate swaps the visible set in one step. Every transition it returns
// is already complete.
type Immediate struct {
	scene *Scene
}

func NewImmediate(s *Scene) *Immediate {
	return &Immediate{scene: s}
}

func (a *Immediate) Start() {}

func (a *Immediate) End() {}

func (a *Immediate) Phase() Phase {
	return Idle
}

func (a *Immediate) ZoomIn(prev, next int) *Transition {
	return a.swap(KindZoomIn, prev, next)
}

func (a *Immediate) ZoomOut(prev, next int) *Transition {
	return a.swap(KindZoomOut, prev, next)
}

func (a *Immediate) swap(kind Kind, prev, next int) *Transition {
	s := a.scene
	tr := newTransition(kind, prev, next)

	s.removeChildren(s.Top, s.ShownBounds, prev, nil)
	s.Zoom = next
	s.ShownBounds = s.viewport()
	s.addChildren(s.Top, nil, next, s.ShownBounds)

	s.finish(tr)
	return tr
}

func (a *Immediate) AddLayer(leaf cluster.LeafID, owner cluster.Entity) *Transition {
	s := a.scene
	tr := newTransition(KindAddLayer, s.Zoom, s.Zoom)
	tr.Entity = leaf
	addLayerNonAnimated(s, leaf, owner)
	tr.complete()
	return tr
}

func addLayerNonAnimated(s *Scene, leaf cluster.LeafID, owner cluster.Entity) {
	n, ok := owner.(cluster.NodeID)
	if !ok {
		s.addToMap(leaf, nil)
		return
	}

	if s.Tree.ChildCount(n) == 2 {
		s.addToMap(n, nil)
		leaves := s.Tree.AllLeaves(n, false)
		s.Layer.Remove(leaves[0])
		s.Layer.Remove(leaves[1])
		return
	}
	s.redraw(n)
}
