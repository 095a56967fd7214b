package cluster

// ForEachInRange walks n and the clusters below it whose bounds intersect
// bounds.
//
// A node is visited (onEveryLevel) when zoomFrom <= its zoom, and is also
// reported to onBottomLevel when its zoom equals zoomTo. Children are
// entered while the node's zoom is below zoomFrom or below zoomTo. Either
// callback may be nil. Callbacks must not change the tree structure.
func (t *Tree) ForEachInRange(n NodeID, bounds Bounds, zoomFrom, zoomTo int, onEveryLevel, onBottomLevel func(NodeID)) {
	zoom := t.nodes[n].Zoom

	if zoomFrom <= zoom {
		if onEveryLevel != nil {
			onEveryLevel(n)
		}
		if onBottomLevel != nil && zoom == zoomTo {
			onBottomLevel(n)
		}
	}

	if zoom < zoomFrom || zoom < zoomTo {
		children := t.nodes[n].Children
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if bounds.Intersects(t.Bounds(c)) {
				t.ForEachInRange(c, bounds, zoomFrom, zoomTo, onEveryLevel, onBottomLevel)
			}
		}
	}
}

// ZoomTarget says how to zoom the map so a cluster comes apart.
type ZoomTarget struct {
	// Fit is set when the map should fit Bounds rather than center on
	// Center at Zoom.
	Fit    bool
	Zoom   int
	Center Coord
	Bounds Bounds
}

// ZoomExtentFor picks the zoom that shows n's markers. boundsZoom is the
// zoom at which n's bounds fill the viewport and mapZoom the current zoom.
//
// It follows chains of child clusters while they would still be clustered
// at boundsZoom. If fitting the bounds would not zoom in at all, it goes one
// level past the current zoom instead.
func (t *Tree) ZoomExtentFor(n NodeID, boundsZoom, mapZoom int) ZoomTarget {
	zoom := t.nodes[n].Zoom + 1
	frontier := append([]NodeID(nil), t.nodes[n].Children...)

	for len(frontier) > 0 && boundsZoom > zoom {
		zoom++
		var next []NodeID
		for _, c := range frontier {
			next = append(next, t.nodes[c].Children...)
		}
		frontier = next
	}

	switch {
	case boundsZoom > zoom:
		return ZoomTarget{Zoom: zoom, Center: t.Position(n)}
	case boundsZoom <= mapZoom:
		return ZoomTarget{Zoom: mapZoom + 1, Center: t.Position(n)}
	default:
		return ZoomTarget{Fit: true, Zoom: boundsZoom, Center: t.Position(n), Bounds: t.Bounds(n)}
	}
}
