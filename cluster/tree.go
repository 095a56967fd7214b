package cluster

// leaf is a single marker stored in the arena.
type leaf struct {
	ID       uint32
	At       Coord
	Parent   NodeID
	Dragging bool
}

// node is a cluster at one zoom level. Parent is a non-owning back
// reference; Leaves and Children are the only ownership relation.
type node struct {
	Zoom     int
	Parent   NodeID
	Leaves   []LeafID
	Children []NodeID
	Count    int

	Centroid Coord
	Bounds   Bounds
	Anchor   Coord
	Anchored bool

	BoundsDirty bool
	IconDirty   bool
}

// Tree is an arena of markers and cluster nodes addressed by id.
// It is not safe for concurrent use.
type Tree struct {
	leaves    []leaf
	nodes     []node
	freeLeafs []LeafID
	freeNodes []NodeID
}

// NewTree creates an empty arena.
func NewTree() *Tree {
	return &Tree{}
}

// NewLeaf stores a marker with the given id at c. The leaf has no parent
// until it is added to a node.
func (t *Tree) NewLeaf(id uint32, c Coord) LeafID {
	l := leaf{ID: id, At: c, Parent: NoNode}
	if n := len(t.freeLeafs); n > 0 {
		lid := t.freeLeafs[n-1]
		t.freeLeafs = t.freeLeafs[:n-1]
		t.leaves[lid] = l
		return lid
	}
	t.leaves = append(t.leaves, l)
	return LeafID(len(t.leaves) - 1)
}

// NewNode creates a cluster node at zoom and adds the given children in order.
func (t *Tree) NewNode(zoom int, children ...Entity) NodeID {
	nd := node{
		Zoom:        zoom,
		Parent:      NoNode,
		Bounds:      EmptyBounds(),
		BoundsDirty: true,
		IconDirty:   true,
	}

	var id NodeID
	if n := len(t.freeNodes); n > 0 {
		id = t.freeNodes[n-1]
		t.freeNodes = t.freeNodes[:n-1]
		t.nodes[id] = nd
	} else {
		t.nodes = append(t.nodes, nd)
		id = NodeID(len(t.nodes) - 1)
	}

	for _, c := range children {
		if c != nil {
			t.AddChild(id, c)
		}
	}
	return id
}

// ReleaseNode returns a detached, empty node to the arena for reuse.
func (t *Tree) ReleaseNode(n NodeID) {
	t.nodes[n] = node{Parent: NoNode, Bounds: EmptyBounds()}
	t.freeNodes = append(t.freeNodes, n)
}

// ReleaseLeaf returns a detached leaf to the arena for reuse.
func (t *Tree) ReleaseLeaf(l LeafID) {
	t.leaves[l] = leaf{Parent: NoNode}
	t.freeLeafs = append(t.freeLeafs, l)
}

// Reset drops every leaf and node.
func (t *Tree) Reset() {
	t.leaves = nil
	t.nodes = nil
	t.freeLeafs = nil
	t.freeNodes = nil
}

// NumLeaves returns the number of live leaves in the arena.
func (t *Tree) NumLeaves() int {
	return len(t.leaves) - len(t.freeLeafs)
}

// NumNodes returns the number of live nodes in the arena.
func (t *Tree) NumNodes() int {
	return len(t.nodes) - len(t.freeNodes)
}

// AddChild attaches child to n and updates the counts of every ancestor.
//
// The first child ever added fixes n's anchor, the position used before
// bounds are known. Ancestors only receive the count; the child is
// registered at n alone.
func (t *Tree) AddChild(n NodeID, child Entity) {
	t.addChild(n, child, false)
	for p := t.nodes[n].Parent; p != NoNode; p = t.nodes[p].Parent {
		t.addChild(p, child, true)
	}
}

func (t *Tree) addChild(n NodeID, child Entity, passThrough bool) {
	nd := &t.nodes[n]
	nd.IconDirty = true
	nd.BoundsDirty = true

	if !nd.Anchored {
		nd.Anchor = t.anchorOf(child)
		nd.Anchored = true
	}

	switch c := child.(type) {
	case NodeID:
		if !passThrough {
			nd.Children = append(nd.Children, c)
			t.nodes[c].Parent = n
		}
		nd.Count += t.nodes[c].Count
	case LeafID:
		if !passThrough {
			nd.Leaves = append(nd.Leaves, c)
			t.leaves[c].Parent = n
		}
		nd.Count++
	}
}

func (t *Tree) anchorOf(e Entity) Coord {
	switch c := e.(type) {
	case NodeID:
		if t.nodes[c].Anchored {
			return t.nodes[c].Anchor
		}
		return t.nodes[c].Centroid
	case LeafID:
		return t.leaves[c].At
	}
	return Coord{}
}

// RemoveLeaf detaches l from the direct leaves of n. Counts are left alone;
// pair it with PropagateRemoval or Decrement.
func (t *Tree) RemoveLeaf(n NodeID, l LeafID) bool {
	nd := &t.nodes[n]
	for i, x := range nd.Leaves {
		if x == l {
			nd.Leaves = append(nd.Leaves[:i], nd.Leaves[i+1:]...)
			nd.BoundsDirty = true
			t.leaves[l].Parent = NoNode
			return true
		}
	}
	return false
}

// RemoveNode detaches child from the child clusters of n. Counts are left
// alone.
func (t *Tree) RemoveNode(n, child NodeID) bool {
	nd := &t.nodes[n]
	for i, x := range nd.Children {
		if x == child {
			nd.Children = append(nd.Children[:i], nd.Children[i+1:]...)
			nd.BoundsDirty = true
			t.nodes[child].Parent = NoNode
			return true
		}
	}
	return false
}

// Decrement lowers the count of n alone by by and marks it dirty.
func (t *Tree) Decrement(n NodeID, by int) {
	nd := &t.nodes[n]
	nd.Count -= by
	if nd.Count < 0 {
		nd.Count = 0
	}
	nd.BoundsDirty = true
	nd.IconDirty = true
}

// PropagateRemoval decrements n and every ancestor of n by by.
func (t *Tree) PropagateRemoval(n NodeID, by int) {
	for p := n; p != NoNode; p = t.nodes[p].Parent {
		t.Decrement(p, by)
	}
}

// recalculate recomputes bounds and the weighted centroid of n, refreshing
// stale children first. A node with no descendants is left untouched.
func (t *Tree) recalculate(n NodeID) {
	nd := &t.nodes[n]
	if nd.Count == 0 {
		return
	}

	nd.Bounds.Reset()
	var sumX, sumY float64

	for _, l := range nd.Leaves {
		at := t.leaves[l].At
		nd.Bounds.Extend(at)
		sumX += at.X
		sumY += at.Y
	}

	for _, c := range nd.Children {
		if t.nodes[c].BoundsDirty {
			t.recalculate(c)
		}
		child := &t.nodes[c]
		nd.Bounds.ExtendBounds(child.Bounds)

		w := float64(child.Count)
		sumX += child.Centroid.X * w
		sumY += child.Centroid.Y * w
	}

	total := float64(nd.Count)
	nd.Centroid = Coord{X: sumX / total, Y: sumY / total}
	nd.BoundsDirty = false
}

func (t *Tree) fresh(n NodeID) *node {
	if t.nodes[n].BoundsDirty {
		t.recalculate(n)
	}
	return &t.nodes[n]
}

// Bounds returns the bounding box of every descendant of n.
func (t *Tree) Bounds(n NodeID) Bounds {
	return t.fresh(n).Bounds
}

// Centroid returns the count weighted average position of n's descendants.
func (t *Tree) Centroid(n NodeID) Coord {
	return t.fresh(n).Centroid
}

// Anchor returns the position fixed by the first child added to n.
func (t *Tree) Anchor(n NodeID) Coord {
	return t.nodes[n].Anchor
}

// Position is where an entity belongs on the map: a marker's coordinate or
// a cluster's centroid. Empty clusters report their anchor.
func (t *Tree) Position(e Entity) Coord {
	switch c := e.(type) {
	case LeafID:
		return t.leaves[c].At
	case NodeID:
		if t.nodes[c].Count == 0 {
			return t.nodes[c].Anchor
		}
		return t.Centroid(c)
	}
	return Coord{}
}

// ChildCount returns the number of markers below n.
func (t *Tree) ChildCount(n NodeID) int {
	return t.nodes[n].Count
}

// Zoom returns the zoom level n belongs to.
func (t *Tree) Zoom(n NodeID) int {
	return t.nodes[n].Zoom
}

// Parent returns the node e is attached to, or NoNode.
func (t *Tree) Parent(e Entity) NodeID {
	switch c := e.(type) {
	case LeafID:
		return t.leaves[c].Parent
	case NodeID:
		return t.nodes[c].Parent
	}
	return NoNode
}

// Leaves returns the direct markers of n. The slice must not be modified.
func (t *Tree) Leaves(n NodeID) []LeafID {
	return t.nodes[n].Leaves
}

// Children returns the direct child clusters of n. The slice must not be
// modified.
func (t *Tree) Children(n NodeID) []NodeID {
	return t.nodes[n].Children
}

// MarkerID returns the id the marker was created with.
func (t *Tree) MarkerID(l LeafID) uint32 {
	return t.leaves[l].ID
}

// LeafCoord returns the position of a marker.
func (t *Tree) LeafCoord(l LeafID) Coord {
	return t.leaves[l].At
}

// SetLeafCoord moves a detached marker. Moving an attached marker leaves
// its ancestors' aggregates stale.
func (t *Tree) SetLeafCoord(l LeafID, c Coord) {
	t.leaves[l].At = c
}

// MoveLeaf re-attaches l directly under to without touching any count. It
// is used when a cluster dissolves and its last marker takes its place.
func (t *Tree) MoveLeaf(l LeafID, to NodeID) {
	if from := t.leaves[l].Parent; from != NoNode {
		t.RemoveLeaf(from, l)
	}
	nd := &t.nodes[to]
	nd.Leaves = append(nd.Leaves, l)
	nd.BoundsDirty = true
	t.leaves[l].Parent = to
}

// SetDragging flags a marker as being moved interactively.
func (t *Tree) SetDragging(l LeafID, dragging bool) {
	t.leaves[l].Dragging = dragging
}

// Dragging reports whether a marker is mid drag.
func (t *Tree) Dragging(l LeafID) bool {
	return t.leaves[l].Dragging
}

// IconDirty reports whether n changed since its icon was last rendered.
func (t *Tree) IconDirty(n NodeID) bool {
	return t.nodes[n].IconDirty
}

// MarkIconDirty forces n's icon to be rebuilt.
func (t *Tree) MarkIconDirty(n NodeID) {
	t.nodes[n].IconDirty = true
}

// ClearIconDirty records that n's icon was rendered.
func (t *Tree) ClearIconDirty(n NodeID) {
	t.nodes[n].IconDirty = false
}

// AllLeaves collects every marker below n, depth first. With ignoreDragged
// set, markers in the middle of a drag are skipped.
func (t *Tree) AllLeaves(n NodeID, ignoreDragged bool) []LeafID {
	return t.appendLeaves(nil, n, ignoreDragged)
}

func (t *Tree) appendLeaves(dst []LeafID, n NodeID, ignoreDragged bool) []LeafID {
	nd := &t.nodes[n]
	for i := len(nd.Children) - 1; i >= 0; i-- {
		dst = t.appendLeaves(dst, nd.Children[i], ignoreDragged)
	}
	for j := len(nd.Leaves) - 1; j >= 0; j-- {
		l := nd.Leaves[j]
		if ignoreDragged && t.leaves[l].Dragging {
			continue
		}
		dst = append(dst, l)
	}
	return dst
}

// IsSingleParent reports whether n only wraps one child cluster holding the
// same markers. Such a node adds nothing visually one zoom level up.
func (t *Tree) IsSingleParent(n NodeID) bool {
	nd := &t.nodes[n]
	return len(nd.Children) == 1 && len(nd.Leaves) == 0 &&
		t.nodes[nd.Children[0]].Count == nd.Count
}

// VisibleAncestor returns the entity standing in for l at zoom: the
// highest ancestor whose zoom is at or above zoom, or l itself.
func (t *Tree) VisibleAncestor(l LeafID, zoom int) Entity {
	var visible Entity = l
	for p := t.leaves[l].Parent; p != NoNode && t.nodes[p].Zoom >= zoom; p = t.nodes[p].Parent {
		visible = p
	}
	return visible
}
