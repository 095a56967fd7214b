package cluster

import "fmt"

// Entity is something the map can show: a single marker (LeafID) or a
// cluster node (NodeID). Both are plain arena indexes, so entities are
// comparable and work as map keys.
type Entity interface {
	IsCluster() bool
	fmt.Stringer
	entity()
}

// LeafID addresses a marker in a Tree.
type LeafID int32

// NodeID addresses a cluster node in a Tree.
type NodeID int32

// NoNode is the parent of a root, and of a detached leaf.
const NoNode NodeID = -1

func (LeafID) IsCluster() bool { return false }
func (NodeID) IsCluster() bool { return true }

func (l LeafID) String() string { return fmt.Sprintf("leaf#%d", int32(l)) }
func (n NodeID) String() string { return fmt.Sprintf("node#%d", int32(n)) }

func (LeafID) entity() {}
func (NodeID) entity() {}
