package cluster

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
)

// Point is an input marker.
type Point struct {
	ID       uint32
	X, Y     float64 // lng, lat
	Metrics  map[string]float32
	Metadata map[string]interface{}
}

// ClusterNode is one entity visible at a zoom level: a cluster or a lone
// marker.
type ClusterNode struct {
	ID       uint32
	Entity   Entity
	X, Y     float64
	Count    uint32
	Metrics  ClusterMetrics
	Metadata map[string]json.RawMessage
}

type ClusterMetrics struct {
	Values map[string]float32
}

// leafData is what the tree does not need to know about a marker.
type leafData struct {
	MetricIdx uint32
	Metadata  map[string]interface{}
}

// MetricsPool stores each distinct metric set once. Markers refer to their
// metrics by index, and many markers usually share a set.
type MetricsPool struct {
	mu    sync.RWMutex
	sets  []map[string]float32
	index map[string]uint32
}

func NewMetricsPool() *MetricsPool {
	return &MetricsPool{index: make(map[string]uint32)}
}

// poolKey encodes m with its names sorted, each followed by a zero byte
// and the bits of its value. Sets are equal only when every value is.
func poolKey(m map[string]float32) string {
	names := make([]string, 0, len(m))
	size := 0
	for name := range m {
		names = append(names, name)
		size += len(name) + 5
	}
	sort.Strings(names)

	buf := make([]byte, 0, size)
	for _, name := range names {
		buf = append(buf, name...)
		buf = append(buf, 0)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(m[name]))
	}
	return string(buf)
}

// Add returns the index of the set equal to m, storing a copy of m first
// if there is none.
func (mp *MetricsPool) Add(m map[string]float32) uint32 {
	key := poolKey(m)

	mp.mu.Lock()
	defer mp.mu.Unlock()
	if idx, ok := mp.index[key]; ok {
		return idx
	}

	set := make(map[string]float32, len(m))
	for name, v := range m {
		set[name] = v
	}
	idx := uint32(len(mp.sets))
	mp.sets = append(mp.sets, set)
	mp.index[key] = idx
	return idx
}

// Get returns the set at idx, or nil past the end. The set is shared and
// must not be modified.
func (mp *MetricsPool) Get(idx uint32) map[string]float32 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	if int(idx) >= len(mp.sets) {
		return nil
	}
	return mp.sets[idx]
}

func (mp *MetricsPool) Len() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.sets)
}

func (mp *MetricsPool) release() {
	mp.mu.Lock()
	mp.sets, mp.index = nil, nil
	mp.mu.Unlock()
}

// Supercluster builds and maintains the cluster hierarchy for every zoom
// level between MinZoom and MaxZoom.
//
// Each zoom level owns two distance grids: one for the clusters formed at
// that level and one for markers that are still alone there. A marker is
// placed by walking zoom levels from MaxZoom down until it joins a cluster
// or meets a lone marker to merge with; markers that stay alone all the way
// end up under the top node, whose zoom is MinZoom-1.
type Supercluster struct {
	Tree    *Tree
	Top     NodeID
	Options SuperclusterOptions
	Pool    *MetricsPool

	// OnCollapse is called when removing a marker dissolves a cluster
	// into its last remaining marker, before the cluster id is recycled.
	OnCollapse func(cluster NodeID, survivor LeafID)

	proj            WebMercator
	gridClusters    []*DistanceGrid[NodeID]
	gridUnclustered []*DistanceGrid[LeafID]
	byID            map[uint32]LeafID
	data            map[LeafID]leafData
}

type SuperclusterOptions struct {
	MinZoom int
	MaxZoom int
	Radius  float64 // cluster radius in pixels; the grid cell size
	Extent  int     // tile size in pixels
	Log     bool
}

// NewSupercluster creates a new clustering instance with the specified options.
// It validates and sets default values for the options if not provided.
func NewSupercluster(options SuperclusterOptions) *Supercluster {
	// Set default values if not provided
	if options.MaxZoom <= 0 {
		options.MaxZoom = 18
	}
	if options.Extent <= 0 {
		options.Extent = 256
	}
	if options.Radius <= 0 {
		options.Radius = 80
	}

	// Validate zoom levels
	if options.MaxZoom > 24 {
		options.MaxZoom = 24
	}
	if options.MinZoom > options.MaxZoom {
		options.MinZoom = options.MaxZoom
	}

	sc := &Supercluster{
		Options: options,
		proj:    WebMercator{Extent: float64(options.Extent)},
	}
	sc.reset()
	return sc
}

func (sc *Supercluster) reset() {
	levels := sc.Options.MaxZoom - sc.Options.MinZoom + 1
	sc.gridClusters = make([]*DistanceGrid[NodeID], levels)
	sc.gridUnclustered = make([]*DistanceGrid[LeafID], levels)
	for i := 0; i < levels; i++ {
		sc.gridClusters[i] = NewDistanceGrid[NodeID](sc.Options.Radius)
		sc.gridUnclustered[i] = NewDistanceGrid[LeafID](sc.Options.Radius)
	}

	sc.Tree = NewTree()
	sc.Top = sc.Tree.NewNode(sc.Options.MinZoom - 1)
	sc.Pool = NewMetricsPool()
	sc.byID = make(map[uint32]LeafID)
	sc.data = make(map[LeafID]leafData)
}

// Projection returns the projection used to place markers in the grids.
func (sc *Supercluster) Projection() Projector {
	return sc.proj
}

// ClusterGrid returns the grid of clusters formed at zoom.
func (sc *Supercluster) ClusterGrid(zoom int) *DistanceGrid[NodeID] {
	return sc.gridClusters[zoom-sc.Options.MinZoom]
}

// UnclusteredGrid returns the grid of markers still alone at zoom.
func (sc *Supercluster) UnclusteredGrid(zoom int) *DistanceGrid[LeafID] {
	return sc.gridUnclustered[zoom-sc.Options.MinZoom]
}

// Len returns the number of markers held.
func (sc *Supercluster) Len() int {
	return len(sc.byID)
}

// Leaf returns the tree leaf holding the marker with the given id.
func (sc *Supercluster) Leaf(id uint32) (LeafID, bool) {
	l, ok := sc.byID[id]
	return l, ok
}

// Load initializes the cluster index with points
func (sc *Supercluster) Load(points []Point) {
	sc.logf("Loading %d points", len(points))
	sc.reset()
	for _, p := range points {
		sc.AddPoint(p)
	}
	sc.logf("Loaded %d points into %d nodes", sc.Len(), sc.Tree.NumNodes())
}

// AddPoint places a marker in the hierarchy. Adding an id that is already
// present returns the existing leaf.
func (sc *Supercluster) AddPoint(p Point) LeafID {
	if l, ok := sc.byID[p.ID]; ok {
		return l
	}

	l := sc.Tree.NewLeaf(p.ID, Coord{X: p.X, Y: p.Y})
	sc.byID[p.ID] = l
	sc.data[l] = leafData{
		MetricIdx: sc.Pool.Add(p.Metrics),
		Metadata:  p.Metadata,
	}

	sc.addLeaf(l, sc.Options.MaxZoom)
	return l
}

func (sc *Supercluster) addLeaf(l LeafID, zoom int) {
	t := sc.Tree
	at := t.LeafCoord(l)

	for ; zoom >= sc.Options.MinZoom; zoom-- {
		pt := sc.proj.Project(at, zoom)

		// Try find a cluster close by
		if c, ok := sc.ClusterGrid(zoom).Nearest(pt); ok {
			t.AddChild(c, l)
			return
		}

		// Try find a marker close by to form a new cluster with
		closest, ok := sc.UnclusteredGrid(zoom).Nearest(pt)
		if !ok {
			sc.UnclusteredGrid(zoom).Insert(l, pt)
			continue
		}

		parent := t.Parent(closest)
		if parent == NoNode {
			parent = sc.Top
		} else {
			sc.detachLeaf(closest, false)
		}

		newCluster := t.NewNode(zoom, closest, l)
		sc.ClusterGrid(zoom).Insert(newCluster, sc.proj.Project(t.Anchor(newCluster), zoom))

		// Single-child wrappers down to the old parent's level
		last := newCluster
		closestAt := t.LeafCoord(closest)
		for z := zoom - 1; z > t.Zoom(parent); z-- {
			last = t.NewNode(z, last)
			sc.ClusterGrid(z).Insert(last, sc.proj.Project(closestAt, z))
		}
		t.AddChild(parent, last)

		sc.removeFromUnclustered(closest, zoom)
		return
	}

	t.AddChild(sc.Top, l)
}

// RemovePoint takes the marker with the given id out of the hierarchy.
func (sc *Supercluster) RemovePoint(id uint32) bool {
	l, ok := sc.byID[id]
	if !ok {
		return false
	}

	sc.detachLeaf(l, true)
	delete(sc.byID, id)
	delete(sc.data, l)
	sc.Tree.ReleaseLeaf(l)
	return true
}

// MovePoint relocates a marker, re-clustering it at its new position.
func (sc *Supercluster) MovePoint(id uint32, x, y float64) (LeafID, bool) {
	l, ok := sc.byID[id]
	if !ok {
		return l, false
	}

	sc.detachLeaf(l, true)
	sc.Tree.SetLeafCoord(l, Coord{X: x, Y: y})
	sc.addLeaf(l, sc.Options.MaxZoom)
	return l, true
}

// detachLeaf unlinks l from its parent and decrements counts up to the top.
// With fixGrids set it also keeps the grids consistent, dissolving every
// cluster left with a single marker into that marker.
func (sc *Supercluster) detachLeaf(l LeafID, fixGrids bool) {
	t := sc.Tree
	if fixGrids {
		sc.removeFromUnclustered(l, sc.Options.MaxZoom)
	}

	c := t.Parent(l)
	if c == NoNode {
		return
	}
	t.RemoveLeaf(c, l)

	for c != NoNode {
		t.Decrement(c, 1)
		zoom := t.Zoom(c)
		if zoom < sc.Options.MinZoom {
			break
		}

		parent := t.Parent(c)
		if !fixGrids || t.ChildCount(c) > 1 || len(t.Leaves(c)) == 0 || parent == NoNode {
			c = parent
			continue
		}

		survivor := t.Leaves(c)[0]
		sc.ClusterGrid(zoom).Remove(c, sc.proj.Project(t.Anchor(c), zoom))
		sc.UnclusteredGrid(zoom).Insert(survivor, sc.proj.Project(t.LeafCoord(survivor), zoom))

		// The survivor takes the cluster's place in the parent
		t.RemoveNode(parent, c)
		t.MoveLeaf(survivor, parent)

		if sc.OnCollapse != nil {
			sc.OnCollapse(c, survivor)
		}
		t.ReleaseNode(c)
		c = parent
	}
}

func (sc *Supercluster) removeFromUnclustered(l LeafID, zoom int) {
	at := sc.Tree.LeafCoord(l)
	for ; zoom >= sc.Options.MinZoom; zoom-- {
		if !sc.UnclusteredGrid(zoom).Remove(l, sc.proj.Project(at, zoom)) {
			break
		}
	}
}

// VisibleAt calls fn for every entity shown at zoom inside bounds: markers
// not clustered at that zoom and the clusters formed exactly at it.
func (sc *Supercluster) VisibleAt(bounds Bounds, zoom int, fn func(Entity)) {
	t := sc.Tree
	t.ForEachInRange(sc.Top, bounds, sc.Options.MinZoom-1, zoom,
		func(c NodeID) {
			if t.Zoom(c) == zoom {
				return
			}
			leaves := t.Leaves(c)
			for i := len(leaves) - 1; i >= 0; i-- {
				if bounds.Contains(t.LeafCoord(leaves[i])) {
					fn(leaves[i])
				}
			}
		},
		func(c NodeID) {
			if c != sc.Top {
				fn(c)
			}
		},
	)
}

// GetClusters returns clusters for the given bounds and zoom level
func (sc *Supercluster) GetClusters(bounds Bounds, zoom int) []ClusterNode {
	sc.logf("Getting clusters for zoom level %d", zoom)
	sc.logf("Bounds: MinX: %f, MinY: %f, MaxX: %f, MaxY: %f",
		bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY)

	var clusters []ClusterNode
	sc.VisibleAt(bounds, zoom, func(e Entity) {
		clusters = append(clusters, sc.Describe(e))
	})

	sc.logf("Found %d clusters from %d points", len(clusters), sc.Len())
	return clusters
}

// Describe summarizes one entity: position, marker count and metric rollup.
func (sc *Supercluster) Describe(e Entity) ClusterNode {
	t := sc.Tree
	switch v := e.(type) {
	case LeafID:
		at := t.LeafCoord(v)
		d := sc.data[v]
		cn := ClusterNode{
			ID:       t.MarkerID(v),
			Entity:   v,
			X:        at.X,
			Y:        at.Y,
			Count:    1,
			Metrics:  ClusterMetrics{Values: sc.Pool.Get(d.MetricIdx)},
			Metadata: make(map[string]json.RawMessage),
		}
		for k, val := range d.Metadata {
			if raw, err := json.Marshal(val); err == nil {
				cn.Metadata[k] = raw
			}
		}
		return cn
	case NodeID:
		cn := sc.rollup(t.AllLeaves(v, false))
		at := t.Position(v)
		cn.ID = uint32(v)
		cn.Entity = v
		cn.X, cn.Y = at.X, at.Y
		cn.Count = uint32(t.ChildCount(v))
		return cn
	}
	return ClusterNode{}
}

// rollup sums the metrics of the given markers and keeps only the metadata
// values every one of them shares.
func (sc *Supercluster) rollup(leaves []LeafID) ClusterNode {
	metrics := make(map[string]float64)

	// Create a map to aggregate metadata
	metadata := make(map[string]interface{})
	metadataCounts := make(map[string]int)

	for _, l := range leaves {
		d := sc.data[l]
		if pointMetrics := sc.Pool.Get(d.MetricIdx); pointMetrics != nil {
			for k, v := range pointMetrics {
				metrics[k] += float64(v)
			}
		}

		for k, v := range d.Metadata {
			key := fmt.Sprintf("%s:%v", k, v)
			metadataCounts[key]++
			if metadataCounts[key] == 1 {
				metadata[k] = v
			}
		}
	}

	cluster := ClusterNode{
		Count:    uint32(len(leaves)),
		Metrics:  ClusterMetrics{Values: make(map[string]float32, len(metrics))},
		Metadata: make(map[string]json.RawMessage),
	}
	for k, sum := range metrics {
		cluster.Metrics.Values[k] = float32(sum)
	}

	// Only keep metadata values that appear in all points
	for k, v := range metadata {
		if metadataCounts[fmt.Sprintf("%s:%v", k, v)] == len(leaves) {
			if jsonBytes, err := json.Marshal(v); err == nil {
				cluster.Metadata[k] = jsonBytes
			}
		}
	}
	return cluster
}

// GeoJSON types
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// ToGeoJSON converts clusters to GeoJSON format
func (sc *Supercluster) ToGeoJSON(bounds Bounds, zoom int) (*FeatureCollection, error) {
	clusters := sc.GetClusters(bounds, zoom)

	features := make([]Feature, len(clusters))
	for i, cluster := range clusters {
		properties := make(map[string]interface{})
		properties["cluster"] = cluster.Entity.IsCluster()
		properties["point_count"] = cluster.Count
		if cluster.Entity.IsCluster() {
			properties["cluster_id"] = cluster.ID
		} else {
			properties["id"] = cluster.ID
		}
		for k, v := range cluster.Metrics.Values {
			properties[k] = v
		}
		for k, v := range cluster.Metadata {
			properties[k] = v
		}

		features[i] = Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{cluster.X, cluster.Y},
			},
			Properties: properties,
		}
	}

	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}, nil
}

// CleanupCluster releases memory held by the cluster
func (sc *Supercluster) CleanupCluster() {
	if sc == nil {
		return
	}

	if sc.Tree != nil {
		sc.Tree.Reset()
		sc.Tree = nil
	}
	if sc.Pool != nil {
		sc.Pool.release()
		sc.Pool = nil
	}
	sc.gridClusters = nil
	sc.gridUnclustered = nil
	sc.byID = nil
	sc.data = nil

	// Force immediate garbage collection
	runtime.GC()
	debug.FreeOSMemory()
}
