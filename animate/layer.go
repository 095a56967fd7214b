package animate

import (
	"fmt"
	"sort"

	"web/markercluster/cluster"
)

// Layer is the set of entities currently drawn on the map.
//
// Adding an entity that is already present only moves it. Position and
// visibility changes on absent entities are ignored.
type Layer interface {
	Add(e cluster.Entity, at cluster.ScreenPoint)
	Remove(e cluster.Entity)
	SetPosition(e cluster.Entity, at cluster.ScreenPoint)
	SetHidden(e cluster.Entity, hidden bool)
	Contains(e cluster.Entity) bool
	Each(fn func(e cluster.Entity))
}

// Flusher is implemented by layers that batch drawing. Flush commits the
// current positions so later changes are animated from them.
type Flusher interface {
	Flush()
}

// Redrawer is implemented by layers that render cluster icons.
type Redrawer interface {
	Redraw(n cluster.NodeID)
}

// Op is a kind of change made to a MemoryLayer.
type Op int

const (
	OpAdd Op = iota
	OpRemove
	OpMove
	OpHide
	OpShow
	OpFlush
	OpRedraw
)

var opNames = [...]string{"add", "remove", "move", "hide", "show", "flush", "redraw"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Change is one journal entry.
type Change struct {
	Op     Op
	Entity cluster.Entity
	At     cluster.ScreenPoint
}

type sprite struct {
	At     cluster.ScreenPoint
	Hidden bool
}

// MemoryLayer keeps the visible set in memory and journals every change.
type MemoryLayer struct {
	items   map[cluster.Entity]*sprite
	journal []Change

	// OnChange, if set, is called after every change is applied.
	OnChange func(Change)
}

func NewMemoryLayer() *MemoryLayer {
	return &MemoryLayer{items: make(map[cluster.Entity]*sprite)}
}

func (m *MemoryLayer) record(c Change) {
	m.journal = append(m.journal, c)
	if m.OnChange != nil {
		m.OnChange(c)
	}
}

func (m *MemoryLayer) Add(e cluster.Entity, at cluster.ScreenPoint) {
	if s, ok := m.items[e]; ok {
		if s.At != at {
			s.At = at
			m.record(Change{Op: OpMove, Entity: e, At: at})
		}
		return
	}
	m.items[e] = &sprite{At: at}
	m.record(Change{Op: OpAdd, Entity: e, At: at})
}

func (m *MemoryLayer) Remove(e cluster.Entity) {
	s, ok := m.items[e]
	if !ok {
		return
	}
	delete(m.items, e)
	m.record(Change{Op: OpRemove, Entity: e, At: s.At})
}

func (m *MemoryLayer) SetPosition(e cluster.Entity, at cluster.ScreenPoint) {
	s, ok := m.items[e]
	if !ok || s.At == at {
		return
	}
	s.At = at
	m.record(Change{Op: OpMove, Entity: e, At: at})
}

func (m *MemoryLayer) SetHidden(e cluster.Entity, hidden bool) {
	s, ok := m.items[e]
	if !ok || s.Hidden == hidden {
		return
	}
	s.Hidden = hidden
	op := OpShow
	if hidden {
		op = OpHide
	}
	m.record(Change{Op: op, Entity: e, At: s.At})
}

func (m *MemoryLayer) Contains(e cluster.Entity) bool {
	_, ok := m.items[e]
	return ok
}

// Each visits the entities in a stable order: markers first, then clusters,
// each by id.
func (m *MemoryLayer) Each(fn func(e cluster.Entity)) {
	for _, e := range m.Entities() {
		fn(e)
	}
}

func (m *MemoryLayer) Flush() {
	m.record(Change{Op: OpFlush})
}

func (m *MemoryLayer) Redraw(n cluster.NodeID) {
	if _, ok := m.items[n]; ok {
		m.record(Change{Op: OpRedraw, Entity: n})
	}
}

// Hidden reports whether e is present but hidden.
func (m *MemoryLayer) Hidden(e cluster.Entity) bool {
	s, ok := m.items[e]
	return ok && s.Hidden
}

// Position returns where e is drawn.
func (m *MemoryLayer) Position(e cluster.Entity) (cluster.ScreenPoint, bool) {
	s, ok := m.items[e]
	if !ok {
		return cluster.ScreenPoint{}, false
	}
	return s.At, true
}

// Len returns the number of entities drawn, hidden ones included.
func (m *MemoryLayer) Len() int {
	return len(m.items)
}

// Entities returns every drawn entity, markers first, then clusters, each
// sorted by id.
func (m *MemoryLayer) Entities() []cluster.Entity {
	out := make([]cluster.Entity, 0, len(m.items))
	for e := range m.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsCluster() != b.IsCluster() {
			return !a.IsCluster()
		}
		return entityIndex(a) < entityIndex(b)
	})
	return out
}

// Visible returns the entities drawn and not hidden, in Entities order.
func (m *MemoryLayer) Visible() []cluster.Entity {
	var out []cluster.Entity
	for _, e := range m.Entities() {
		if !m.items[e].Hidden {
			out = append(out, e)
		}
	}
	return out
}

// Journal returns a copy of the changes recorded so far.
func (m *MemoryLayer) Journal() []Change {
	return append([]Change(nil), m.journal...)
}

// ResetJournal drops the recorded changes.
func (m *MemoryLayer) ResetJournal() {
	m.journal = m.journal[:0]
}

// Clear removes every entity without journaling.
func (m *MemoryLayer) Clear() {
	m.items = make(map[cluster.Entity]*sprite)
}

func entityIndex(e cluster.Entity) int32 {
	switch v := e.(type) {
	case cluster.LeafID:
		return int32(v)
	case cluster.NodeID:
		return int32(v)
	}
	return -1
}
