package animate

import (
	"fmt"

	"github.com/google/uuid"

	"web/markercluster/cluster"
)

// Phase is where an animator is in a run.
type Phase int

const (
	// Idle means no transition is in flight.
	Idle Phase = iota
	// Running means a transition started and its primary changes are
	// being applied.
	Running
	// PendingRemoval means deferred removals are waiting for the settle
	// delay.
	PendingRemoval
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case PendingRemoval:
		return "pending-removal"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Kind says what started a transition.
type Kind int

const (
	KindZoomIn Kind = iota
	KindZoomOut
	KindAddLayer
)

func (k Kind) String() string {
	switch k {
	case KindZoomIn:
		return "zoom-in"
	case KindZoomOut:
		return "zoom-out"
	case KindAddLayer:
		return "add-layer"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transition tracks one change of the visible set until its deferred work
// has been applied.
type Transition struct {
	ID       uuid.UUID
	Kind     Kind
	From, To int
	// Entity is the marker being added, for KindAddLayer.
	Entity cluster.Entity

	done chan struct{}
}

func newTransition(kind Kind, from, to int) *Transition {
	return &Transition{
		ID:   uuid.New(),
		Kind: kind,
		From: from,
		To:   to,
		done: make(chan struct{}),
	}
}

// Done is closed once the transition has completed.
func (t *Transition) Done() <-chan struct{} {
	return t.done
}

// Completed reports whether the transition has completed.
func (t *Transition) Completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Transition) complete() {
	if !t.Completed() {
		close(t.done)
	}
}

func (t *Transition) String() string {
	return fmt.Sprintf("%s %d->%d (%s)", t.Kind, t.From, t.To, t.ID)
}
