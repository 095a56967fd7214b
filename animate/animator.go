// Package animate moves the set of drawn markers and clusters from one zoom
// level to another so that every marker is represented at most once.
package animate

import "web/markercluster/cluster"

// Animator transitions a Scene's visible set.
//
// Calls are expected one at a time: a caller starting a new zoom while a
// previous transition is pending should flush the scene's queue first.
type Animator interface {
	// Start marks the beginning of a zoom transition.
	Start()
	// ZoomIn splits the clusters shown at prev into what is visible at next.
	ZoomIn(prev, next int) *Transition
	// ZoomOut merges what is shown at prev into the clusters of next.
	ZoomOut(prev, next int) *Transition
	// AddLayer shows a marker that was just added to the tree. owner is
	// the entity representing it at the current zoom.
	AddLayer(leaf cluster.LeafID, owner cluster.Entity) *Transition
	// End marks the oldest pending transition as complete.
	End()
	// Phase reports where the animator is in its current run.
	Phase() Phase
}

// New returns the Animated strategy when animated is set, Immediate
// otherwise.
func New(s *Scene, animated bool) Animator {
	if animated {
		return &Animated{scene: s}
	}
	return &Immediate{scene: s}
}
