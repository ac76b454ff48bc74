package simgr

import "github.com/ph4ge/greed-go/vmstate"

// Technique is a pluggable exploration strategy with five hooks applied at
// well-defined points of Manager.Step. It is declared here rather than in
// package techniques so Manager can hold a slice of them without that
// package importing simgr back; techniques.Base and its concrete
// techniques implement this interface by importing simgr for the
// *Manager/Stashes types their methods take.
type Technique interface {
	// Setup runs once, at registration time.
	Setup(m *Manager)
	// CheckStashes may reorder, prune, or inject states across stashes
	// before a step begins.
	CheckStashes(m *Manager, stashes Stashes) Stashes
	// CheckState may wrap or replace a state immediately before it is
	// stepped.
	CheckState(m *Manager, s *vmstate.State) *vmstate.State
	// CheckSuccessors post-filters/transforms a just-stepped state's
	// successors.
	CheckSuccessors(m *Manager, succs []*vmstate.State) []*vmstate.State
	// IsComplete participates in Run's termination check: Run only stops
	// on an empty active stash if every registered technique reports true.
	IsComplete(m *Manager) bool
}
