package simgr

import "github.com/ph4ge/greed-go/vmstate"

// Well-known stash names. States is the union of all of them.
const (
	Active    = "active"
	Deadended = "deadended"
	Found     = "found"
	Pruned    = "pruned"
	Unsat     = "unsat"
	Errored   = "errored"
)

// Stashes partitions the states a Manager is tracking into named buckets.
// Invariant: across all steps, every state resides in exactly one stash at
// any observation point between steps — Move is the only sanctioned way to
// relocate a state, and it never duplicates one.
type Stashes map[string][]*vmstate.State

// NewStashes returns an empty Stashes with the six well-known buckets
// pre-created (so callers can range over them without nil checks).
func NewStashes() Stashes {
	return Stashes{
		Active:    nil,
		Deadended: nil,
		Found:     nil,
		Pruned:    nil,
		Unsat:     nil,
		Errored:   nil,
	}
}

// States returns the union of every stash, in no particular order.
func (s Stashes) States() []*vmstate.State {
	var all []*vmstate.State
	for _, bucket := range s {
		all = append(all, bucket...)
	}
	return all
}

// Move relocates every state in stashes[from] matching filter into
// stashes[to], iterating a snapshot of the source so a state moved in the
// same pass by a prior filter is not revisited. States failing filter stay
// in from, in their original relative order.
func (s Stashes) Move(from, to string, filter func(*vmstate.State) bool) {
	src := s[from]
	if len(src) == 0 {
		return
	}
	snapshot := make([]*vmstate.State, len(src))
	copy(snapshot, src)

	kept := src[:0]
	for _, st := range snapshot {
		if filter(st) {
			s[to] = append(s[to], st)
		} else {
			kept = append(kept, st)
		}
	}
	s[from] = kept
}
