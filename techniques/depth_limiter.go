package techniques

import (
	"github.com/ph4ge/greed-go/simgr"
	"github.com/ph4ge/greed-go/vmstate"
)

// DepthLimiter prunes any successor whose InstructionCount has exceeded a
// configured bound, preventing unbounded loop unrolling from starving the
// active stash. It only overrides CheckSuccessors; every other hook is
// Base's no-op.
type DepthLimiter struct {
	Base
	MaxInstructions uint64
}

// NewDepthLimiter returns a DepthLimiter that prunes any state whose
// InstructionCount exceeds max.
func NewDepthLimiter(max uint64) *DepthLimiter {
	return &DepthLimiter{MaxInstructions: max}
}

// CheckSuccessors removes over-budget states from the batch re-entering
// active and files them directly into m's Pruned stash, disposing their
// solver context immediately (the same disposal policy Manager.Step
// applies to its own prune predicate).
func (d *DepthLimiter) CheckSuccessors(m *simgr.Manager, succs []*vmstate.State) []*vmstate.State {
	kept := succs[:0]
	for _, s := range succs {
		if s.InstructionCount > d.MaxInstructions {
			if solver := s.Solver(); solver != nil {
				solver.DisposeContext()
			}
			m.Stashes[simgr.Pruned] = append(m.Stashes[simgr.Pruned], s)
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

var _ simgr.Technique = (*DepthLimiter)(nil)
