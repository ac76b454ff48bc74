// Package techniques ships ready-to-use simgr.Technique implementations:
// Base, a no-op embeddable default, plus two concrete strategies covering
// the kind of bounded/targeted exploration a real symbolic execution front
// end needs: instruction-budget pruning and single-target completion.
package techniques

import (
	"github.com/ph4ge/greed-go/simgr"
	"github.com/ph4ge/greed-go/vmstate"
)

// Base is a no-op Technique meant to be embedded by concrete techniques
// that only care about overriding one or two hooks.
type Base struct{}

func (Base) Setup(m *simgr.Manager) {}

func (Base) CheckStashes(m *simgr.Manager, stashes simgr.Stashes) simgr.Stashes { return stashes }

func (Base) CheckState(m *simgr.Manager, s *vmstate.State) *vmstate.State { return s }

func (Base) CheckSuccessors(m *simgr.Manager, succs []*vmstate.State) []*vmstate.State {
	return succs
}

func (Base) IsComplete(m *simgr.Manager) bool { return true }

var _ simgr.Technique = Base{}
