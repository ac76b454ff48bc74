package techniques

import (
	"github.com/ph4ge/greed-go/simgr"
	"github.com/ph4ge/greed-go/vmstate"
)

// Director is a single-target find helper: it supplies the FindFunc that
// recognizes TargetPC and reports IsComplete once a state matching it has
// actually landed in the manager's Found stash, letting a caller drive
// Manager.Run with find_all=false semantics purely through technique
// completion rather than inspecting stashes after every step.
type Director struct {
	Base
	TargetPC string
}

// NewDirector returns a Director targeting pc.
func NewDirector(pc string) *Director {
	return &Director{TargetPC: pc}
}

// Find returns the FindFunc callers should pass to Manager.Run so that only
// a state at TargetPC is moved into Found.
func (d *Director) Find() simgr.FindFunc {
	return func(s *vmstate.State) bool { return s.PC == d.TargetPC }
}

// IsComplete reports true once a state at TargetPC has been moved into the
// manager's Found stash.
func (d *Director) IsComplete(m *simgr.Manager) bool {
	for _, s := range m.Stashes[simgr.Found] {
		if s.PC == d.TargetPC {
			return true
		}
	}
	return false
}

var _ simgr.Technique = (*Director)(nil)
