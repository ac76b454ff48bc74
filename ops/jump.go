// Package ops implements the branch opcode handlers: JUMP and JUMPI. They
// are the only two TAC statements that touch CFG navigation directly,
// everything else advances via vmstate.State.SetNextPC.
package ops

import (
	"github.com/ph4ge/greed-go/smt"
	"github.com/ph4ge/greed-go/vmstate"
)

// Jump implements the unconditional JUMP opcode: destination must resolve
// to a concrete statement id that is a successor of the current block, or
// the state is failed with ErrSymbolicJumpTarget/ErrVMUnexpectedSuccessors.
// It always returns at most the single input state, wrapped in a slice so
// its signature matches Jumpi's (simgr.Manager dispatches both uniformly).
func Jump(s *vmstate.State, destination *smt.BV) ([]*vmstate.State, error) {
	pc, err := s.NonFallthroughPC(destination)
	if err != nil {
		s.Fail(err, "JUMP: resolving destination")
		return nil, err
	}
	s.PC = pc
	return []*vmstate.State{s}, nil
}
