package ops

import (
	"github.com/ph4ge/greed-go/smt"
	"github.com/ph4ge/greed-go/vmstate"
)

// Jumpi implements the conditional JUMPI opcode — the one routine in this
// engine where a single input state legitimately produces two live output
// states. condition is treated as "taken" whenever it is nonzero: a
// concrete non-bool condition is nonzero-is-taken, matching how TAC lowers
// a Solidity `if` into a 256-bit comparison result.
//
// Both branches are probed against the current path constraints before
// anything is mutated: a branch only survives if Push/Add(constraint)/Check
// reports something other than Unsat (Unknown is treated as feasible, never
// silently dropped). If neither survives the path ends: no successors and
// no error are returned; if exactly one does, s is mutated in place and
// returned alone (no clone is allocated on the common single-successor
// path); if both survive, a clone carries the taken branch and s itself
// becomes the not-taken branch.
func Jumpi(s *vmstate.State, destination, condition *smt.BV) ([]*vmstate.State, error) {
	zero := smt.BVV(0, condition.Width())

	if v, ok := condition.AsConcrete(); ok {
		if !v.IsZero() {
			return finalizeTaken(s, destination, nil)
		}
		return finalizeNotTaken(s, nil)
	}

	takenCond := smt.Not(smt.Equal(condition, zero))
	notTakenCond := smt.Equal(condition, zero)

	takenFeasible := probe(s, takenCond)
	notTakenFeasible := probe(s, notTakenCond)

	switch {
	case !takenFeasible && !notTakenFeasible:
		return nil, nil
	case takenFeasible && !notTakenFeasible:
		return finalizeTaken(s, destination, takenCond)
	case !takenFeasible && notTakenFeasible:
		return finalizeNotTaken(s, notTakenCond)
	default:
		takenState := s.Copy()
		notTakenState := s
		var out []*vmstate.State
		taken, _ := finalizeTaken(takenState, destination, takenCond)
		out = append(out, taken...)
		notTaken, _ := finalizeNotTaken(notTakenState, notTakenCond)
		out = append(out, notTaken...)
		return out, nil
	}
}

// finalizeTaken resolves the taken branch's destination and, on success,
// applies its constraint and advances pc. A destination-resolution failure
// fails s outright (there is no fallback pc for the taken branch) and is
// still returned as s's own successor so the caller can re-bin it into
// Errored instead of losing it.
func finalizeTaken(s *vmstate.State, destination *smt.BV, constraint *smt.Bool) ([]*vmstate.State, error) {
	pc, err := s.NonFallthroughPC(destination)
	if err != nil {
		s.Fail(err, "JUMPI: resolving taken destination")
		return []*vmstate.State{s}, err
	}
	if constraint != nil {
		s.AddConstraint(constraint)
	}
	s.PC = pc
	return []*vmstate.State{s}, nil
}

// finalizeNotTaken resolves the fallthrough pc. A missing or ambiguous
// fallthrough edge is not an execution error — it mirrors SetNextPC's own
// policy of halting without setting Error — so this only ever returns s as
// a live, non-error successor.
func finalizeNotTaken(s *vmstate.State, constraint *smt.Bool) ([]*vmstate.State, error) {
	pc, err := s.FallthroughPC()
	if err != nil {
		s.Halt = true
		return []*vmstate.State{s}, nil
	}
	if constraint != nil {
		s.AddConstraint(constraint)
	}
	s.PC = pc
	return []*vmstate.State{s}, nil
}

// probe checks whether c is consistent with s's current path constraints
// without mutating them.
func probe(s *vmstate.State, c *smt.Bool) bool {
	solver := s.Solver()
	solver.Push()
	solver.Add(c)
	sat := solver.IsSat()
	solver.Pop()
	return sat
}
