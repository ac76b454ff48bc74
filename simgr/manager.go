// Package simgr implements the simulation manager: the cooperative loop
// that pops states from the active stash, dispatches each to its
// statement's opcode handler, collects and re-bins successors, and gives
// registered exploration techniques a chance to observe or rewrite the
// frontier at each of five hook points.
package simgr

import (
	"fmt"

	"github.com/ph4ge/greed-go/log"
	"github.com/ph4ge/greed-go/ops"
	"github.com/ph4ge/greed-go/project"
	"github.com/ph4ge/greed-go/vmstate"
)

var logger = log.Module("simgr")

// FindFunc reports whether s should be moved to the Found stash.
type FindFunc func(*vmstate.State) bool

// PruneFunc reports whether s should be moved to the Pruned stash.
type PruneFunc func(*vmstate.State) bool

// Config holds Manager's valued construction options, following the
// struct-of-knobs pattern used for engine configuration throughout this
// codebase.
type Config struct {
	// LazySolves, when true, skips the per-step sat sweep of the active
	// stash (only Found is still checked, since a false positive there
	// would otherwise leak an unsat result to the caller).
	LazySolves bool
}

// Manager owns a set of stashes and drives them to completion.
type Manager struct {
	Stashes    Stashes
	Config     Config
	StepCount  uint64
	techniques []Technique
	stopped    bool
}

// NewManager returns a Manager with a single initial state in the active
// stash.
func NewManager(initial *vmstate.State, cfg Config) *Manager {
	m := &Manager{Stashes: NewStashes(), Config: cfg}
	if initial != nil {
		m.Stashes[Active] = []*vmstate.State{initial}
	}
	return m
}

// RegisterTechnique appends t to the technique pipeline and calls its
// one-shot Setup hook immediately.
func (m *Manager) RegisterTechnique(t Technique) {
	m.techniques = append(m.techniques, t)
	t.Setup(m)
}

// RequestHalt asks Run to stop at the top of its next iteration, regardless
// of stash contents or technique completion.
func (m *Manager) RequestHalt() { m.stopped = true }

// Step performs one global step: a technique pre-pass over the stashes, a
// lock-step advance of every currently active state, then re-binning into
// found/errored/deadended/pruned/unsat.
func (m *Manager) Step(find FindFunc, prune PruneFunc) {
	for _, t := range m.techniques {
		m.Stashes = t.CheckStashes(m, m.Stashes)
	}

	current := m.Stashes[Active]
	next := make([]*vmstate.State, 0, len(current))
	for _, st := range current {
		for _, t := range m.techniques {
			st = t.CheckState(m, st)
		}
		succs := m.singleStepState(st)
		for _, t := range m.techniques {
			succs = t.CheckSuccessors(m, succs)
		}
		next = append(next, succs...)
	}
	m.Stashes[Active] = next
	m.StepCount++

	if find != nil {
		m.Stashes.Move(Active, Found, find)
	}
	m.moveAndDispose(Active, Errored, func(s *vmstate.State) bool { return s.Error != nil })
	m.Stashes.Move(Active, Deadended, func(s *vmstate.State) bool { return s.Halt })
	if prune != nil {
		m.moveAndDispose(Active, Pruned, prune)
	}

	if !m.Config.LazySolves {
		m.moveAndDispose(Active, Unsat, unsat)
	}
	m.moveAndDispose(Found, Unsat, unsat)
}

func unsat(s *vmstate.State) bool {
	solver := s.Solver()
	return solver == nil || !solver.IsSat()
}

// moveAndDispose moves matching states from->to, then disposes the solver
// context of exactly the states that were just moved, so a pruned/unsat/
// errored path's constraint store doesn't outlive it.
func (m *Manager) moveAndDispose(from, to string, filter func(*vmstate.State) bool) {
	before := len(m.Stashes[to])
	m.Stashes.Move(from, to, filter)
	for _, st := range m.Stashes[to][before:] {
		if solver := st.Solver(); solver != nil {
			solver.DisposeContext()
		}
	}
}

// singleStepState advances one state by exactly one TAC statement. A
// halted state is inert and returns nil: it never re-enters active.
func (m *Manager) singleStepState(s *vmstate.State) []*vmstate.State {
	if s.Halt {
		return nil
	}

	stmt := s.CurrentStatement()
	if stmt == nil {
		s.Halt = true
		return nil
	}

	m.fireBreakpoints(s, stmt)

	s.InstructionCount++

	successors, err := m.dispatchRecoverably(s, stmt)
	if err != nil {
		return []*vmstate.State{s}
	}
	return successors
}

func (m *Manager) fireBreakpoints(s *vmstate.State, stmt project.Statement) {
	insp := s.Inspect()
	if insp == nil {
		return
	}
	if fn, ok := insp.BreakpointsByPC[s.PC]; ok {
		fn(m, s)
	}
	if fn, ok := insp.BreakpointsByOpcode[stmt.InternalName()]; ok {
		fn(m, s)
	}
}

// dispatchRecoverably calls dispatch, converting any panic into an
// ErrVMException-tagged failure on s rather than propagating it.
func (m *Manager) dispatchRecoverably(s *vmstate.State, stmt project.Statement) (succs []*vmstate.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "pc", s.PC, "opcode", stmt.InternalName(), "recovered", r)
			s.Fail(vmstate.ErrVMException, fmt.Sprintf("recovered: %v", r))
			succs, err = []*vmstate.State{s}, vmstate.ErrVMException
		}
	}()
	return m.dispatch(s, stmt)
}

// dispatch resolves a statement's operand registers and calls the matching
// opcode handler. Every opcode other than JUMP/JUMPI is out of this
// engine's scope (only branch handling is modeled) and simply advances pc.
func (m *Manager) dispatch(s *vmstate.State, stmt project.Statement) ([]*vmstate.State, error) {
	switch stmt.InternalName() {
	case "JUMP":
		args := stmt.Args()
		if len(args) < 1 {
			s.Fail(vmstate.ErrVMException, "JUMP: missing destination operand")
			return nil, vmstate.ErrVMException
		}
		dest, ok := s.Registers[args[0]]
		if !ok {
			s.Fail(vmstate.ErrVMException, "JUMP: unbound register "+args[0])
			return nil, vmstate.ErrVMException
		}
		return ops.Jump(s, dest)

	case "JUMPI":
		args := stmt.Args()
		if len(args) < 2 {
			s.Fail(vmstate.ErrVMException, "JUMPI: missing operand(s)")
			return nil, vmstate.ErrVMException
		}
		dest, ok1 := s.Registers[args[0]]
		cond, ok2 := s.Registers[args[1]]
		if !ok1 || !ok2 {
			s.Fail(vmstate.ErrVMException, "JUMPI: unbound register(s)")
			return nil, vmstate.ErrVMException
		}
		return ops.Jumpi(s, dest, cond)

	default:
		s.SetNextPC()
		return []*vmstate.State{s}, nil
	}
}

// Run drives Step until the active stash is empty and every technique
// agrees exploration is complete, or Found is non-empty and findAll is
// false, or RequestHalt was called.
func (m *Manager) Run(find FindFunc, prune PruneFunc, findAll bool) {
	for {
		if m.stopped {
			return
		}
		if len(m.Stashes[Found]) > 0 && !findAll {
			return
		}
		if len(m.Stashes[Active]) == 0 && m.allTechniquesComplete() {
			return
		}
		m.Step(find, prune)
	}
}

func (m *Manager) allTechniquesComplete() bool {
	if len(m.techniques) == 0 {
		return true
	}
	for _, t := range m.techniques {
		if !t.IsComplete(m) {
			return false
		}
	}
	return true
}
