package smt

import (
	"fmt"

	"github.com/holiman/uint256"
)

// CheckResult is the outcome of a solver feasibility check.
type CheckResult int

const (
	Sat CheckResult = iota
	Unsat
	Unknown
)

func (r CheckResult) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Model is a satisfying assignment returned by Solver.Model. Eval returns
// the concrete value assigned to a term, completing any variable that was
// not actually constrained with the zero value (model completion).
type Model interface {
	Eval(term *BV) *uint256.Int
}

// Solver is the scoped constraint store consumed by vmstate.State and the
// branch handler. It is the engine's one black-box external collaborator:
// Push/Pop/Add/Check/Model form the QF_ABV contract a real SMT backend
// would implement. ToySolver below is a reference implementation
// sufficient to run the engine standalone and to satisfy the documented
// branch-feasibility scenarios; it is not a general decision procedure.
type Solver interface {
	// Push opens a new assertion scope.
	Push()
	// Pop discards every assertion added since the matching Push.
	Pop()
	// Add asserts a path constraint in the current scope.
	Add(c *Bool)
	// AddPathConstraints is an alias for Add used by callers that think in
	// terms of "the path condition" rather than "a single constraint".
	AddPathConstraints(c *Bool)
	// Check decides satisfiability of the conjunction of all constraints
	// currently in scope.
	Check() CheckResult
	// IsSat reports whether Check() returns Sat or Unknown. Unknown is
	// treated the same as Sat for safety: callers must never silently drop a branch because
	// the solver could not decide it.
	IsSat() bool
	// Model returns a satisfying assignment. Only valid after a Check()
	// that returned Sat (or Unknown, best-effort).
	Model() Model
	// Constraints returns the flattened list of constraints asserted in
	// every currently-open scope, outermost first.
	Constraints() []*Bool
	// DisposeContext releases any resources held by the solver. Called by
	// the simulation manager when a state is moved to pruned/unsat/errored.
	DisposeContext()
}

// ToySolver is a reference Solver. It keeps an explicit assertion log and
// copies it into a fresh scope stack on Clone, since real SMT contexts
// rarely clone cheaply; satisfiability is decided with a
// constant-folding-plus-equality-binding pass: concrete contradictions and
// direct variable/constant binding conflicts are caught; anything requiring
// deeper reasoning is reported Sat (optimistic, never a false Unsat).
type ToySolver struct {
	scopes   [][]*Bool // scopes[0] is the base scope; never popped
	disposed bool
}

// NewToySolver returns an empty ToySolver with one base scope.
func NewToySolver() *ToySolver {
	return &ToySolver{scopes: [][]*Bool{{}}}
}

func (s *ToySolver) Push() {
	s.scopes = append(s.scopes, nil)
}

func (s *ToySolver) Pop() {
	if len(s.scopes) <= 1 {
		panic("smt: Pop without matching Push")
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *ToySolver) Add(c *Bool) {
	top := len(s.scopes) - 1
	s.scopes[top] = append(s.scopes[top], c)
}

func (s *ToySolver) AddPathConstraints(c *Bool) { s.Add(c) }

func (s *ToySolver) Constraints() []*Bool {
	var all []*Bool
	for _, scope := range s.scopes {
		all = append(all, scope...)
	}
	return all
}

// bindings accumulates "var == concrete" facts discoverable without
// contradiction. Returns false if two different constants are bound to the
// same variable (a structural contradiction independent of fixpoint
// folding).
func bindings(constraints []*Bool) (map[string]*uint256.Int, bool) {
	bound := make(map[string]*uint256.Int)
	for _, c := range constraints {
		name, val, neg, ok := asVarEquality(c)
		if !ok || neg {
			continue
		}
		if existing, has := bound[name]; has {
			if !existing.Eq(val) {
				return nil, false
			}
			continue
		}
		bound[name] = val
	}
	return bound, true
}

// asVarEquality recognizes c (or !c) as "<var> == <const>" / "<const> ==
// <var>", returning the variable name, the constant, whether c was negated,
// and whether the pattern matched at all.
func asVarEquality(c *Bool) (name string, val *uint256.Int, negated bool, ok bool) {
	if c.op == boolNot {
		name, val, _, ok = asVarEquality(c.boolArgs[0])
		return name, val, true, ok
	}
	if c.op != boolEqual {
		return "", nil, false, false
	}
	a, b := c.bvArgs[0], c.bvArgs[1]
	if n := a.Name(); n != "" && b.concrete != nil {
		return n, b.concrete, false, true
	}
	if n := b.Name(); n != "" && a.concrete != nil {
		return n, a.concrete, false, true
	}
	return "", nil, false, false
}

// fold attempts to reduce c to a concrete truth value given a binding
// environment, without mutating c.
func fold(c *Bool, bound map[string]*uint256.Int) (bool, bool) {
	if c.concrete != nil {
		return *c.concrete, true
	}
	switch c.op {
	case boolNot:
		if v, ok := fold(c.boolArgs[0], bound); ok {
			return !v, true
		}
		return false, false
	case boolAnd:
		allTrue := true
		for _, sub := range c.boolArgs {
			v, ok := fold(sub, bound)
			if ok && !v {
				return false, true
			}
			if !ok {
				allTrue = false
			}
		}
		if allTrue {
			return true, true
		}
		return false, false
	case boolEqual:
		av, aok := foldBV(c.bvArgs[0], bound)
		bv, bok := foldBV(c.bvArgs[1], bound)
		if aok && bok {
			return av.Eq(bv), true
		}
		return false, false
	case boolULT:
		av, aok := foldBV(c.bvArgs[0], bound)
		bv, bok := foldBV(c.bvArgs[1], bound)
		if aok && bok {
			return av.Lt(bv), true
		}
		return false, false
	case boolUGE:
		av, aok := foldBV(c.bvArgs[0], bound)
		bv, bok := foldBV(c.bvArgs[1], bound)
		if aok && bok {
			return !av.Lt(bv), true
		}
		return false, false
	default:
		return false, false
	}
}

func foldBV(b *BV, bound map[string]*uint256.Int) (*uint256.Int, bool) {
	if b.concrete != nil {
		return b.concrete, true
	}
	if b.op == opVar {
		if v, ok := bound[b.name]; ok {
			return v, true
		}
		return nil, false
	}
	if len(b.args) == 2 {
		av, aok := foldBV(b.args[0], bound)
		bv, bok := foldBV(b.args[1], bound)
		if aok && bok {
			switch b.op {
			case opAdd:
				return new(uint256.Int).Add(av, bv), true
			case opSub:
				return new(uint256.Int).Sub(av, bv), true
			}
		}
	}
	return nil, false
}

func (s *ToySolver) Check() CheckResult {
	if s.disposed {
		return Unsat
	}
	all := s.Constraints()
	bound, consistent := bindings(all)
	if !consistent {
		return Unsat
	}
	for _, c := range all {
		if v, ok := fold(c, bound); ok && !v {
			return Unsat
		}
	}
	return Sat
}

func (s *ToySolver) IsSat() bool {
	r := s.Check()
	return r == Sat || r == Unknown
}

func (s *ToySolver) Model() Model {
	bound, _ := bindings(s.Constraints())
	return toyModel{bound: bound}
}

func (s *ToySolver) DisposeContext() {
	s.scopes = nil
	s.disposed = true
}

// Clone returns an independent ToySolver replaying the same assertion log,
// used by vmstate.State.Copy.
func (s *ToySolver) Clone() *ToySolver {
	clone := &ToySolver{scopes: make([][]*Bool, len(s.scopes))}
	for i, scope := range s.scopes {
		clone.scopes[i] = append([]*Bool(nil), scope...)
	}
	return clone
}

type toyModel struct {
	bound map[string]*uint256.Int
}

func (m toyModel) Eval(term *BV) *uint256.Int {
	if term.concrete != nil {
		return new(uint256.Int).Set(term.concrete)
	}
	if term.op == opVar {
		if v, ok := m.bound[term.name]; ok {
			return new(uint256.Int).Set(v)
		}
		return new(uint256.Int)
	}
	if len(term.args) == 2 {
		a := m.Eval(term.args[0])
		b := m.Eval(term.args[1])
		switch term.op {
		case opAdd:
			return new(uint256.Int).Add(a, b)
		case opSub:
			return new(uint256.Int).Sub(a, b)
		}
	}
	return new(uint256.Int)
}

var _ fmt.Stringer = CheckResult(0)
