package smt

import "testing"

func TestToySolverFreshSymbolFork(t *testing.T) {
	s := NewToySolver()
	x := BVS("X_1", Width256)

	s.Push()
	s.Add(Equal(x, BVV(1, Width256)))
	trueFeasible := s.IsSat()
	s.Pop()

	s.Push()
	s.Add(Equal(x, BVV(0, Width256)))
	falseFeasible := s.IsSat()
	s.Pop()

	if !trueFeasible || !falseFeasible {
		t.Fatalf("fresh symbolic bit should be feasible both ways: true=%v false=%v", trueFeasible, falseFeasible)
	}
}

func TestToySolverPrunedByPriorConstraint(t *testing.T) {
	s := NewToySolver()
	x := BVS("X_1", Width256)
	s.Add(Not(Equal(x, BVV(0, Width256)))) // X != 0

	s.Push()
	s.Add(Equal(x, BVV(1, Width256)))
	trueFeasible := s.IsSat()
	s.Pop()

	s.Push()
	s.Add(Equal(x, BVV(0, Width256)))
	falseFeasible := s.IsSat()
	s.Pop()

	if !trueFeasible {
		t.Fatalf("X==1 should remain feasible under X!=0")
	}
	if falseFeasible {
		t.Fatalf("X==0 should be infeasible under X!=0")
	}
}

func TestToySolverPushPopRestoresParent(t *testing.T) {
	s := NewToySolver()
	x := BVS("X_1", Width256)
	s.Add(Equal(x, BVV(5, Width256)))
	before := len(s.Constraints())

	s.Push()
	s.Add(Equal(x, BVV(6, Width256))) // contradicts X==5, but scoped
	if s.IsSat() {
		t.Fatalf("X==5 AND X==6 should be unsat")
	}
	s.Pop()

	after := len(s.Constraints())
	if before != after {
		t.Fatalf("parent constraint set changed across push/pop: before=%d after=%d", before, after)
	}
	if !s.IsSat() {
		t.Fatalf("parent scope should remain sat after pop")
	}
}

func TestToySolverCloneIndependence(t *testing.T) {
	s := NewToySolver()
	x := BVS("X_1", Width256)
	s.Add(Equal(x, BVV(1, Width256)))

	clone := s.Clone()
	clone.Add(Equal(BVS("Y_1", Width256), BVV(2, Width256)))

	if len(s.Constraints()) == len(clone.Constraints()) {
		t.Fatalf("mutating clone should not affect parent: parent=%d clone=%d", len(s.Constraints()), len(clone.Constraints()))
	}
}
