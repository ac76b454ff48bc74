package ops_test

import (
	"testing"

	"github.com/ph4ge/greed-go/ops"
	"github.com/ph4ge/greed-go/project"
	"github.com/ph4ge/greed-go/smt"
	"github.com/ph4ge/greed-go/vmstate"
)

// buildBranchProject wires a three-block CFG: an entry block ending in a
// branch statement, a "taken" target at 0x10, and a "fallthrough" target at
// 0x5, matching the shape every ops test needs.
func buildBranchProject(t *testing.T, entryOp string) (*project.Project, *project.SimpleBlock) {
	t.Helper()
	entryStmt := project.NewSimpleStatement("0x0", entryOp)
	entry := project.NewSimpleBlock("0x0", entryStmt)

	takenStmt := project.NewSimpleStatement("0x10", "JUMPDEST")
	taken := project.NewSimpleBlock("0x10", takenStmt)

	fallStmt := project.NewSimpleStatement("0x5", "JUMPDEST")
	fall := project.NewSimpleBlock("0x5", fallStmt)

	entry.AddSucc(taken)
	entry.AddSucc(fall)
	entry.SetFallthrough(fall)

	proj := project.NewProject(nil, []project.Block{entry, taken, fall})
	return proj, entry
}

func newTestState(t *testing.T, proj *project.Project, pc string) *vmstate.State {
	t.Helper()
	s, err := vmstate.NewState(1, proj, nil, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	s.PC = pc
	return s
}

func TestJump_ConcreteDestination(t *testing.T) {
	proj, _ := buildBranchProject(t, "JUMP")
	s := newTestState(t, proj, "0x0")

	out, err := ops.Jump(s, smt.BVV(0x10, smt.Width256))
	if err != nil {
		t.Fatalf("Jump: %v", err)
	}
	if len(out) != 1 || out[0] != s {
		t.Fatalf("expected the single input state mutated in place, got %d successors", len(out))
	}
	if s.PC != "0x10" {
		t.Errorf("PC = %q, want 0x10", s.PC)
	}
	if s.Halt {
		t.Errorf("state unexpectedly halted")
	}
}

func TestJump_SymbolicDestinationFails(t *testing.T) {
	proj, _ := buildBranchProject(t, "JUMP")
	s := newTestState(t, proj, "0x0")

	_, err := ops.Jump(s, smt.BVS("DEST_1", smt.Width256))
	if err == nil {
		t.Fatal("expected an error for a symbolic jump target")
	}
	if !s.Halt || s.Error == nil {
		t.Errorf("expected state to be failed, got halt=%v error=%v", s.Halt, s.Error)
	}
}

func TestJump_UnmatchedDestinationFails(t *testing.T) {
	proj, _ := buildBranchProject(t, "JUMP")
	s := newTestState(t, proj, "0x0")

	_, err := ops.Jump(s, smt.BVV(0x99, smt.Width256))
	if err == nil {
		t.Fatal("expected an error for an unmatched destination")
	}
	if !s.Halt || s.Error == nil {
		t.Errorf("expected state to be failed, got halt=%v error=%v", s.Halt, s.Error)
	}
}
