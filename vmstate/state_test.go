package vmstate_test

import (
	"testing"

	"github.com/ph4ge/greed-go/project"
	"github.com/ph4ge/greed-go/smt"
	"github.com/ph4ge/greed-go/vmstate"
)

func newProj(t *testing.T, code []byte, blocks []project.Block) *project.Project {
	t.Helper()
	return project.NewProject(code, blocks)
}

func TestNewState_DefaultCalldataIsBounded(t *testing.T) {
	proj := newProj(t, nil, nil)
	s, err := vmstate.NewState(1, proj, nil, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if s.MaxCalldataSize != vmstate.DefaultMaxCalldataSize {
		t.Fatalf("MaxCalldataSize = %d, want %d", s.MaxCalldataSize, vmstate.DefaultMaxCalldataSize)
	}

	solver := s.Solver()
	solver.Push()
	solver.Add(smt.Equal(s.CalldataSize, smt.BVV(uint64(vmstate.DefaultMaxCalldataSize)+1000, smt.Width256)))
	overLimit := solver.IsSat()
	solver.Pop()
	if overLimit {
		t.Errorf("CALLDATASIZE beyond MaxCalldataSize should be unsat")
	}

	solver.Push()
	solver.Add(smt.Equal(s.CalldataSize, smt.BVV(10, smt.Width256)))
	underLimit := solver.IsSat()
	solver.Pop()
	if !underLimit {
		t.Errorf("CALLDATASIZE within MaxCalldataSize should stay sat")
	}
}

func TestNewState_ConcreteCalldataParsing(t *testing.T) {
	proj := newProj(t, nil, nil)
	initCtx := map[string]any{
		"CALLDATA":     "0a14",
		"CALLDATASIZE": 2,
	}
	s, err := vmstate.NewState(1, proj, initCtx, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	b0, ok := s.Calldata.Read(smt.BVV(0, smt.Width256)).AsConcrete()
	if !ok || b0.Uint64() != 0x0a {
		t.Fatalf("byte 0 = %v, want 0x0a", b0)
	}
	b1, ok := s.Calldata.Read(smt.BVV(1, smt.Width256)).AsConcrete()
	if !ok || b1.Uint64() != 0x14 {
		t.Fatalf("byte 1 = %v, want 0x14", b1)
	}

	solver := s.Solver()
	solver.Push()
	solver.Add(smt.Equal(s.CalldataSize, smt.BVV(3, smt.Width256)))
	if solver.IsSat() {
		t.Errorf("CALLDATASIZE contradicting the pinned value should be unsat")
	}
	solver.Pop()
}

func TestNewState_CalldataSymbolicByteToken(t *testing.T) {
	proj := newProj(t, nil, nil)
	initCtx := map[string]any{
		"CALLDATA": "SS",
	}
	s, err := vmstate.NewState(1, proj, initCtx, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	byte0 := s.Calldata.Read(smt.BVV(0, smt.Width256))
	if byte0.IsConcrete() {
		t.Fatalf("SS-token byte should be symbolic, got %v", byte0)
	}
	if byte0.Name() != "CALLDATA_BYTE_0" {
		t.Errorf("symbolic byte name = %q, want CALLDATA_BYTE_0", byte0.Name())
	}

	solver := s.Solver()
	solver.Push()
	solver.Add(smt.BV_UGE(s.CalldataSize, smt.BVV(1, smt.Width256)))
	if !solver.IsSat() {
		t.Errorf("CALLDATASIZE >= len(CALLDATA) should remain satisfiable")
	}
	solver.Pop()
}

func TestNewState_CodesizeAndBalance(t *testing.T) {
	proj := newProj(t, []byte{0x60, 0x80, 0x60, 0x40}, nil)
	initCtx := map[string]any{"BALANCE": 100, "CALLVALUE": 5}
	s, err := vmstate.NewState(7, proj, initCtx, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	codesize, ok := s.Ctx[vmstate.CtxCodesizeAddress].AsConcrete()
	if !ok || codesize.Uint64() != 4 {
		t.Fatalf("codesize = %v, want 4", codesize)
	}

	solver := s.Solver()
	solver.Push()
	solver.Add(smt.Equal(s.Balance, smt.BVV(105, smt.Width256)))
	if !solver.IsSat() {
		t.Errorf("StartBalance(100) + CALLVALUE(5) should satisfy Balance == 105")
	}
	solver.Pop()

	solver.Push()
	solver.Add(smt.Equal(s.Balance, smt.BVV(1, smt.Width256)))
	if solver.IsSat() {
		t.Errorf("Balance should be pinned by BALANCE+CALLVALUE, not free")
	}
	solver.Pop()
}

func TestState_CopyIsIndependent(t *testing.T) {
	proj := newProj(t, nil, nil)
	s, err := vmstate.NewState(1, proj, nil, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	s.Registers = map[string]*smt.BV{"X": smt.BVV(1, smt.Width256)}
	s.AddConstraint(smt.Equal(smt.BVV(1, smt.Width256), smt.BVV(1, smt.Width256)))
	baseConstraints := len(s.Constraints())

	clone := s.Copy()
	if clone.UUID == s.UUID {
		t.Fatalf("clone must have a fresh UUID")
	}

	clone.Registers["X"] = smt.BVV(2, smt.Width256)
	if v, _ := s.Registers["X"].AsConcrete(); v.Uint64() != 1 {
		t.Errorf("mutating the clone's register map leaked into the original")
	}

	clone.AddConstraint(smt.Equal(smt.BVV(2, smt.Width256), smt.BVV(2, smt.Width256)))
	if len(s.Constraints()) != baseConstraints {
		t.Errorf("adding a constraint to the clone leaked into the original (original=%d, want %d)",
			len(s.Constraints()), baseConstraints)
	}
	if len(clone.Constraints()) != baseConstraints+1 {
		t.Errorf("clone should carry the original's constraints plus its own, got %d, want %d",
			len(clone.Constraints()), baseConstraints+1)
	}
}

func TestState_FailSetsHaltAtomically(t *testing.T) {
	proj := newProj(t, nil, nil)
	s, err := vmstate.NewState(1, proj, nil, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	s.Fail(vmstate.ErrVMException, "boom")
	if !s.Halt {
		t.Errorf("Fail must set Halt")
	}
	if s.Error == nil || s.Error.Kind != vmstate.ErrVMException {
		t.Errorf("Fail must record the given error kind")
	}
}

func TestState_SetNextPCWithinBlock(t *testing.T) {
	s0 := project.NewSimpleStatement("0x0", "PUSH")
	s1 := project.NewSimpleStatement("0x1", "ADD")
	blk := project.NewSimpleBlock("0x0", s0, s1)
	proj := newProj(t, nil, []project.Block{blk})

	st, err := vmstate.NewState(1, proj, nil, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	st.PC = "0x0"
	st.SetNextPC()
	if st.PC != "0x1" {
		t.Errorf("PC = %q, want 0x1 (next statement in same block)", st.PC)
	}
}

func TestState_FallthroughAndNonFallthroughPC(t *testing.T) {
	entryStmt := project.NewSimpleStatementWithArgs("0x0", "JUMPI", "dest", "cond")
	entry := project.NewSimpleBlock("0x0", entryStmt)
	takenStmt := project.NewSimpleStatement("0x10", "JUMPDEST")
	taken := project.NewSimpleBlock("0x10", takenStmt)
	fallStmt := project.NewSimpleStatement("0x5", "JUMPDEST")
	fall := project.NewSimpleBlock("0x5", fallStmt)
	entry.AddSucc(taken)
	entry.AddSucc(fall)
	entry.SetFallthrough(fall)

	proj := newProj(t, nil, []project.Block{entry, taken, fall})
	st, err := vmstate.NewState(1, proj, nil, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	st.PC = "0x0"

	ft, err := st.FallthroughPC()
	if err != nil || ft != "0x5" {
		t.Fatalf("FallthroughPC = (%q, %v), want (0x5, nil)", ft, err)
	}

	nft, err := st.NonFallthroughPC(smt.BVV(0x10, smt.Width256))
	if err != nil || nft != "0x10" {
		t.Fatalf("NonFallthroughPC = (%q, %v), want (0x10, nil)", nft, err)
	}

	if _, err := st.NonFallthroughPC(smt.BVS("DEST_1", smt.Width256)); err != vmstate.ErrSymbolicJumpTarget {
		t.Errorf("symbolic destination should fail with ErrSymbolicJumpTarget, got %v", err)
	}
}

func TestState_Reset(t *testing.T) {
	proj := newProj(t, nil, nil)
	s, err := vmstate.NewState(1, proj, nil, vmstate.Config{}, nil)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	s.Registers["X"] = smt.BVV(1, smt.Width256)
	s.Storage.Write(smt.BVV(0, smt.Width256), smt.BVV(42, smt.Width256))
	s.Halt = true
	s.InstructionCount = 99

	prevUUID := s.UUID
	s.Reset(2)

	if s.UUID == prevUUID {
		t.Errorf("Reset should allocate a fresh UUID")
	}
	if s.XID != 2 {
		t.Errorf("XID = %d, want 2", s.XID)
	}
	if len(s.Registers) != 0 {
		t.Errorf("Reset should clear registers")
	}
	if s.Halt || s.InstructionCount != 0 {
		t.Errorf("Reset should clear Halt and InstructionCount")
	}

	v, ok := s.Storage.Read(smt.BVV(0, smt.Width256)).AsConcrete()
	if !ok || v.Uint64() != 42 {
		t.Errorf("Reset must not clear Storage (persists across transactions), got %v", v)
	}
}
