// Package vmstate implements the per-path symbolic machine state: the
// snapshot cloned at every fork, its plugin slots, its CALLDATA/context
// seeding, and the CFG-navigation helpers the branch handler relies on.
package vmstate

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/ph4ge/greed-go/log"
	"github.com/ph4ge/greed-go/memory"
	"github.com/ph4ge/greed-go/project"
	"github.com/ph4ge/greed-go/smt"
)

var logger = log.Module("vmstate")

// Well-known Ctx keys.
const (
	CtxCaller          = "CALLER"
	CtxOrigin          = "ORIGIN"
	CtxAddress         = "ADDRESS"
	CtxNumber          = "NUMBER"
	CtxDifficulty      = "DIFFICULTY"
	CtxTimestamp       = "TIMESTAMP"
	CtxCallvalue       = "CALLVALUE"
	CtxCodesizeAddress = "CODESIZE-ADDRESS"
)

// HaltedPC is the sentinel pc value meaning "past the last statement".
const HaltedPC = "<halted>"

// DefaultMaxCalldataSize bounds symbolic CALLDATA length when neither the
// init context nor Config override it.
const DefaultMaxCalldataSize = 4096

// OptionTag names a boolean engine option. Options is a set of tags, not a
// list: membership is the only operation any caller needs, and a set makes
// Copy a trivial map clone with no accidental duplicate-tag bugs.
type OptionTag int

const (
	// OptStateInspect installs the inspect plugin on new states.
	OptStateInspect OptionTag = iota
	// OptStateStopAtAddConstraint logs every AddConstraint call at debug
	// level (a non-interactive stand-in for the reference tool's debugger
	// breakpoint of the same name).
	OptStateStopAtAddConstraint
)

// Options is a set of enabled OptionTags.
type Options map[OptionTag]bool

// Has reports whether tag is enabled.
func (o Options) Has(tag OptionTag) bool { return o[tag] }

// Copy returns an independent copy of the option set.
func (o Options) Copy() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Config holds the few valued (non-boolean) construction options.
type Config struct {
	// MaxCalldataSize bounds symbolic CALLDATA length. Zero means
	// DefaultMaxCalldataSize.
	MaxCalldataSize int
	// PartialConcreteStorageSnapshot, if non-nil, selects partial-concrete
	// storage seeded with this snapshot instead of fully symbolic storage.
	PartialConcreteStorageSnapshot map[string]*smt.BV
}

var uuidCounter uint64

func nextUUID() uint64 { return atomic.AddUint64(&uuidCounter, 1) }

// State is the per-path symbolic machine snapshot.
type State struct {
	XID     int
	UUID    uint64
	Project *project.Project

	PC    string
	Trace []string

	Memory  *memory.Lambda
	Storage memory.Storage

	Registers map[string]*smt.BV
	Ctx       map[string]*smt.BV

	Callstack  *FrameStack
	Returndata ReturnData

	InstructionCount uint64
	Halt             bool
	Revert           bool
	Error            *ExecError

	Gas          *smt.BV
	StartBalance *smt.BV
	Balance      *smt.BV

	Calldata        *memory.Lambda
	CalldataSize    *smt.BV
	MaxCalldataSize int

	ShaObserved []ShaObservation

	MinTimestamp int64
	MaxTimestamp int64

	ActivePlugins map[string]Plugin
	Options       Options

	shaCounter int
}

// NewState builds a fresh state: registers, symbolic gas/balance, context,
// storage, and memory, all seeded from initCtx.
func NewState(xid int, proj *project.Project, initCtx map[string]any, cfg Config, opts Options) (*State, error) {
	s := &State{
		XID:       xid,
		UUID:      nextUUID(),
		Project:   proj,
		Registers: make(map[string]*smt.BV),
		Ctx:       make(map[string]*smt.BV),
		Callstack: NewFrameStack(),
		Options:   opts.Copy(),
	}
	s.registerDefaultPlugins()

	s.MaxCalldataSize = cfg.MaxCalldataSize
	if s.MaxCalldataSize == 0 {
		s.MaxCalldataSize = DefaultMaxCalldataSize
	}

	s.MinTimestamp = minTimestampDefault
	s.MaxTimestamp = time.Now().Unix()

	s.Gas = smt.BVS(fmt.Sprintf("GAS_%d", xid), smt.Width256)
	s.StartBalance = smt.BVS(fmt.Sprintf("BALANCE_%d", xid), smt.Width256)

	if err := s.applyInitCtx(initCtx); err != nil {
		return nil, err
	}

	s.Ctx[CtxCodesizeAddress] = smt.BVV(uint64(len(proj.Code)), smt.Width256)
	s.Balance = smt.BV_Add(s.StartBalance, ctxOrSymbolic(CtxCallvalue, s.Ctx, xid))

	if _, given := s.Ctx[CtxTimestamp]; !given {
		ts := ctxOrSymbolic(CtxTimestamp, s.Ctx, xid)
		s.Ctx[CtxTimestamp] = ts
		s.AddConstraint(smt.BV_UGE(ts, smt.BVV(uint64(s.MinTimestamp), smt.Width256)))
		s.AddConstraint(smt.Not(smt.BV_ULT(smt.BVV(uint64(s.MaxTimestamp), smt.Width256), ts)))
	}

	if cfg.PartialConcreteStorageSnapshot != nil {
		snapshot := make(map[string]*smt.BV, len(cfg.PartialConcreteStorageSnapshot))
		for k, v := range cfg.PartialConcreteStorageSnapshot {
			snapshot[k] = v
		}
		s.Storage = memory.NewPartialConcreteStorage(fmt.Sprintf("PCONCR_STORAGE_%d", xid), snapshot)
	} else {
		s.Storage = memory.NewFullySymbolicStorage(fmt.Sprintf("STORAGE_%d", xid))
	}

	s.Memory = memory.NewLambda(fmt.Sprintf("MEMORY_%d", xid), smt.Width8, smt.BVV(0, smt.Width8))

	return s, nil
}

// minTimestampDefault fences TIMESTAMP to "the foreseeable future", mirroring
// the reference tool's 2022-01-01 floor.
var minTimestampDefault = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

func ctxOrSymbolic(key string, ctx map[string]*smt.BV, xid int) *smt.BV {
	if v, ok := ctx[key]; ok {
		return v
	}
	return smt.BVS(fmt.Sprintf("%s_%d", key, xid), smt.Width256)
}

func (s *State) registerDefaultPlugins() {
	s.ActivePlugins = make(map[string]Plugin)
	s.RegisterPlugin("solver", NewSolverPlugin(smt.NewToySolver()))
	s.RegisterPlugin("globals", NewGlobalsPlugin())
	if s.Options.Has(OptStateInspect) {
		s.RegisterPlugin("inspect", NewInspectPlugin())
	}
}

// RegisterPlugin installs p under name, binding its back-reference to s.
func (s *State) RegisterPlugin(name string, p Plugin) Plugin {
	if s.ActivePlugins == nil {
		s.ActivePlugins = make(map[string]Plugin)
	}
	s.ActivePlugins[name] = p
	p.SetState(s)
	return p
}

// Solver returns the state's constraint store.
func (s *State) Solver() smt.Solver {
	if p, ok := s.ActivePlugins["solver"].(*SolverPlugin); ok {
		return p.Solver
	}
	return nil
}

// Globals returns the state's scratch-space plugin.
func (s *State) Globals() *GlobalsPlugin {
	p, _ := s.ActivePlugins["globals"].(*GlobalsPlugin)
	return p
}

// Inspect returns the breakpoint plugin, or nil if OptStateInspect was not
// set at construction.
func (s *State) Inspect() *InspectPlugin {
	p, _ := s.ActivePlugins["inspect"].(*InspectPlugin)
	return p
}

// Constraints returns the solver's full current assertion list.
func (s *State) Constraints() []*smt.Bool { return s.Solver().Constraints() }

// AddConstraint asserts c as a path constraint on this state's solver.
func (s *State) AddConstraint(c *smt.Bool) {
	if s.Options.Has(OptStateStopAtAddConstraint) {
		logger.Debug("adding constraint", "pc", s.PC, "xid", s.XID, "constraint", c.String())
	}
	s.Solver().AddPathConstraints(c)
}

// Fail records kind as this state's terminal error. Setting Error always
// implies Halt; this is the only place Error is assigned so that invariant
// cannot be violated accidentally.
func (s *State) Fail(kind error, detail string) {
	s.Error = NewExecError(kind, s, detail)
	s.Halt = true
}

// CurrentStatement resolves PC through the project, or nil if PC is unset
// or HaltedPC.
func (s *State) CurrentStatement() project.Statement {
	if s.PC == "" || s.PC == HaltedPC {
		return nil
	}
	return s.Project.Statement(s.PC)
}

// Copy produces an independent clone: fresh UUID, copy-on-write
// memory/storage/calldata, deep-cloned plugins with rebound back
// references.
func (s *State) Copy() *State {
	ns := &State{
		XID:              s.XID,
		UUID:             nextUUID(),
		Project:          s.Project,
		PC:               s.PC,
		Trace:            append([]string(nil), s.Trace...),
		Registers:        make(map[string]*smt.BV, len(s.Registers)),
		Ctx:              make(map[string]*smt.BV, len(s.Ctx)),
		Callstack:        FrameStackFromSlice(s.Callstack.Slice()),
		Returndata:       s.Returndata,
		InstructionCount: s.InstructionCount,
		Halt:             s.Halt,
		Revert:           s.Revert,
		Error:            s.Error,
		Gas:              s.Gas,
		StartBalance:     s.StartBalance,
		Balance:          s.Balance,
		MinTimestamp:     s.MinTimestamp,
		MaxTimestamp:     s.MaxTimestamp,
		MaxCalldataSize:  s.MaxCalldataSize,
		CalldataSize:     s.CalldataSize,
		Options:          s.Options.Copy(),
		shaCounter:       s.shaCounter,
	}
	for k, v := range s.Registers {
		ns.Registers[k] = v
	}
	for k, v := range s.Ctx {
		ns.Ctx[k] = v
	}

	ns.Memory = s.Memory.Copy()
	ns.Storage = s.Storage.Copy()
	ns.Calldata = s.Calldata.Copy()

	ns.ShaObserved = make([]ShaObservation, len(s.ShaObserved))
	for i, sha := range s.ShaObserved {
		ns.ShaObserved[i] = sha.Copy(ns)
	}

	ns.ActivePlugins = make(map[string]Plugin, len(s.ActivePlugins))
	for name, p := range s.ActivePlugins {
		np := p.Copy()
		np.SetState(ns)
		ns.ActivePlugins[name] = np
	}

	return ns
}

// Reset reinitializes the state in place for the next transaction of the
// same analysis, keeping Project but allocating a fresh xid, uuid, memory,
// registers, and plugin set.
func (s *State) Reset(xid int) *State {
	s.XID = xid
	s.UUID = nextUUID()
	s.registerDefaultPlugins()

	s.PC = ""
	s.Trace = nil
	s.Memory = memory.NewLambda(fmt.Sprintf("MEMORY_%d", xid), smt.Width8, smt.BVV(0, smt.Width8))
	s.Registers = make(map[string]*smt.BV)
	s.Ctx = make(map[string]*smt.BV)

	s.Callstack = NewFrameStack()
	s.Returndata = ReturnData{}
	s.InstructionCount = 0
	s.Halt = false
	s.Revert = false
	s.Error = nil

	s.Gas = smt.BVS(fmt.Sprintf("GAS_%d", xid), smt.Width256)
	s.StartBalance = smt.BVS(fmt.Sprintf("BALANCE_%d", xid), smt.Width256)
	s.Balance = smt.BV_Add(s.StartBalance, ctxOrSymbolic(CtxCallvalue, s.Ctx, xid))
	s.Ctx[CtxCodesizeAddress] = smt.BVV(uint64(len(s.Project.Code)), smt.Width256)
	s.ShaObserved = nil

	s.Calldata = nil
	s.CalldataSize = nil

	return s
}

// --- CFG navigation ---

// SetNextPC advances PC to the next statement in the current block, or to
// the fallthrough successor if the current statement ends its block. A
// block with no successors halts the state rather than erroring
// (ErrVMNoSuccessors/ErrVMUnexpectedSuccessors at this call site do not
// propagate out).
func (s *State) SetNextPC() {
	stmt := s.CurrentStatement()
	blk := s.Project.Block(stmt.BlockID())
	stmts := blk.Statements()
	for i, st := range stmts {
		if st.ID() == stmt.ID() {
			if i+1 < len(stmts) {
				s.PC = stmts[i+1].ID()
				return
			}
			break
		}
	}
	pc, err := s.FallthroughPC()
	if err != nil {
		s.Halt = true
		return
	}
	s.PC = pc
}

// FallthroughPC computes the statically designated "not taken" successor
// of the current statement's block.
func (s *State) FallthroughPC() (string, error) {
	stmt := s.CurrentStatement()
	blk := s.Project.Block(stmt.BlockID())
	succ := blk.Succ()
	switch len(succ) {
	case 0:
		return "", ErrVMNoSuccessors
	case 1:
		return succ[0].FirstIns().ID(), nil
	default:
		ft := blk.FallthroughEdge()
		if ft == nil {
			return "", ErrVMUnexpectedSuccessors
		}
		return ft.FirstIns().ID(), nil
	}
}

// NonFallthroughPC resolves a concrete jump destination to the matching
// successor block's first statement. A destination id may match a
// successor either exactly or as a "<dest>0x..." dispatch-synthesized
// prefix.
func (s *State) NonFallthroughPC(destination *smt.BV) (string, error) {
	v, ok := destination.AsConcrete()
	if !ok {
		return "", ErrSymbolicJumpTarget
	}
	destHex := v.Hex()

	stmt := s.CurrentStatement()
	blk := s.Project.Block(stmt.BlockID())

	var match project.Block
	matches := 0
	for _, b := range blk.Succ() {
		if b.ID() == destHex || strings.HasPrefix(b.ID(), destHex+"0x") {
			match = b
			matches++
		}
	}
	if matches != 1 {
		return "", ErrVMUnexpectedSuccessors
	}
	return match.FirstIns().ID(), nil
}

// --- init context ---

func (s *State) applyInitCtx(initCtx map[string]any) error {
	if initCtx == nil {
		initCtx = map[string]any{}
	}

	if err := s.applyCalldata(initCtx); err != nil {
		return err
	}

	if v, ok := initCtx[CtxCaller]; ok {
		word, err := hexToWord(v, CtxCaller)
		if err != nil {
			return err
		}
		s.Ctx[CtxCaller] = smt.BVVBig(word, smt.Width256)
	}
	if v, ok := initCtx[CtxOrigin]; ok {
		word, err := hexToWord(v, CtxOrigin)
		if err != nil {
			return err
		}
		s.Ctx[CtxOrigin] = smt.BVVBig(word, smt.Width256)
	}
	if v, ok := initCtx[CtxAddress]; ok {
		word, err := hexToWord(v, CtxAddress)
		if err != nil {
			return err
		}
		s.Ctx[CtxAddress] = smt.BVVBig(word, smt.Width256)
	}
	if v, ok := initCtx["BALANCE"]; ok {
		n, err := intValue(v, "BALANCE")
		if err != nil {
			return err
		}
		s.AddConstraint(smt.Equal(s.StartBalance, smt.BVV(n, smt.Width256)))
	}
	for _, key := range []string{CtxNumber, CtxDifficulty, CtxTimestamp, CtxCallvalue} {
		v, ok := initCtx[key]
		if !ok {
			continue
		}
		n, err := intValue(v, key)
		if err != nil {
			return err
		}
		s.Ctx[key] = smt.BVV(n, smt.Width256)
	}
	return nil
}

func intValue(v any, field string) (uint64, error) {
	switch n := v.(type) {
	case int:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("vmstate: wrong type for %s initial context", field)
	}
}

func hexToWord(v any, field string) (*uint256.Int, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("vmstate: wrong type for %s initial context", field)
	}
	addr := common.HexToAddress(s)
	word, overflow := uint256.FromBig(addr.Hash().Big())
	if overflow {
		return nil, fmt.Errorf("vmstate: %s overflows 256 bits", field)
	}
	return word, nil
}

// applyCalldata implements the CALLDATA/CALLDATASIZE seeding scheme,
// including the "SS" symbolic-byte token.
func (s *State) applyCalldata(initCtx map[string]any) error {
	raw, hasCalldata := initCtx["CALLDATA"]
	if !hasCalldata {
		s.Calldata = memory.NewLambda(fmt.Sprintf("CALLDATA_%d", s.XID), smt.Width8, s.freshCalldataDefault())
		s.CalldataSize = smt.BVS(fmt.Sprintf("CALLDATASIZE_%d", s.XID), smt.Width256)
		s.AddConstraint(smt.BV_ULT(s.CalldataSize, smt.BVV(uint64(s.MaxCalldataSize+1), smt.Width256)))
		return nil
	}

	calldataStr, ok := raw.(string)
	if !ok {
		return fmt.Errorf("vmstate: wrong type for CALLDATA initial context")
	}
	calldataStr = strings.TrimPrefix(calldataStr, "0x")
	if len(calldataStr)%2 != 0 {
		return fmt.Errorf("vmstate: CALLDATA hex string has odd length")
	}
	bytePairs := make([]string, 0, len(calldataStr)/2)
	for i := 0; i < len(calldataStr); i += 2 {
		bytePairs = append(bytePairs, calldataStr[i:i+2])
	}

	s.CalldataSize = smt.BVS(fmt.Sprintf("CALLDATASIZE_%d", s.XID), smt.Width256)

	if sizeRaw, hasSize := initCtx["CALLDATASIZE"]; hasSize {
		size, err := intValue(sizeRaw, "CALLDATASIZE")
		if err != nil {
			return err
		}
		if int(size) < len(bytePairs) {
			return fmt.Errorf("vmstate: CALLDATASIZE is smaller than len(CALLDATA)")
		}
		s.AddConstraint(smt.Equal(s.CalldataSize, smt.BVV(size, smt.Width256)))
		s.Calldata = memory.NewLambda(fmt.Sprintf("CALLDATA_%d", s.XID), smt.Width8, smt.BVV(0, smt.Width8))
		for idx := len(bytePairs); idx < int(size); idx++ {
			s.Calldata.Write(smt.BVV(uint64(idx), smt.Width256), smt.BVS(fmt.Sprintf("CALLDATA_BYTE_%d", idx), smt.Width8))
		}
		s.MaxCalldataSize = int(size)
	} else {
		s.Calldata = memory.NewLambda(fmt.Sprintf("CALLDATA_%d", s.XID), smt.Width8, s.freshCalldataDefault())
		s.AddConstraint(smt.BV_ULT(s.CalldataSize, smt.BVV(uint64(s.MaxCalldataSize+1), smt.Width256)))
		s.AddConstraint(smt.BV_UGE(s.CalldataSize, smt.BVV(uint64(len(bytePairs)), smt.Width256)))
	}

	for idx, pair := range bytePairs {
		if pair == "SS" {
			s.Calldata.Write(smt.BVV(uint64(idx), smt.Width256), smt.BVS(fmt.Sprintf("CALLDATA_BYTE_%d", idx), smt.Width8))
			continue
		}
		b, err := strconv.ParseUint(pair, 16, 8)
		if err != nil {
			return fmt.Errorf("vmstate: invalid CALLDATA byte %q at index %d", pair, idx)
		}
		s.Calldata.Write(smt.BVV(uint64(idx), smt.Width256), smt.BVV(b, smt.Width8))
	}
	return nil
}

// freshCalldataDefault allocates the (single, shared) symbolic byte used as
// the default for any CALLDATA index never explicitly written. Using one
// shared symbol rather than a fresh one per unwritten index is a
// documented simplification (DESIGN.md) given the engine's array theory is
// modeled as a default value, not a fully uninterpreted function.
func (s *State) freshCalldataDefault() *smt.BV {
	return smt.BVS(fmt.Sprintf("CALLDATA_DEFAULT_%d", s.XID), smt.Width8)
}

func (s *State) String() string {
	return fmt.Sprintf("State %d at %s", s.UUID, s.PC)
}
