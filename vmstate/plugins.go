package vmstate

import "github.com/ph4ge/greed-go/smt"

// Plugin is a named side-car attached to a State. The simulation manager
// never enumerates plugins directly; it only ever reaches for the
// well-known ones (Solver, Globals, Inspect) through State's typed
// accessors.
type Plugin interface {
	// SetState installs a non-owning back-reference to the owning state.
	// Called immediately after construction and again, with the new
	// state, immediately after Copy().
	SetState(s *State)
	// Copy returns an independent plugin instance. The caller is
	// responsible for calling SetState on the result.
	Copy() Plugin
}

// SolverPlugin wraps the per-state constraint store.
type SolverPlugin struct {
	state  *State
	Solver smt.Solver
}

// NewSolverPlugin wraps the given solver.
func NewSolverPlugin(s smt.Solver) *SolverPlugin {
	return &SolverPlugin{Solver: s}
}

func (p *SolverPlugin) SetState(s *State) { p.state = s }

func (p *SolverPlugin) Copy() Plugin {
	if cloner, ok := p.Solver.(interface{ Clone() *smt.ToySolver }); ok {
		return &SolverPlugin{Solver: cloner.Clone()}
	}
	return &SolverPlugin{Solver: p.Solver}
}

// IsSat is shorthand for Solver.IsSat(), tolerating a disposed/nil solver
// (reported unsat, matching "this path is gone").
func (p *SolverPlugin) IsSat() bool {
	if p == nil || p.Solver == nil {
		return false
	}
	return p.Solver.IsSat()
}

// GlobalsPlugin is free-form key/value scratch space for exploration
// techniques and handlers that need to stash per-path bookkeeping outside
// the documented State fields.
type GlobalsPlugin struct {
	state  *State
	values map[string]any
}

// NewGlobalsPlugin returns an empty GlobalsPlugin.
func NewGlobalsPlugin() *GlobalsPlugin {
	return &GlobalsPlugin{values: make(map[string]any)}
}

func (p *GlobalsPlugin) SetState(s *State) { p.state = s }

func (p *GlobalsPlugin) Copy() Plugin {
	clone := make(map[string]any, len(p.values))
	for k, v := range p.values {
		clone[k] = v
	}
	return &GlobalsPlugin{values: clone}
}

// Get returns the value stored under key, or nil if unset.
func (p *GlobalsPlugin) Get(key string) any { return p.values[key] }

// Set stores value under key.
func (p *GlobalsPlugin) Set(key string, value any) { p.values[key] = value }

// BreakpointFunc is invoked when an inspect breakpoint fires. manager is
// typed as `any` to avoid an import cycle with simgr; callers type-assert
// to *simgr.Manager.
type BreakpointFunc func(manager any, s *State)

// InspectPlugin holds pc- and opcode-keyed breakpoints, installed only when
// OptStateInspect is set.
type InspectPlugin struct {
	state               *State
	BreakpointsByPC     map[string]BreakpointFunc
	BreakpointsByOpcode map[string]BreakpointFunc
}

// NewInspectPlugin returns an InspectPlugin with no breakpoints installed.
func NewInspectPlugin() *InspectPlugin {
	return &InspectPlugin{
		BreakpointsByPC:     make(map[string]BreakpointFunc),
		BreakpointsByOpcode: make(map[string]BreakpointFunc),
	}
}

func (p *InspectPlugin) SetState(s *State) { p.state = s }

func (p *InspectPlugin) Copy() Plugin {
	byPC := make(map[string]BreakpointFunc, len(p.BreakpointsByPC))
	for k, v := range p.BreakpointsByPC {
		byPC[k] = v
	}
	byOp := make(map[string]BreakpointFunc, len(p.BreakpointsByOpcode))
	for k, v := range p.BreakpointsByOpcode {
		byOp[k] = v
	}
	return &InspectPlugin{BreakpointsByPC: byPC, BreakpointsByOpcode: byOp}
}

// BreakOnPC installs a breakpoint that fires when the state's pc equals pc.
func (p *InspectPlugin) BreakOnPC(pc string, fn BreakpointFunc) { p.BreakpointsByPC[pc] = fn }

// BreakOnOpcode installs a breakpoint that fires whenever the current
// statement's internal name equals name.
func (p *InspectPlugin) BreakOnOpcode(name string, fn BreakpointFunc) {
	p.BreakpointsByOpcode[name] = fn
}
