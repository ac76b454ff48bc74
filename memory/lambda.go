// Package memory implements the copy-on-write symbolic byte- and
// word-addressable stores used by vmstate.State for MEMORY, STORAGE, and
// CALLDATA: writes land in a small per-instance overlay map, and Copy
// shares the overlay chain by reference until a clone diverges, so a clone
// is O(1) and only the write that actually differs allocates.
package memory

import "github.com/ph4ge/greed-go/smt"

// Lambda is a symbolic array: index -> value, with a default for indices
// never written. It implements the "lambda memory" abstraction as a chain
// of overlays: each Copy() shares its parent's overlay by reference and
// only allocates its own map on the first divergent write.
type Lambda struct {
	Tag        string
	valueWidth smt.Width
	defaultVal *smt.BV

	parent *Lambda          // nil for the root of the chain
	own    map[string]*smt.BV // this instance's own writes, nil until first write
}

// NewLambda creates a fresh Lambda with no writes, backed by defaultVal for
// every index.
func NewLambda(tag string, valueWidth smt.Width, defaultVal *smt.BV) *Lambda {
	return &Lambda{Tag: tag, valueWidth: valueWidth, defaultVal: defaultVal}
}

// key renders a (possibly symbolic) index into a lookup key. Concrete
// indices key by their numeric value so that writes to the same concrete
// address overwrite each other; symbolic indices key by their rendered
// expression text (String()), so structurally identical terms share a slot
// and no aliasing between different symbolic indices is modeled.
func key(idx *smt.BV) string {
	if v, ok := idx.AsConcrete(); ok {
		return "c:" + v.Hex()
	}
	return idx.String()
}

// Read returns the value stored at idx, walking the overlay chain from the
// most recent write back to the default.
func (m *Lambda) Read(idx *smt.BV) *smt.BV {
	k := key(idx)
	for l := m; l != nil; l = l.parent {
		if l.own == nil {
			continue
		}
		if v, ok := l.own[k]; ok {
			return v
		}
	}
	return m.defaultVal
}

// Write records a value at idx in this instance's own overlay. It never
// mutates a parent's overlay, preserving the invariant that earlier clones
// are unaffected by later writes.
func (m *Lambda) Write(idx, val *smt.BV) {
	if m.own == nil {
		m.own = make(map[string]*smt.BV)
	}
	m.own[key(idx)] = val
}

// Copy returns an independent Lambda that currently reads exactly what m
// reads, in O(1). It freezes m's current overlay into a shared, read-only
// snapshot that both m and the returned clone chain to; each then starts
// writing into its own fresh overlay, so a write to either side after the
// copy is invisible to the other (m is itself mutated here to preserve
// this property for the caller's existing reference).
func (m *Lambda) Copy() *Lambda {
	frozen := &Lambda{
		Tag:        m.Tag,
		valueWidth: m.valueWidth,
		defaultVal: m.defaultVal,
		parent:     m.parent,
		own:        m.own,
	}
	m.parent = frozen
	m.own = nil
	return &Lambda{
		Tag:        m.Tag,
		valueWidth: m.valueWidth,
		defaultVal: m.defaultVal,
		parent:     frozen,
	}
}

// ValueWidth returns the bit width of values stored in this memory.
func (m *Lambda) ValueWidth() smt.Width { return m.valueWidth }
