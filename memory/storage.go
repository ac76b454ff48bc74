package memory

import "github.com/ph4ge/greed-go/smt"

// Storage is the interface vmstate.State programs against for STORAGE,
// satisfied by both a fully symbolic Lambda and a PartialConcreteStorage.
type Storage interface {
	Read(idx *smt.BV) *smt.BV
	Write(idx, val *smt.BV)
	Copy() Storage
}

// lambdaStorage adapts *Lambda to the Storage interface (Lambda.Copy
// returns *Lambda, not Storage, so callers that only need raw memory
// semantics can use Lambda directly without going through an interface).
type lambdaStorage struct{ *Lambda }

func (l lambdaStorage) Copy() Storage { return lambdaStorage{l.Lambda.Copy()} }

// NewFullySymbolicStorage returns a Storage backed by an ordinary Lambda
// with no concrete snapshot, defaulting every unwritten slot to zero.
func NewFullySymbolicStorage(tag string) Storage {
	return lambdaStorage{NewLambda(tag, smt.Width256, smt.BVV(0, smt.Width256))}
}

// PartialConcreteStorage is a Storage backed by a concrete pre-state
// snapshot (e.g. a known contract's existing storage slots) overlaid with
// symbolic writes performed during execution. Reads of a slot never
// written during execution fall back to the concrete snapshot; reads of a
// slot outside the snapshot (and never written) fall back to zero, as for
// fully symbolic storage.
type PartialConcreteStorage struct {
	Tag      string
	overlay  *Lambda
	concrete map[string]*smt.BV // pre-state snapshot, keyed like Lambda's key()
	written  map[string]bool    // slots written during execution, keyed like concrete
}

// NewPartialConcreteStorage returns a PartialConcreteStorage seeded with
// the given concrete snapshot ("c:" + index hex string, as Lambda's key()
// renders it, -> concrete value).
func NewPartialConcreteStorage(tag string, snapshot map[string]*smt.BV) *PartialConcreteStorage {
	concrete := make(map[string]*smt.BV, len(snapshot))
	for k, v := range snapshot {
		concrete[k] = v
	}
	return &PartialConcreteStorage{
		Tag:      tag,
		overlay:  NewLambda(tag, smt.Width256, smt.BVV(0, smt.Width256)),
		concrete: concrete,
		written:  make(map[string]bool),
	}
}

func (p *PartialConcreteStorage) Read(idx *smt.BV) *smt.BV {
	if v, ok := idx.AsConcrete(); ok {
		k := "c:" + v.Hex()
		if p.written[k] {
			return p.overlay.Read(idx)
		}
		if snap, ok := p.concrete[k]; ok {
			return snap
		}
	}
	return p.overlay.Read(idx)
}

func (p *PartialConcreteStorage) Write(idx, val *smt.BV) {
	if v, ok := idx.AsConcrete(); ok {
		p.written["c:"+v.Hex()] = true
	}
	p.overlay.Write(idx, val)
}

func (p *PartialConcreteStorage) Copy() Storage {
	concrete := make(map[string]*smt.BV, len(p.concrete))
	for k, v := range p.concrete {
		concrete[k] = v
	}
	written := make(map[string]bool, len(p.written))
	for k, v := range p.written {
		written[k] = v
	}
	return &PartialConcreteStorage{
		Tag:      p.Tag,
		overlay:  p.overlay.Copy(),
		concrete: concrete,
		written:  written,
	}
}
