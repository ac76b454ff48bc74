package vmstate

import (
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/ph4ge/greed-go/smt"
)

// ShaObservation records one SHA3/KECCAK256 evaluation performed along a
// path: the input bytes (mixed concrete/symbolic) and the resulting term.
// Preserved across Copy.
type ShaObservation struct {
	Inputs []*smt.BV
	Output *smt.BV
}

// Copy returns an independent ShaObservation; the term slices are
// immutable once constructed, so a shallow copy is sufficient, but we
// still rebuild the slice header to avoid aliasing surprises if a caller
// ever appends in place.
func (o ShaObservation) Copy(newState *State) ShaObservation {
	inputs := make([]*smt.BV, len(o.Inputs))
	copy(inputs, o.Inputs)
	return ShaObservation{Inputs: inputs, Output: o.Output}
}

// ObserveKeccak256 computes the symbolic result of KECCAK256 over inputs
// and appends the observation to s.ShaObserved. When every input byte is
// concrete, the real digest is computed via go-ethereum/crypto and
// returned as a concrete term; otherwise a fresh symbolic output term is
// allocated and the observation is recorded so a later technique (e.g. a
// hash-collision-avoidance pass) can constrain it against other
// observations with identical concrete prefixes.
func (s *State) ObserveKeccak256(inputs []*smt.BV) *smt.BV {
	if allConcrete(inputs) {
		raw := make([]byte, len(inputs))
		for i, b := range inputs {
			v, _ := b.AsConcrete()
			raw[i] = byte(v.Uint64())
		}
		digest := crypto.Keccak256(raw)
		out := smt.BVVBig(new(uint256.Int).SetBytes(digest), smt.Width256)
		s.ShaObserved = append(s.ShaObserved, ShaObservation{Inputs: append([]*smt.BV(nil), inputs...), Output: out})
		return out
	}
	out := smt.BVS(freshSHAName(s), smt.Width256)
	s.ShaObserved = append(s.ShaObserved, ShaObservation{Inputs: append([]*smt.BV(nil), inputs...), Output: out})
	return out
}

func allConcrete(bs []*smt.BV) bool {
	for _, b := range bs {
		if !b.IsConcrete() {
			return false
		}
	}
	return true
}

func freshSHAName(s *State) string {
	s.shaCounter++
	return "SHA_" + strconv.Itoa(s.shaCounter) + "_" + strconv.Itoa(s.XID)
}
