// Package smt implements the symbolic value layer: bitvector terms over a
// fixed 256-bit word (the native EVM stack width) plus the boolean
// constraints built from them. One file per concern, concrete types backed
// by github.com/holiman/uint256 rather than math/big; this layer is not a
// decision procedure. Deciding sat/unsat of a constraint set is the job of
// the Solver interface in solver.go.
package smt

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Width is the bit width of a bitvector term. The engine only ever
// constructs 256-bit (EVM word) and 8-bit (memory byte) terms.
type Width int

const (
	Width8   Width = 8
	Width256 Width = 256
)

// bvOp tags the shape of a symbolic (non-concrete) bitvector expression.
type bvOp int

const (
	opVar bvOp = iota
	opAdd
	opSub
	opMul
	opRename // same expression, renamed to a different xid
)

// BV is a 256-bit-or-narrower bitvector term: either a concrete value or a
// symbolic expression tree. The zero value is not a valid BV; construct one
// with BVV or BVS.
type BV struct {
	width    Width
	concrete *uint256.Int // nil iff symbolic
	op       bvOp
	name     string // opVar: the variable name; opRename: the new name
	args     []*BV  // opAdd/opSub/opMul: operands; opRename: the original term
}

// BVV constructs a concrete bitvector value.
func BVV(v uint64, width Width) *BV {
	return &BV{width: width, concrete: uint256.NewInt(v)}
}

// BVVBig constructs a concrete bitvector value from a uint256.Int.
func BVVBig(v *uint256.Int, width Width) *BV {
	c := new(uint256.Int).Set(v)
	return &BV{width: width, concrete: c}
}

// BVS constructs a fresh symbolic bitvector variable with the given name.
// Callers are responsible for making the name unique (typically by
// embedding the owning xid, e.g. "CALLDATASIZE_3").
func BVS(name string, width Width) *BV {
	return &BV{width: width, op: opVar, name: name}
}

// Width returns the bit width of the term.
func (b *BV) Width() Width { return b.width }

// IsConcrete reports whether b carries a concrete value.
func (b *BV) IsConcrete() bool { return b.concrete != nil }

// AsConcrete returns the concrete value and true, or (nil, false) if b is
// symbolic.
func (b *BV) AsConcrete() (*uint256.Int, bool) {
	if b.concrete == nil {
		return nil, false
	}
	return new(uint256.Int).Set(b.concrete), true
}

// IsZero reports whether b is the concrete value zero. Symbolic terms are
// never reported as zero.
func (b *BV) IsZero() bool {
	return b.concrete != nil && b.concrete.IsZero()
}

// BV_Add returns a + b, folding immediately if both operands are concrete.
// Concrete folding wraps mod 2^256; results are not reduced to a narrower
// width.
func BV_Add(a, b *BV) *BV {
	if a.concrete != nil && b.concrete != nil {
		return &BV{width: a.width, concrete: new(uint256.Int).Add(a.concrete, b.concrete)}
	}
	return &BV{width: a.width, op: opAdd, args: []*BV{a, b}}
}

// BV_Sub returns a - b. Concrete folding wraps mod 2^256; results are not
// reduced to a narrower width.
func BV_Sub(a, b *BV) *BV {
	if a.concrete != nil && b.concrete != nil {
		return &BV{width: a.width, concrete: new(uint256.Int).Sub(a.concrete, b.concrete)}
	}
	return &BV{width: a.width, op: opSub, args: []*BV{a, b}}
}

// Name returns the variable name of a leaf term (opVar), or "" for a
// compound or concrete term. Used by the toy solver's equality-binding
// pass.
func (b *BV) Name() string {
	if b.op == opVar {
		return b.name
	}
	return ""
}

// RenameXID returns a copy of b with every free variable's "<NAME>_<oldXID>"
// suffix rewritten to "<NAME>_<newXID>". Concrete terms are returned
// unchanged. This is the only sanctioned way to compose terms that
// originated in different transaction instances.
func (b *BV) RenameXID(oldXID, newXID int) *BV {
	if b.concrete != nil {
		return b
	}
	switch b.op {
	case opVar:
		newName := renameSuffix(b.name, oldXID, newXID)
		if newName == b.name {
			return b
		}
		return &BV{width: b.width, op: opVar, name: newName}
	default:
		args := make([]*BV, len(b.args))
		for i, a := range b.args {
			args[i] = a.RenameXID(oldXID, newXID)
		}
		return &BV{width: b.width, op: b.op, args: args}
	}
}

func renameSuffix(name string, oldXID, newXID int) string {
	suffix := fmt.Sprintf("_%d", oldXID)
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return name
	}
	return fmt.Sprintf("%s_%d", name[:len(name)-len(suffix)], newXID)
}

func (b *BV) String() string {
	if b.concrete != nil {
		return b.concrete.Hex()
	}
	switch b.op {
	case opVar:
		return b.name
	case opAdd:
		return fmt.Sprintf("(%s + %s)", b.args[0], b.args[1])
	case opSub:
		return fmt.Sprintf("(%s - %s)", b.args[0], b.args[1])
	default:
		return "<bv>"
	}
}

// boolOp tags the shape of a boolean constraint term.
type boolOp int

const (
	boolEqual boolOp = iota
	boolULT
	boolUGE
	boolNot
	boolAnd
)

// Bool is a boolean constraint term: either a concrete truth value or a
// symbolic predicate over BVs (and, recursively, other Bools).
type Bool struct {
	concrete *bool
	op       boolOp
	bvArgs   []*BV
	boolArgs []*Bool
}

// BoolV constructs a concrete boolean.
func BoolV(v bool) *Bool { return &Bool{concrete: &v} }

// IsConcrete reports whether c carries a concrete truth value.
func (c *Bool) IsConcrete() bool { return c.concrete != nil }

// AsConcrete returns the concrete value and true, or (false, false) if c is
// symbolic.
func (c *Bool) AsConcrete() (bool, bool) {
	if c.concrete == nil {
		return false, false
	}
	return *c.concrete, true
}

// Equal returns the constraint a == b, folding immediately if both
// operands are concrete.
func Equal(a, b *BV) *Bool {
	if a.concrete != nil && b.concrete != nil {
		eq := a.concrete.Eq(b.concrete)
		return &Bool{concrete: &eq}
	}
	return &Bool{op: boolEqual, bvArgs: []*BV{a, b}}
}

// BV_ULT returns the constraint a < b (unsigned).
func BV_ULT(a, b *BV) *Bool {
	if a.concrete != nil && b.concrete != nil {
		lt := a.concrete.Lt(b.concrete)
		return &Bool{concrete: &lt}
	}
	return &Bool{op: boolULT, bvArgs: []*BV{a, b}}
}

// BV_UGE returns the constraint a >= b (unsigned).
func BV_UGE(a, b *BV) *Bool {
	if a.concrete != nil && b.concrete != nil {
		ge := !a.concrete.Lt(b.concrete)
		return &Bool{concrete: &ge}
	}
	return &Bool{op: boolUGE, bvArgs: []*BV{a, b}}
}

// Not returns the negation of c.
func Not(c *Bool) *Bool {
	if c.concrete != nil {
		v := !*c.concrete
		return &Bool{concrete: &v}
	}
	return &Bool{op: boolNot, boolArgs: []*Bool{c}}
}

// And returns the conjunction of cs, folding concrete operands eagerly.
func And(cs ...*Bool) *Bool {
	remaining := make([]*Bool, 0, len(cs))
	for _, c := range cs {
		if c.concrete != nil {
			if !*c.concrete {
				f := false
				return &Bool{concrete: &f}
			}
			continue
		}
		remaining = append(remaining, c)
	}
	if len(remaining) == 0 {
		return BoolV(true)
	}
	if len(remaining) == 1 {
		return remaining[0]
	}
	return &Bool{op: boolAnd, boolArgs: remaining}
}

func (c *Bool) String() string {
	if c.concrete != nil {
		if *c.concrete {
			return "true"
		}
		return "false"
	}
	switch c.op {
	case boolEqual:
		return fmt.Sprintf("(%s == %s)", c.bvArgs[0], c.bvArgs[1])
	case boolULT:
		return fmt.Sprintf("(%s < %s)", c.bvArgs[0], c.bvArgs[1])
	case boolUGE:
		return fmt.Sprintf("(%s >= %s)", c.bvArgs[0], c.bvArgs[1])
	case boolNot:
		return fmt.Sprintf("!(%s)", c.boolArgs[0])
	case boolAnd:
		return fmt.Sprintf("and(%v)", c.boolArgs)
	default:
		return "<bool>"
	}
}
