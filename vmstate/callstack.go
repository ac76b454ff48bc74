// callstack.go gives the symbolic engine a callstack: an ordered sequence
// of return-frame descriptors tracking where execution resumes once a
// called or created sub-path returns. Gas forwarding (EIP-150) and
// memory-expansion accounting are concrete-EVM machinery this engine does
// not model and are dropped; what survives is the frame shape, the
// depth-limited stack discipline, and the return-data buffer, now sized
// with symbolic terms.
package vmstate

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ph4ge/greed-go/smt"
)

// MaxCallDepth is the standard EVM call-depth limit.
const MaxCallDepth = 1024

// ErrMaxCallDepthExceeded is returned by FrameStack.Push once MaxCallDepth
// frames are already active.
var ErrMaxCallDepthExceeded = errors.New("vmstate: max call depth exceeded")

// FrameKind enumerates the EVM operations that push a return frame.
type FrameKind uint8

const (
	FrameCall FrameKind = iota
	FrameStaticCall
	FrameDelegateCall
	FrameCallCode
	FrameCreate
	FrameCreate2
)

func (k FrameKind) String() string {
	switch k {
	case FrameCall:
		return "CALL"
	case FrameStaticCall:
		return "STATICCALL"
	case FrameDelegateCall:
		return "DELEGATECALL"
	case FrameCallCode:
		return "CALLCODE"
	case FrameCreate:
		return "CREATE"
	case FrameCreate2:
		return "CREATE2"
	default:
		return "UNKNOWN"
	}
}

// IsCreate reports whether k is a contract-creation frame.
func (k FrameKind) IsCreate() bool { return k == FrameCreate || k == FrameCreate2 }

// Frame is one return-frame descriptor on a state's callstack: where
// execution resumes, and under what context, once the called/created
// sub-path returns. Pushed/popped by CALL-family and CREATE-family
// handlers outside this package.
type Frame struct {
	Kind       FrameKind
	Caller     common.Address
	To         common.Address
	ReturnPC   string // statement to resume at on return
	Depth      int    // 0 = top-level transaction
	ReadOnly   bool   // true inside a STATICCALL context
	SnapshotID int    // storage/memory snapshot id taken at frame entry
}

// FrameStack is a depth-limited stack of return frames.
type FrameStack struct {
	frames   []Frame
	maxDepth int
}

// NewFrameStack returns an empty FrameStack with the standard depth limit.
func NewFrameStack() *FrameStack {
	return &FrameStack{maxDepth: MaxCallDepth}
}

// Depth returns the number of active frames.
func (fs *FrameStack) Depth() int { return len(fs.frames) }

// Push appends a frame, stamping its Depth. Returns ErrMaxCallDepthExceeded
// if the stack is already at the limit.
func (fs *FrameStack) Push(f Frame) error {
	if len(fs.frames) >= fs.maxDepth {
		return ErrMaxCallDepthExceeded
	}
	f.Depth = len(fs.frames)
	fs.frames = append(fs.frames, f)
	return nil
}

// Pop removes and returns the top frame. ok is false if the stack is empty.
func (fs *FrameStack) Pop() (Frame, bool) {
	n := len(fs.frames)
	if n == 0 {
		return Frame{}, false
	}
	f := fs.frames[n-1]
	fs.frames = fs.frames[:n-1]
	return f, true
}

// Current returns the top frame without removing it.
func (fs *FrameStack) Current() (Frame, bool) {
	n := len(fs.frames)
	if n == 0 {
		return Frame{}, false
	}
	return fs.frames[n-1], true
}

// IsStatic reports whether any frame in the stack is read-only.
func (fs *FrameStack) IsStatic() bool {
	for _, f := range fs.frames {
		if f.ReadOnly {
			return true
		}
	}
	return false
}

// Slice returns a copy of the frame list, in call order (oldest first),
// suitable for assigning to a cloned state's Callstack.
func (fs *FrameStack) Slice() []Frame {
	out := make([]Frame, len(fs.frames))
	copy(out, fs.frames)
	return out
}

// FrameStackFromSlice rebuilds a FrameStack from a (possibly cloned) frame
// slice, preserving maxDepth.
func FrameStackFromSlice(frames []Frame) *FrameStack {
	fs := NewFrameStack()
	fs.frames = append(fs.frames, frames...)
	return fs
}

// ReturnData describes the outcome of the most recently completed inner
// call: a symbolic size plus the instruction count consumed.
type ReturnData struct {
	Size             *smt.BV
	InstructionCount uint64
}
