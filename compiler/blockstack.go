package compiler

import "github.com/wippyai/wasm-corecc/errors"

// dispatchModeThreshold is the block-nesting depth at which a
// source-emitting backend would have to switch from nested native
// labels to a flat dispatch table. This Go backend lowers every branch
// to a signal value a block's own closure checks against its id (see
// ctrl below), which has no analogue of a host label-nesting limit;
// the threshold is kept so BlockFrame.Dispatch stays observable and
// behavior on both sides of the boundary remains testable.
const dispatchModeThreshold = 256

// stackSlotLimit bounds how many virtual stack slots a single function
// may allocate.
const stackSlotLimit = 255

type blockKind int

const (
	blockNormal blockKind = iota
	blockLoop
	blockIf
)

// BlockFrame is the compile-time control structure pushed by block,
// loop, and if and popped at the matching end.
// It is distinct from Frame (compiler/emit.go), the per-call runtime
// activation record the compiled closures read and write.
type BlockFrame struct {
	id          int
	kind        blockKind
	argSlots    []int // slots a branch to this block (loop: re-entry) must populate
	resultSlots []int // slots this block's completion must leave populated
	isDead      bool  // set after an unconditional br/br_table/return/unreachable until the block ends
	Dispatch    bool  // true if this block's nesting depth reached dispatchModeThreshold
}

// blockStack tracks the nested BlockFrames live during decoding of one
// function, plus the high-water mark of virtual stack positions the
// function touched (the count of runtime slot variables it needs).
type blockStack struct {
	frames []*BlockFrame
	nextID int
	used   int
}

func newBlockStack() *blockStack {
	return &blockStack{}
}

// push starts a new block of the given kind. argSlots are the slots
// already holding this block's parameters (unchanged on the virtual
// stack); resultSlots are the slots its completion (fallthrough or a
// matching branch) must leave populated, allocated by the caller via
// blockResultSlots before decoding the block's body so that branch targets
// inside the body already know where to write.
func (b *blockStack) push(kind blockKind, argSlots, resultSlots []int) *BlockFrame {
	bf := &BlockFrame{
		id:          b.nextID,
		kind:        kind,
		argSlots:    argSlots,
		resultSlots: resultSlots,
		Dispatch:    len(b.frames) >= dispatchModeThreshold,
	}
	b.nextID++
	b.frames = append(b.frames, bf)
	return bf
}

// pop removes the innermost block frame.
func (b *blockStack) pop() *BlockFrame {
	bf := b.frames[len(b.frames)-1]
	b.frames = b.frames[:len(b.frames)-1]
	return bf
}

// top returns the innermost open frame.
func (b *blockStack) top() *BlockFrame { return b.frames[len(b.frames)-1] }

// target resolves a relative branch depth (0 = innermost) to the
// BlockFrame it refers to; branch depths count outward from the
// innermost open block.
func (b *blockStack) target(relDepth uint32) (*BlockFrame, error) {
	idx := len(b.frames) - 1 - int(relDepth)
	if idx < 0 {
		return nil, internalf(errors.PhaseLower, "branch depth %d exceeds open block count %d", relDepth, len(b.frames))
	}
	return b.frames[idx], nil
}

// jumpTargetSlots returns the slots a branch to bf must leave populated:
// a loop's own argument slots (it jumps back to its own start) or its
// result slots otherwise (it jumps to just past its end).
func jumpTargetSlots(bf *BlockFrame) []int {
	if bf.kind == blockLoop {
		return bf.argSlots
	}
	return bf.resultSlots
}

// ctrl is the signal a compiled statement closure returns: either "ran
// to completion" (the zero value) or "a branch/return is propagating
// toward block id Target". Every compiled block body checks Target
// against its own id; a match means the branch has reached its
// destination and the block consumes the signal, a mismatch means it
// bubbles the signal to its caller unchanged.
type ctrl struct {
	Branch bool
	Target int
}

var ctrlFallthrough = ctrl{}
