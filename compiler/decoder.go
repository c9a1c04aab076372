package compiler

import (
	"math"

	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/wasm"
)

// funcDecoder holds all per-function decode state. One funcDecoder is created per call to Compile and is not reused: the
// packed Store and virtual stack bookkeeping only make sense for a
// single function body.
type funcDecoder struct {
	mod     *wasm.Module
	funcIdx uint32
	ft      *wasm.FuncType
	body    *wasm.FuncBody

	store  *Store
	blocks *blockStack

	// funcBlock is the function body's own implicit outer block: its
	// resultSlots are the function's final output, and `return` targets
	// it directly rather than through a relative br depth (a return is
	// lowered the same way a branch to the outermost block is).
	funcBlock *BlockFrame

	// vstack mirrors the WebAssembly operand stack: each entry is a
	// virtual stack slot number, in stack order (last = top).
	vstack []int

	// astPtrs accumulates the current basic block's top-level node
	// pointers in emission order. finalizeBasicBlock (optimize.go) runs
	// over it before emission; the decoder resets both it and the Store
	// at every block boundary.
	astPtrs []int32

	// consts holds i64 constants too wide for a single int32 immediate
	// word; i64.const nodes store an index into this slice.
	consts []int64

	// locals is the function's full local list: parameters first, then
	// declared locals (params seeded from arguments, declared locals
	// zero-valued).
	locals []wasm.ValType
}

func newFuncDecoder(mod *wasm.Module, funcIdx uint32, ft *wasm.FuncType, body *wasm.FuncBody) *funcDecoder {
	locals := make([]wasm.ValType, 0, len(ft.Params))
	locals = append(locals, ft.Params...)
	for _, le := range body.Locals {
		for i := uint32(0); i < le.Count; i++ {
			locals = append(locals, le.ValType)
		}
	}
	return &funcDecoder{
		mod:     mod,
		funcIdx: funcIdx,
		ft:      ft,
		body:    body,
		store:   NewStore(),
		blocks:  newBlockStack(),
		locals:  locals,
	}
}

// blockSig resolves a BlockImm.Type into its parameter and result value
// types: -64 void, -1..-4 a single numeric result type, >=0 a
// type-section index for multi-value blocks.
func (d *funcDecoder) blockSig(bt int32) (params, results []wasm.ValType) {
	switch bt {
	case wasm.BlockTypeVoid:
		return nil, nil
	case -1:
		return nil, []wasm.ValType{wasm.ValI32}
	case -2:
		return nil, []wasm.ValType{wasm.ValI64}
	case -3:
		return nil, []wasm.ValType{wasm.ValF32}
	case -4:
		return nil, []wasm.ValType{wasm.ValF64}
	}
	ft := &d.mod.Types[bt]
	return ft.Params, ft.Results
}

// allocSlots names the n virtual stack positions directly above the
// current stack top. Slot numbers are stack positions, so a slot is
// automatically reused once the value occupying it has been popped; the
// limit therefore bounds live depth, not total allocations. Raises
// KindDeepStack past stackSlotLimit.
func (d *funcDecoder) allocSlots(n int) ([]int, error) {
	return d.slotsAbove(len(d.vstack), n)
}

// blockResultSlots names the positions a block's results will occupy
// once its numParams arguments have been consumed: the first result
// lands where the first argument currently sits.
func (d *funcDecoder) blockResultSlots(numParams, numResults int) ([]int, error) {
	base := len(d.vstack) - numParams
	if base < 0 {
		base = 0
	}
	return d.slotsAbove(base, numResults)
}

func (d *funcDecoder) slotsAbove(base, n int) ([]int, error) {
	slots := make([]int, n)
	for i := range slots {
		s := base + 1 + i
		if s > stackSlotLimit {
			return nil, deepStack(d.funcIdx, "virtual stack slots", stackSlotLimit)
		}
		if s > d.blocks.used {
			d.blocks.used = s
		}
		slots[i] = s
	}
	return slots, nil
}

// popVstack pops n entries off the virtual stack and returns them as
// child words (slot references), oldest-pushed first — i.e. in the same
// left-to-right order the instruction's operands appeared in source.
func (d *funcDecoder) popVstack(n int) []int32 {
	if n == 0 {
		return nil
	}
	start := len(d.vstack) - n
	if start < 0 {
		// Underflow guard for malformed input (dead code never gets
		// here; decodeSeq skips it outright). Substitute the permanent
		// dummy zero slot for anything missing.
		words := make([]int32, n)
		for i := range words {
			words[i] = SlotChildWord(0)
		}
		return words
	}
	popped := d.vstack[start:]
	words := make([]int32, n)
	for i, slot := range popped {
		words[i] = SlotChildWord(slot)
	}
	d.vstack = d.vstack[:start]
	return words
}

// pushAlloc allocates one node in the Store, assigns it a fresh virtual
// stack slot, records it as a live top-level statement in the current
// basic block, and pushes the slot onto the virtual stack.
func (d *funcDecoder) pushAlloc(opcode byte, children, imm []int32) error {
	slots, err := d.allocSlots(1)
	if err != nil {
		return err
	}
	ptr, err := d.store.Alloc(opcode, slots[0], children, imm)
	if err != nil {
		return err
	}
	d.astPtrs = append(d.astPtrs, ptr)
	d.vstack = append(d.vstack, slots[0])
	return nil
}

// allocInline allocates a node with OutSlot 0 (never observed via
// the virtual stack directly) purely so it can be referenced as an
// inlined child pointer by the node being built around it; it is not
// appended to astPtrs or vstack.
func (d *funcDecoder) allocInline(opcode byte, children, imm []int32) (int32, error) {
	return d.store.Alloc(opcode, 0, children, imm)
}

// emitAlloc allocates a node with no result (a pure statement: store,
// global.set, memory.copy/fill) and records it as a top-level statement.
func (d *funcDecoder) emitAlloc(opcode byte, children, imm []int32) error {
	ptr, err := d.store.Alloc(opcode, 0, children, imm)
	if err != nil {
		return err
	}
	d.astPtrs = append(d.astPtrs, ptr)
	return nil
}

// coerce wraps a child word in an OpToU32/OpToS64 pseudo node
// (metaCoerceU32/metaCoerceS64); the wrapping is identity at the bit
// level (doc.go).
func (d *funcDecoder) coerce(op byte, w int32) (int32, error) {
	ptr, err := d.allocInline(op, []int32{w}, nil)
	if err != nil {
		return 0, err
	}
	return NodeChildWord(ptr), nil
}

// maskShiftAmount synthesizes a real `i64.and amt, 63` node (rather than
// a pseudo-op) for the amount operand of an i64 shift/rotate, per
// opmeta's metaMask63 flag.
func (d *funcDecoder) maskShiftAmount(w int32) (int32, error) {
	constPtr, err := d.allocInline(wasm.OpI64Const, nil, []int32{d.internI64(63)})
	if err != nil {
		return 0, err
	}
	andPtr, err := d.allocInline(wasm.OpI64And, []int32{w, NodeChildWord(constPtr)}, nil)
	if err != nil {
		return 0, err
	}
	return NodeChildWord(andPtr), nil
}

// internI64 records v in the i64 constant sidecar and returns its index.
func (d *funcDecoder) internI64(v int64) int32 {
	d.consts = append(d.consts, v)
	return int32(len(d.consts) - 1)
}

// decodeSimple handles one opcode via the generic, table-driven path:
// pop operands, optionally wrap them in coercion/mask
// nodes, allocate the real node, optionally wrap the result in
// OpBoolToInt, push the result.
func (d *funcDecoder) decodeSimple(instr wasm.Instruction) error {
	op := instr.Opcode
	if IsOmitted(op) {
		d.popVstack(PopCount(op))
		return nil
	}

	var imm []int32
	if HasIndexImm(op) {
		idx, err := localOrGlobalIndex(instr)
		if err != nil {
			return err
		}
		imm = []int32{int32(idx)}
	}

	children := d.popVstack(PopCount(op))
	if CoercesU32(op) {
		for i, w := range children {
			cw, err := d.coerce(OpToU32, w)
			if err != nil {
				return err
			}
			children[i] = cw
		}
	}
	if CoercesS64(op) {
		for i, w := range children {
			cw, err := d.coerce(OpToS64, w)
			if err != nil {
				return err
			}
			children[i] = cw
		}
	}
	if MasksShiftAmount(op) && len(children) == 2 {
		mw, err := d.maskShiftAmount(children[1])
		if err != nil {
			return err
		}
		children[1] = mw
	}

	if !Pushes(op) {
		return d.emitAlloc(op, children, imm)
	}

	if !IsBoolResult(op) {
		return d.pushAlloc(op, children, imm)
	}

	innerPtr, err := d.allocInline(op, children, imm)
	if err != nil {
		return err
	}
	return d.pushAlloc(OpBoolToInt, []int32{NodeChildWord(innerPtr)}, nil)
}

func localOrGlobalIndex(instr wasm.Instruction) (uint32, error) {
	switch imm := instr.Imm.(type) {
	case wasm.LocalImm:
		return imm.LocalIdx, nil
	case wasm.GlobalImm:
		return imm.GlobalIdx, nil
	}
	return 0, internalf(errors.PhaseDecode, "opcode 0x%02x: expected local/global index immediate", instr.Opcode)
}

// decodeMemArg handles one load or store instruction (not Simple: needs
// memory-index validation and address-plus-offset assembly).
func (d *funcDecoder) decodeMemArg(instr wasm.Instruction) error {
	mi, ok := instr.Imm.(wasm.MemoryImm)
	if !ok {
		return internalf(errors.PhaseDecode, "opcode 0x%02x: expected memarg immediate", instr.Opcode)
	}
	if mi.MemIdx != 0 {
		return unsupportedMemoryIndex(d.funcIdx, mi.MemIdx)
	}
	op := instr.Opcode
	offsetWord := int32(uint32(mi.Offset))

	if isStore(op) {
		children := d.popVstack(2)
		return d.emitAlloc(op, children, []int32{offsetWord})
	}
	children := d.popVstack(1)
	return d.pushAlloc(op, children, []int32{offsetWord})
}

// decodeConst handles i32/i64/f32/f64.const.
func (d *funcDecoder) decodeConst(instr wasm.Instruction) error {
	switch imm := instr.Imm.(type) {
	case wasm.I32Imm:
		return d.pushAlloc(wasm.OpI32Const, nil, []int32{imm.Value})
	case wasm.I64Imm:
		return d.pushAlloc(wasm.OpI64Const, nil, []int32{d.internI64(imm.Value)})
	case wasm.F32Imm:
		return d.pushAlloc(wasm.OpF32Const, nil, []int32{int32(math.Float32bits(imm.Value))})
	case wasm.F64Imm:
		bits := math.Float64bits(imm.Value)
		return d.pushAlloc(wasm.OpF64Const, nil, []int32{int32(uint32(bits)), int32(uint32(bits >> 32))})
	}
	return internalf(errors.PhaseDecode, "const instruction missing a typed immediate")
}

// decodeSelect handles `select`: the condition child comes first, then
// the two value operands; the emitter evaluates the condition before
// either value.
func (d *funcDecoder) decodeSelect() error {
	cond := d.popVstack(1)
	vals := d.popVstack(2)
	children := []int32{cond[0], vals[0], vals[1]}
	return d.pushAlloc(wasm.OpSelect, children, nil)
}

// decodeCall handles `call`.
func (d *funcDecoder) decodeCall(instr wasm.Instruction) error {
	imm, ok := instr.Imm.(wasm.CallImm)
	if !ok {
		return internalf(errors.PhaseDecode, "call: missing CallImm")
	}
	callee := d.mod.GetFuncType(imm.FuncIdx)
	return d.decodeCallCommon(wasm.OpCall, int32(imm.FuncIdx), callee, nil)
}

// decodeCallIndirect handles `call_indirect`.
func (d *funcDecoder) decodeCallIndirect(instr wasm.Instruction) error {
	imm, ok := instr.Imm.(wasm.CallIndirectImm)
	if !ok {
		return internalf(errors.PhaseDecode, "call_indirect: missing CallIndirectImm")
	}
	if imm.TableIdx != 0 {
		return unsupportedTableIndex(d.funcIdx, imm.TableIdx)
	}
	ft := &d.mod.Types[imm.TypeIdx]
	elem := d.popVstack(1)
	return d.decodeCallCommon(wasm.OpCallIndirect, int32(imm.TypeIdx), ft, elem)
}

// decodeCallCommon builds a call/call_indirect node: argument children
// (left to right) plus, for call_indirect, the table-index expression
// as the final child (callPlan, emit.go), with Imm(0)=callee and
// Imm(1)=result count.
func (d *funcDecoder) decodeCallCommon(op byte, callee int32, ft *wasm.FuncType, trailingElem []int32) error {
	args := d.popVstack(len(ft.Params))
	children := append(args, trailingElem...)
	numResults := len(ft.Results)

	if numResults == 1 {
		return d.pushAlloc(op, children, []int32{callee, int32(numResults)})
	}

	slots, err := d.allocSlots(numResults)
	if err != nil {
		return err
	}
	baseSlot := 0
	if numResults > 0 {
		baseSlot = slots[0]
	}
	ptr, err := d.store.Alloc(op, baseSlot, children, []int32{callee, int32(numResults)})
	if err != nil {
		return err
	}
	d.astPtrs = append(d.astPtrs, ptr)
	for _, s := range slots {
		d.vstack = append(d.vstack, s)
	}
	return nil
}

// decodeMisc handles the 0xFC-prefixed instructions this compiler
// supports: the eight saturating truncations and memory.copy/fill.
func (d *funcDecoder) decodeMisc(instr wasm.Instruction) error {
	imm, ok := instr.Imm.(wasm.MiscImm)
	if !ok {
		return internalf(errors.PhaseDecode, "0xFC instruction missing MiscImm")
	}
	switch imm.SubOpcode {
	case wasm.MiscI32TruncSatF32S:
		return d.decodeSatTrunc(OpI32TruncSatF32S)
	case wasm.MiscI32TruncSatF32U:
		return d.decodeSatTrunc(OpI32TruncSatF32U)
	case wasm.MiscI32TruncSatF64S:
		return d.decodeSatTrunc(OpI32TruncSatF64S)
	case wasm.MiscI32TruncSatF64U:
		return d.decodeSatTrunc(OpI32TruncSatF64U)
	case wasm.MiscI64TruncSatF32S:
		return d.decodeSatTrunc(OpI64TruncSatF32S)
	case wasm.MiscI64TruncSatF32U:
		return d.decodeSatTrunc(OpI64TruncSatF32U)
	case wasm.MiscI64TruncSatF64S:
		return d.decodeSatTrunc(OpI64TruncSatF64S)
	case wasm.MiscI64TruncSatF64U:
		return d.decodeSatTrunc(OpI64TruncSatF64U)
	case wasm.MiscMemoryCopy:
		return d.decodeMemBulk(OpMemCopy, imm)
	case wasm.MiscMemoryFill:
		return d.decodeMemBulk(OpMemFill, imm)
	}
	return unsupportedInstruction(d.funcIdx, byte(imm.SubOpcode))
}

func (d *funcDecoder) decodeSatTrunc(op byte) error {
	children := d.popVstack(1)
	return d.pushAlloc(op, children, nil)
}

// decodeMemBulk handles memory.copy (dst, src, n) and memory.fill (dst,
// val, n); both validate every memory index operand they carry is 0.
func (d *funcDecoder) decodeMemBulk(op byte, imm wasm.MiscImm) error {
	for _, mi := range imm.Operands {
		if mi != 0 {
			return unsupportedMemoryIndex(d.funcIdx, mi)
		}
	}
	children := d.popVstack(3)
	return d.emitAlloc(op, children, nil)
}

func (d *funcDecoder) decodeMemorySizeGrow(instr wasm.Instruction) error {
	mi, ok := instr.Imm.(wasm.MemoryIdxImm)
	if ok && mi.MemIdx != 0 {
		return unsupportedMemoryIndex(d.funcIdx, mi.MemIdx)
	}
	if instr.Opcode == wasm.OpMemorySize {
		return d.pushAlloc(wasm.OpMemorySize, nil, nil)
	}
	children := d.popVstack(1)
	return d.pushAlloc(wasm.OpMemoryGrow, children, nil)
}
