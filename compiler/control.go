package compiler

import (
	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/wasm"
)

// sequence composes a run of statements into one: they execute in
// order, and a ctrl signal other than ctrlFallthrough (a branch
// reaching this point, or an error) stops the run immediately and
// propagates.
func sequence(stmts []stmt) stmt {
	return func(f *Frame) (ctrl, error) {
		for _, s := range stmts {
			c, err := s(f)
			if err != nil {
				return ctrl{}, err
			}
			if c.Branch {
				return c, nil
			}
		}
		return ctrlFallthrough, nil
	}
}

// nodeToStmt wraps one finalized top-level AST node as a runtime
// statement: a store writes memory directly, a multi/zero-result call
// scatters into several slots, anything else evaluates to a single
// value and (unless fully consumed elsewhere, OutSlot 0) writes it to
// its assigned virtual stack slot.
func (d *funcDecoder) nodeToStmt(ptr int32) (stmt, error) {
	op := d.store.Opcode(ptr)
	if isStore(op) {
		return d.emitStore(op, ptr)
	}
	if op == wasm.OpCall || op == wasm.OpCallIndirect {
		if numResults := int(d.store.Imm(ptr, 1)); numResults != 1 {
			return d.emitCallStmt(ptr)
		}
	}

	v, err := d.emitNode(ptr)
	if err != nil {
		return nil, err
	}
	outSlot := d.store.OutSlot(ptr)
	if outSlot == 0 {
		return func(f *Frame) (ctrl, error) {
			_, err := v(f)
			if err != nil {
				return ctrl{}, err
			}
			return ctrlFallthrough, nil
		}, nil
	}
	return func(f *Frame) (ctrl, error) {
		val, err := v(f)
		if err != nil {
			return ctrl{}, err
		}
		f.setSlot(outSlot, val)
		return ctrlFallthrough, nil
	}, nil
}

// flushBlock runs the per-block optimizer over the current basic
// block's accumulated nodes, compiles every surviving node into a
// runtime statement, and rewinds the Store and astPtrs for the next
// basic block. When extractTop is true (used by `if` and `br_if` to
// test a condition without first materializing it to a slot), the
// returned extractedVal is the condition's valueExpr.
func (d *funcDecoder) flushBlock(extractTop bool) (seq stmt, extractedVal valueExpr, hasExtracted bool, err error) {
	extracted, has := d.finalizeBasicBlock(extractTop)

	stmts := make([]stmt, 0, len(d.astPtrs))
	for _, ptr := range d.astPtrs {
		if ptr < 0 {
			continue
		}
		s, err := d.nodeToStmt(ptr)
		if err != nil {
			return nil, nil, false, err
		}
		stmts = append(stmts, s)
	}
	seq = sequence(stmts)

	if has {
		extractedVal, err = d.emitNode(extracted)
		if err != nil {
			return nil, nil, false, err
		}
	} else if extractTop && len(d.vstack) > 0 {
		// The top-of-stack producer lives in an earlier basic block (its
		// node is long gone from the Store), so the extracted condition
		// degrades to a plain slot read.
		top := d.vstack[len(d.vstack)-1]
		d.vstack = d.vstack[:len(d.vstack)-1]
		extractedVal = func(f *Frame) (uint64, error) { return f.slot(top), nil }
		has = true
	}

	d.store.Reset()
	d.astPtrs = d.astPtrs[:0]
	return seq, extractedVal, has, nil
}

// aliasInto records a node writing srcWord's value into virtual stack
// slot dstSlot, eliding the write entirely when srcWord already is a
// reference to dstSlot.
func (d *funcDecoder) aliasInto(dstSlot int, srcWord int32) error {
	if ChildIsSlot(srcWord) && ChildSlot(srcWord) == dstSlot {
		return nil
	}
	ptr, err := d.store.Alloc(OpAlias, dstSlot, []int32{srcWord}, nil)
	if err != nil {
		return err
	}
	d.astPtrs = append(d.astPtrs, ptr)
	return nil
}

// peekVstackTop reads the top n virtual stack slots without popping
// them, oldest-of-the-n first; used by br_if and br_table, which pass
// values to their target without consuming them from the stack the
// non-taken path continues to use.
func peekVstackTop(vstack []int, n int) []int32 {
	start := len(vstack) - n
	out := make([]int32, 0, n)
	if start < 0 {
		start = 0
	}
	for _, s := range vstack[start:] {
		out = append(out, SlotChildWord(s))
	}
	for len(out) < n {
		out = append(out, SlotChildWord(0))
	}
	return out
}

// skipDeadBlock consumes a dead block/loop/if region starting at pos
// (an opening control opcode) through its matching End, returning the
// index just past it. The instructions are structurally balanced but
// decode to nothing.
func skipDeadBlock(instrs []wasm.Instruction, pos int) int {
	depth := 0
	for pos < len(instrs) {
		switch instrs[pos].Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			depth--
			if depth == 0 {
				return pos + 1
			}
		}
		pos++
	}
	return pos
}

// closeBlockResults pops numResults values off the virtual stack (the
// block body's naturally produced results), alias-copies them into
// resultSlots, truncates the stack to parentTop, and pushes resultSlots
// back as the new stack top — depth after a block is always
// parentTop + numResults, whether the body fell through or ended dead.
// A body that ended dead left no fallthrough results to copy (its
// branch instruction already wrote whatever slots its target needs), so
// the pop/alias step is skipped entirely.
func (d *funcDecoder) closeBlockResults(nestedBody stmt, resultSlots []int, numResults, parentTop int, endedDead bool) (stmt, error) {
	if !endedDead {
		popped := d.popVstack(numResults)
		for i, w := range popped {
			if err := d.aliasInto(resultSlots[i], w); err != nil {
				return nil, err
			}
		}
	}
	if len(d.vstack) > parentTop {
		d.vstack = d.vstack[:parentTop]
	}
	d.vstack = append(d.vstack, resultSlots...)

	copyStmt, _, _, err := d.flushBlock(false)
	if err != nil {
		return nil, err
	}
	return sequence([]stmt{nestedBody, copyStmt}), nil
}

func brStmt(targetID int) stmt {
	return func(f *Frame) (ctrl, error) { return ctrl{Branch: true, Target: targetID}, nil }
}

// decodeOne dispatches one non-control-flow instruction to its decode
// method. Control-flow opcodes (block/loop/if/else/end/br/br_if/
// br_table/return/unreachable) are handled directly by
// decodeSeq, since they drive the recursive block structure rather than
// producing an isolated AST node.
func (d *funcDecoder) decodeOne(instr wasm.Instruction) error {
	op := instr.Opcode

	if IsSimple(op) {
		return d.decodeSimple(instr)
	}
	if HasAlignImm(op) {
		return d.decodeMemArg(instr)
	}

	switch op {
	case wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
		return d.decodeConst(instr)
	case wasm.OpSelect:
		return d.decodeSelect()
	case wasm.OpCall:
		return d.decodeCall(instr)
	case wasm.OpCallIndirect:
		return d.decodeCallIndirect(instr)
	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		return d.decodeMemorySizeGrow(instr)
	case wasm.OpPrefixMisc:
		return d.decodeMisc(instr)
	}

	return unsupportedInstruction(d.funcIdx, op)
}

// decodeSeq decodes instructions from pos up to (and consuming) the
// first End or Else belonging to this nesting level — every nested
// block/loop/if recursively consumes its own matching terminator, so by
// construction the first unmatched one found here is bf's own. It
// returns the compiled body statement, the index just past the
// terminator, and which terminator (End or Else) was hit, the latter
// distinguishing an `if`'s then-branch from a plain block/loop/function
// body.
func (d *funcDecoder) decodeSeq(instrs []wasm.Instruction, pos int) (body stmt, next int, term byte, err error) {
	var stmts []stmt

	for pos < len(instrs) {
		instr := instrs[pos]
		op := instr.Opcode

		if op == wasm.OpEnd || op == wasm.OpElse {
			flushStmt, _, _, ferr := d.flushBlock(false)
			if ferr != nil {
				return nil, 0, 0, ferr
			}
			stmts = append(stmts, flushStmt)
			return sequence(stmts), pos + 1, op, nil
		}

		// Dead code after an unconditional transfer: immediates were
		// already consumed by DecodeInstructions, so the instructions
		// are simply skipped, with no nodes emitted and no virtual
		// stack updates, until this block's End or Else. A nested
		// block/loop/if skips to its matching End in one step.
		if d.blocks.top().isDead {
			switch op {
			case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
				pos = skipDeadBlock(instrs, pos)
			default:
				pos++
			}
			continue
		}

		switch op {
		case wasm.OpBlock, wasm.OpLoop:
			s, nextPos, berr := d.decodeBlockOrLoop(instrs, pos, op == wasm.OpLoop)
			if berr != nil {
				return nil, 0, 0, berr
			}
			stmts = append(stmts, s)
			pos = nextPos

		case wasm.OpIf:
			s, nextPos, berr := d.decodeIf(instrs, pos)
			if berr != nil {
				return nil, 0, 0, berr
			}
			stmts = append(stmts, s)
			pos = nextPos

		case wasm.OpBr:
			s, berr := d.decodeBr(instr)
			if berr != nil {
				return nil, 0, 0, berr
			}
			stmts = append(stmts, s)
			d.blocks.top().isDead = true
			pos++

		case wasm.OpBrIf:
			s, berr := d.decodeBrIf(instr)
			if berr != nil {
				return nil, 0, 0, berr
			}
			stmts = append(stmts, s)
			pos++

		case wasm.OpBrTable:
			s, berr := d.decodeBrTable(instr)
			if berr != nil {
				return nil, 0, 0, berr
			}
			stmts = append(stmts, s)
			d.blocks.top().isDead = true
			pos++

		case wasm.OpReturn:
			s, berr := d.decodeReturn()
			if berr != nil {
				return nil, 0, 0, berr
			}
			stmts = append(stmts, s)
			d.blocks.top().isDead = true
			pos++

		case wasm.OpUnreachable:
			flushStmt, _, _, ferr := d.flushBlock(false)
			if ferr != nil {
				return nil, 0, 0, ferr
			}
			stmts = append(stmts, flushStmt, emitUnreachable())
			d.blocks.top().isDead = true
			pos++

		default:
			if derr := d.decodeOne(instr); derr != nil {
				return nil, 0, 0, derr
			}
			pos++
		}
	}

	// Ran off the end of the instruction stream without a closing End;
	// only reachable for a malformed module, since a well-formed
	// function body always balances block/loop/if with end.
	flushStmt, _, _, ferr := d.flushBlock(false)
	if ferr != nil {
		return nil, 0, 0, ferr
	}
	stmts = append(stmts, flushStmt)
	return sequence(stmts), pos, wasm.OpEnd, nil
}

// decodeBlockOrLoop handles both `block` and `loop`: they differ only
// in what a branch targeting them does at runtime (a block's branch
// exits it, a loop's branch restarts it) and in which slots
// jumpTargetSlots reports for that branch.
func (d *funcDecoder) decodeBlockOrLoop(instrs []wasm.Instruction, pos int, isLoop bool) (stmt, int, error) {
	flushStmt, _, _, err := d.flushBlock(false)
	if err != nil {
		return nil, 0, err
	}

	imm, ok := instrs[pos].Imm.(wasm.BlockImm)
	if !ok {
		return nil, 0, internalf(errors.PhaseLower, "block/loop missing BlockImm")
	}
	params, results := d.blockSig(imm.Type)
	argSlots := peekStackSlots(d.vstack, len(params))
	parentTop := len(d.vstack) - len(params)
	if parentTop < 0 {
		parentTop = 0
	}

	resultSlots, err := d.blockResultSlots(len(params), len(results))
	if err != nil {
		return nil, 0, err
	}

	kind := blockNormal
	if isLoop {
		kind = blockLoop
	}
	bf := d.blocks.push(kind, argSlots, resultSlots)
	nestedBody, next, _, err := d.decodeSeq(instrs, pos+1)
	d.blocks.pop()
	if err != nil {
		return nil, 0, err
	}

	closed, err := d.closeBlockResults(nestedBody, resultSlots, len(results), parentTop, bf.isDead)
	if err != nil {
		return nil, 0, err
	}

	var runBlock stmt
	if isLoop {
		runBlock = func(f *Frame) (ctrl, error) {
			for {
				c, err := closed(f)
				if err != nil {
					return ctrl{}, err
				}
				if c.Branch && c.Target == bf.id {
					continue
				}
				return c, nil
			}
		}
	} else {
		runBlock = func(f *Frame) (ctrl, error) {
			c, err := closed(f)
			if err != nil {
				return ctrl{}, err
			}
			if c.Branch && c.Target == bf.id {
				return ctrlFallthrough, nil
			}
			return c, nil
		}
	}

	return sequence([]stmt{flushStmt, runBlock}), next, nil
}

// peekStackSlots reads the top n live stack slots without popping,
// oldest-of-the-n first; used for a block/loop/if's argument slots,
// which remain on the stack rather than being consumed.
func peekStackSlots(vstack []int, n int) []int {
	start := len(vstack) - n
	if start < 0 {
		start = 0
	}
	out := append([]int(nil), vstack[start:]...)
	for len(out) < n {
		out = append([]int{0}, out...)
	}
	return out
}

// decodeIf handles `if`/`else`/`end`: the condition is extracted as a
// standalone value rather than materialized to a slot first, and the
// then/else branches each decode from the same starting virtual-stack
// snapshot since only one of them executes per call.
func (d *funcDecoder) decodeIf(instrs []wasm.Instruction, pos int) (stmt, int, error) {
	flushStmt, condVal, hasCond, err := d.flushBlock(true)
	if err != nil {
		return nil, 0, err
	}
	if !hasCond {
		return nil, 0, internalf(errors.PhaseLower, "if: missing condition operand")
	}

	imm, ok := instrs[pos].Imm.(wasm.BlockImm)
	if !ok {
		return nil, 0, internalf(errors.PhaseLower, "if missing BlockImm")
	}
	params, results := d.blockSig(imm.Type)
	argSlots := peekStackSlots(d.vstack, len(params))
	parentTop := len(d.vstack) - len(params)
	if parentTop < 0 {
		parentTop = 0
	}
	resultSlots, err := d.blockResultSlots(len(params), len(results))
	if err != nil {
		return nil, 0, err
	}
	savedVstack := append([]int(nil), d.vstack...)

	thenBf := d.blocks.push(blockIf, argSlots, resultSlots)
	thenBody, next, term, err := d.decodeSeq(instrs, pos+1)
	d.blocks.pop()
	if err != nil {
		return nil, 0, err
	}
	thenClosed, err := d.closeBlockResults(thenBody, resultSlots, len(results), parentTop, thenBf.isDead)
	if err != nil {
		return nil, 0, err
	}

	var elseClosed stmt
	elseID := -1
	if term == wasm.OpElse {
		d.vstack = append([]int(nil), savedVstack...)
		elseBf := d.blocks.push(blockIf, argSlots, resultSlots)
		elseBody, next2, _, eerr := d.decodeSeq(instrs, next)
		d.blocks.pop()
		if eerr != nil {
			return nil, 0, eerr
		}
		elseClosed, err = d.closeBlockResults(elseBody, resultSlots, len(results), parentTop, elseBf.isDead)
		if err != nil {
			return nil, 0, err
		}
		elseID = elseBf.id
		next = next2
	} else {
		// No explicit else: WASM validation requires params == results
		// for this shape, so falling through is just an identity copy.
		d.vstack = append([]int(nil), savedVstack...)
		if len(d.vstack) > parentTop {
			d.vstack = d.vstack[:parentTop]
		}
		for i := range resultSlots {
			if err := d.aliasInto(resultSlots[i], SlotChildWord(argSlots[i])); err != nil {
				return nil, 0, err
			}
		}
		d.vstack = append(d.vstack, resultSlots...)
		elseClosed, _, _, err = d.flushBlock(false)
		if err != nil {
			return nil, 0, err
		}
	}

	runIf := func(f *Frame) (ctrl, error) {
		cv, err := condVal(f)
		if err != nil {
			return ctrl{}, err
		}
		var c ctrl
		if cv != 0 {
			c, err = thenClosed(f)
		} else {
			c, err = elseClosed(f)
		}
		if err != nil {
			return ctrl{}, err
		}
		if c.Branch && (c.Target == thenBf.id || c.Target == elseID) {
			return ctrlFallthrough, nil
		}
		return c, nil
	}

	return sequence([]stmt{flushStmt, runIf}), next, nil
}

// decodeBr handles unconditional `br`: its target's slots are written
// unconditionally and the branch always propagates.
func (d *funcDecoder) decodeBr(instr wasm.Instruction) (stmt, error) {
	imm, ok := instr.Imm.(wasm.BranchImm)
	if !ok {
		return nil, internalf(errors.PhaseLower, "br missing BranchImm")
	}
	target, err := d.blocks.target(imm.LabelIdx)
	if err != nil {
		return nil, err
	}
	targetSlots := jumpTargetSlots(target)
	popped := d.popVstack(len(targetSlots))
	for i, w := range popped {
		if err := d.aliasInto(targetSlots[i], w); err != nil {
			return nil, err
		}
	}
	flushStmt, _, _, err := d.flushBlock(false)
	if err != nil {
		return nil, err
	}
	return sequence([]stmt{flushStmt, brStmt(target.id)}), nil
}

// decodeBrIf handles conditional `br_if`: the value operands a taken
// branch passes are written into the target's slots only on the taken
// path, and are NOT popped from the virtual stack, since the non-taken
// path continues to use them.
func (d *funcDecoder) decodeBrIf(instr wasm.Instruction) (stmt, error) {
	imm, ok := instr.Imm.(wasm.BranchImm)
	if !ok {
		return nil, internalf(errors.PhaseLower, "br_if missing BranchImm")
	}
	target, err := d.blocks.target(imm.LabelIdx)
	if err != nil {
		return nil, err
	}
	targetSlots := jumpTargetSlots(target)

	flushStmt, condVal, hasCond, err := d.flushBlock(true)
	if err != nil {
		return nil, err
	}
	if !hasCond {
		return nil, internalf(errors.PhaseLower, "br_if: missing condition operand")
	}

	peeked := peekVstackTop(d.vstack, len(targetSlots))
	for i, w := range peeked {
		if err := d.aliasInto(targetSlots[i], w); err != nil {
			return nil, err
		}
	}
	aliasFlush, _, _, err := d.flushBlock(false)
	if err != nil {
		return nil, err
	}

	targetID := target.id
	runBrIf := func(f *Frame) (ctrl, error) {
		cv, err := condVal(f)
		if err != nil {
			return ctrl{}, err
		}
		if cv == 0 {
			return ctrlFallthrough, nil
		}
		// The target-slot copies only happen on the taken path: an
		// untaken br_if must leave the target's slots alone, since for a
		// backward branch those are the loop's live argument slots.
		if c, err := aliasFlush(f); err != nil || c.Branch {
			return c, err
		}
		return ctrl{Branch: true, Target: targetID}, nil
	}

	return sequence([]stmt{flushStmt, runBrIf}), nil
}

// decodeBrTable handles `br_table`: unlike br/br_if, which target is
// taken is a runtime value, so the slot writes for the chosen target
// can't be expressed as static alias nodes; the compiled statement
// resolves the table index and scatters the popped operands at runtime
// instead.
func (d *funcDecoder) decodeBrTable(instr wasm.Instruction) (stmt, error) {
	imm, ok := instr.Imm.(wasm.BrTableImm)
	if !ok {
		return nil, internalf(errors.PhaseLower, "br_table missing BrTableImm")
	}
	defaultTarget, err := d.blocks.target(imm.Default)
	if err != nil {
		return nil, err
	}
	targets := make([]*BlockFrame, len(imm.Labels))
	for i, l := range imm.Labels {
		targets[i], err = d.blocks.target(l)
		if err != nil {
			return nil, err
		}
	}
	arity := len(jumpTargetSlots(defaultTarget))

	flushStmt, idxVal, hasIdx, err := d.flushBlock(true)
	if err != nil {
		return nil, err
	}
	if !hasIdx {
		return nil, internalf(errors.PhaseLower, "br_table: missing index operand")
	}

	peeked := peekVstackTop(d.vstack, arity)
	operandExprs := make([]valueExpr, arity)
	for i, w := range peeked {
		operandExprs[i], err = d.resolveWord(w)
		if err != nil {
			return nil, err
		}
	}
	d.popVstack(arity)

	defSlots := jumpTargetSlots(defaultTarget)
	defID := defaultTarget.id
	targetSlotsList := make([][]int, len(targets))
	targetIDs := make([]int, len(targets))
	for i, t := range targets {
		targetSlotsList[i] = jumpTargetSlots(t)
		targetIDs[i] = t.id
	}

	runBrTable := func(f *Frame) (ctrl, error) {
		iv, err := idxVal(f)
		if err != nil {
			return ctrl{}, err
		}
		vals := make([]uint64, len(operandExprs))
		for i, e := range operandExprs {
			v, err := e(f)
			if err != nil {
				return ctrl{}, err
			}
			vals[i] = v
		}
		idx := int(uint32(iv))
		slots, id := defSlots, defID
		if idx >= 0 && idx < len(targetSlotsList) {
			slots, id = targetSlotsList[idx], targetIDs[idx]
		}
		for i, s := range slots {
			f.setSlot(s, vals[i])
		}
		return ctrl{Branch: true, Target: id}, nil
	}

	return sequence([]stmt{flushStmt, runBrTable}), nil
}

// decodeReturn handles `return`: semantically identical to branching to
// the function's own implicit outer block, but addressed through
// d.funcBlock rather than a relative depth since `return` is not itself
// a br-style label index.
func (d *funcDecoder) decodeReturn() (stmt, error) {
	targetSlots := jumpTargetSlots(d.funcBlock)
	popped := d.popVstack(len(targetSlots))
	for i, w := range popped {
		if err := d.aliasInto(targetSlots[i], w); err != nil {
			return nil, err
		}
	}
	flushStmt, _, _, err := d.flushBlock(false)
	if err != nil {
		return nil, err
	}
	return sequence([]stmt{flushStmt, brStmt(d.funcBlock.id)}), nil
}
