package compiler

import "github.com/wippyai/wasm-corecc/wasm"

// memEffectful reports whether opcode op is a memory access the
// inlining barrier applies to: any load/store, or the two bulk-memory
// ops. memory_grow can detach previously
// materialized typed views, so a non-trivial producer evaluated after
// such an op (but inlined as if it ran before it) could observe stale
// memory — the barrier exists to rule that reordering out.
func memEffectful(op byte) bool {
	switch op {
	case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U,
		wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32,
		OpMemCopy, OpMemFill:
		return true
	}
	return false
}

// trivialProducer reports whether opcode op may be inlined into a
// memory-effectful consumer: integer constants
// and local.get, since none of them can observe a memory_grow that
// happens between their evaluation and the consumer's own access.
func trivialProducer(op byte) bool {
	switch op {
	case wasm.OpI32Const, wasm.OpI64Const, wasm.OpLocalGet:
		return true
	}
	return false
}

// resolveCoercionChild looks at child c of node ptr and reports the
// (holder node, holder child index, stack slot) to rewrite if that
// child is, or wraps, a virtual-stack-slot reference. TO_U32/TO_S64
// coercion nodes are transparent to the search: their own single child
// is reported instead of halting on the wrapper.
func resolveCoercionChild(store *Store, ptr int32, c int) (holderPtr int32, holderIdx int, slot int, ok bool) {
	word := store.Child(ptr, c)
	if ChildIsSlot(word) {
		return ptr, c, ChildSlot(word), true
	}
	op := store.Opcode(word)
	if (op == OpToU32 || op == OpToS64) && store.ChildCount(word) == 1 {
		inner := store.Child(word, 0)
		if ChildIsSlot(inner) {
			return word, 0, ChildSlot(inner), true
		}
	}
	return 0, 0, 0, false
}

// inlinableProducer reports whether a producer node can be folded into
// its consumer as a value expression at all. A call with zero or
// several results only exists as a statement scattering into
// consecutive slots (emitCallStmt); folding it into one consumer would
// drop every result but the first.
func inlinableProducer(store *Store, ptr int32) bool {
	op := store.Opcode(ptr)
	if op == wasm.OpCall || op == wasm.OpCallIndirect {
		return store.Imm(ptr, 1) == 1
	}
	return true
}

// producesSlot reports whether node ptr defines the value currently
// occupying stack position slot. For a multi-result call the header's
// OutSlot is only the first of a consecutive run of defined positions,
// so the whole range counts: the backward producer scan must stop at
// the call for any of them rather than walk past it to a stale earlier
// writer of the same position.
func producesSlot(store *Store, ptr int32, slot int) bool {
	out := store.OutSlot(ptr)
	if out == 0 {
		return false
	}
	op := store.Opcode(ptr)
	if op == wasm.OpCall || op == wasm.OpCallIndirect {
		n := int(store.Imm(ptr, 1))
		return slot >= out && slot < out+n
	}
	return out == slot
}

// inlineChild searches nodes[0:i] in reverse for the nearest producer of
// the stack slot referenced by node i's child c, and rewrites that
// child in place to point directly at the producer (nulling the
// producer's entry in nodes so it is not separately emitted).
func inlineChild(store *Store, nodes []int32, i int, isMemOp bool) {
	ptr := nodes[i]
	cc := store.ChildCount(ptr)
	for c := 0; c < cc; c++ {
		holderPtr, holderIdx, slot, ok := resolveCoercionChild(store, ptr, c)
		if !ok || slot == 0 {
			// Slot 0 is the dead-code dummy (see Frame); it has no
			// producer to find.
			continue
		}
		for j := i - 1; j >= 0; j-- {
			pp := nodes[j]
			if pp < 0 {
				continue
			}
			if !producesSlot(store, pp, slot) {
				continue
			}
			if !inlinableProducer(store, pp) {
				break
			}
			if isMemOp && !trivialProducer(store.Opcode(pp)) {
				break // producer found but barred from crossing; leave as a slot read
			}
			store.SetChild(holderPtr, holderIdx, NodeChildWord(pp))
			nodes[j] = -1
			break
		}
	}
}

// finalizeBasicBlock runs the per-block optimizer over the just-closed
// basic block's accumulated top-level node pointers.
// It mutates d.store and d.astPtrs in place: inlined producers are
// nulled out of d.astPtrs, and surviving nodes are peephole-rewritten.
//
// When extractTop is true, the node producing the virtual stack's
// current top is pulled out of the statement list entirely and
// returned as a standalone expression pointer, used by `if` and
// `br_if` to test a condition without materializing it into a slot
// first.
func (d *funcDecoder) finalizeBasicBlock(extractTop bool) (extracted int32, hasExtracted bool) {
	store := d.store
	nodes := d.astPtrs

	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i] < 0 {
			continue
		}
		isMemOp := memEffectful(store.Opcode(nodes[i]))
		inlineChild(store, nodes, i, isMemOp)
		peephole(store, nodes[i])
	}

	if extractTop && len(d.vstack) > 0 {
		top := d.vstack[len(d.vstack)-1]
		for i := len(nodes) - 1; i >= 0; i-- {
			if nodes[i] < 0 {
				continue
			}
			if !producesSlot(store, nodes[i], top) {
				continue
			}
			// The scan stops at the nearest definer either way: if it
			// can't be lifted out as a bare expression (a multi-result
			// call), the caller falls back to reading the slot the
			// statement already assigns.
			if inlinableProducer(store, nodes[i]) {
				extracted = nodes[i]
				hasExtracted = true
				nodes[i] = -1
				d.vstack = d.vstack[:len(d.vstack)-1]
			}
			break
		}
	}

	d.astPtrs = nodes
	return extracted, hasExtracted
}

// peephole rewrites a single finalized node in place. The rule set is
// deliberately small and grows incrementally; a rule must only ever
// apply transforms that preserve WebAssembly semantics for the
// emission target.
func peephole(store *Store, ptr int32) {
	switch store.Opcode(ptr) {
	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Or, wasm.OpI32Xor:
		foldConstShortCircuit(store, ptr)
	}
}

// foldConstShortCircuit rewrites `x + 0`, `x - 0`, `x | 0`, `x ^ 0` into
// a direct reference to x when the other operand is an inlined i32
// constant 0. It only fires when the constant operand has already been
// inlined as a child pointer (not a still-live slot reference), since a
// slot reference might be written again before this point at runtime in
// a way the static node can't see.
func foldConstShortCircuit(store *Store, ptr int32) {
	if store.ChildCount(ptr) != 2 {
		return
	}
	a, b := store.Child(ptr, 0), store.Child(ptr, 1)
	isZeroConst := func(w int32) bool {
		if ChildIsSlot(w) {
			return false
		}
		return store.Opcode(w) == wasm.OpI32Const && store.Imm(w, 0) == 0
	}
	op := store.Opcode(ptr)
	if (op == wasm.OpI32Add || op == wasm.OpI32Or || op == wasm.OpI32Xor) && isZeroConst(b) {
		rewriteAsAlias(store, ptr, a)
		return
	}
	if op == wasm.OpI32Add && isZeroConst(a) {
		rewriteAsAlias(store, ptr, b)
		return
	}
	if op == wasm.OpI32Sub && isZeroConst(b) {
		rewriteAsAlias(store, ptr, a)
	}
}

// OpAlias is a pseudo-op meaning "evaluate to child 0 unchanged"; the
// peephole optimizer uses it to splice a node out of the tree without
// relocating it (children further up still hold a pointer to ptr).
const OpAlias byte = 0xE0

func rewriteAsAlias(store *Store, ptr int32, child int32) {
	store.words[ptr] = packHeader(OpAlias, 1, store.OutSlot(ptr))
	store.words[ptr+1] = child
}
