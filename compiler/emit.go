package compiler

import (
	"math"
	"math/bits"

	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/rtlib"
	"github.com/wippyai/wasm-corecc/wasm"
)

// valueExpr is the runtime form of one emitted AST node: evaluate it
// against a Frame to get its uint64 bit-pattern result (doc.go's
// uniform value representation). stmt is the runtime form of a
// side-effecting node (store, local.set used as a statement, a whole
// basic block) or of control-flow lowering: it returns a ctrl signal
// telling its caller whether a branch is propagating and, if so, to
// which block id (blockstack.go).
type valueExpr func(f *Frame) (uint64, error)
type stmt func(f *Frame) (ctrl, error)

// ErrUnreachable is returned by a compiled function when it executes a
// WebAssembly `unreachable` instruction. Unlike the Kind values in
// errors.go, this is a runtime trap, not a compilation failure, so it
// is a plain Go error rather than an errors.Error.
var ErrUnreachable = unreachableError{}

type unreachableError struct{}

func (unreachableError) Error() string { return "wasm: unreachable executed" }

// trapError is any other WebAssembly runtime trap an emitted closure
// can raise: out-of-bounds access, division by zero, signed-division
// overflow, an out-of-range integer truncation, or a missing
// call_indirect target. Like ErrUnreachable it is a plain Go error,
// not an errors.Error: a trap is the running program's behavior, not a
// compiler failure.
type trapError string

func (e trapError) Error() string { return "wasm: " + string(e) }

// emitUnreachable returns the statement for a WASM `unreachable`
// instruction: it always traps, regardless of anything lowered after it
// in the same basic block (the decoder truncates dead code following
// it, but this is the leaf behavior if reached directly).
func emitUnreachable() stmt {
	return func(f *Frame) (ctrl, error) { return ctrl{}, ErrUnreachable }
}

// emitNode compiles one AST node (and, recursively, any children it
// inlines via a node pointer rather than a stack-slot reference) into a
// valueExpr. This is the code emitter: the switch below is the per-node
// mapping table, one case per opcode, targeting Go closures instead of
// generated source text.
func (d *funcDecoder) emitNode(ptr int32) (valueExpr, error) {
	store := d.store
	op := store.Opcode(ptr)

	child := func(i int) (valueExpr, error) { return d.emitChild(ptr, i) }

	switch op {
	case OpAlias:
		return child(0)

	case wasm.OpI32Const:
		v := store.Imm(ptr, 0)
		return func(f *Frame) (uint64, error) { return uint64(uint32(v)), nil }, nil

	case wasm.OpI64Const:
		v := d.consts[store.Imm(ptr, 0)]
		u := uint64(v)
		return func(f *Frame) (uint64, error) { return u, nil }, nil

	case wasm.OpF32Const:
		u := uint64(uint32(store.Imm(ptr, 0)))
		return func(f *Frame) (uint64, error) { return u, nil }, nil

	case wasm.OpF64Const:
		u := uint64(uint32(store.Imm(ptr, 0))) | uint64(uint32(store.Imm(ptr, 1)))<<32
		return func(f *Frame) (uint64, error) { return u, nil }, nil

	case wasm.OpLocalGet:
		idx := int(store.Imm(ptr, 0))
		return func(f *Frame) (uint64, error) { return f.Locals[idx], nil }, nil

	case wasm.OpLocalSet, wasm.OpLocalTee:
		idx := int(store.Imm(ptr, 0))
		v, err := child(0)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			val, err := v(f)
			if err != nil {
				return 0, err
			}
			f.Locals[idx] = val
			return val, nil
		}, nil

	case wasm.OpGlobalGet:
		idx := int(store.Imm(ptr, 0))
		return func(f *Frame) (uint64, error) { return f.Global[idx], nil }, nil

	case wasm.OpGlobalSet:
		idx := int(store.Imm(ptr, 0))
		v, err := child(0)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			val, err := v(f)
			if err != nil {
				return 0, err
			}
			f.Global[idx] = val
			return 0, nil
		}, nil

	case OpBool, OpBoolNot, OpBoolToInt:
		v, err := child(0)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpBool:
			return func(f *Frame) (uint64, error) {
				x, err := v(f)
				if err != nil {
					return 0, err
				}
				if x != 0 {
					return 1, nil
				}
				return 0, nil
			}, nil
		case OpBoolNot:
			return func(f *Frame) (uint64, error) {
				x, err := v(f)
				if err != nil {
					return 0, err
				}
				if x == 0 {
					return 1, nil
				}
				return 0, nil
			}, nil
		default: // OpBoolToInt: already an integer 0/1 in this backend, identity.
			return v, nil
		}

	case OpToU32, OpToS64:
		// Reinterpretation of an already bit-accurate uint64 is a no-op
		// in this backend (doc.go); the real coercion work happens in
		// the consuming opcode's semantic function below.
		return child(0)

	case OpI32TruncSatF32S, OpI32TruncSatF32U, OpI32TruncSatF64S, OpI32TruncSatF64U,
		OpI64TruncSatF32S, OpI64TruncSatF32U, OpI64TruncSatF64S, OpI64TruncSatF64U:
		return d.emitSatTrunc(op, ptr)

	case OpMemCopy:
		dst, err := child(0)
		if err != nil {
			return nil, err
		}
		src, err := child(1)
		if err != nil {
			return nil, err
		}
		n, err := child(2)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			dv, err := dst(f)
			if err != nil {
				return 0, err
			}
			sv, err := src(f)
			if err != nil {
				return 0, err
			}
			nv, err := n(f)
			if err != nil {
				return 0, err
			}
			if !f.Mem.Copy(uint32(dv), uint32(sv), uint32(nv)) {
				return 0, trapError("memory.copy out of bounds")
			}
			return 0, nil
		}, nil

	case OpMemFill:
		// Children ordered fill-value before count: the fill value is
		// evaluated before the element count, left to right.
		dst, err := child(0)
		if err != nil {
			return nil, err
		}
		val, err := child(1)
		if err != nil {
			return nil, err
		}
		n, err := child(2)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			dv, err := dst(f)
			if err != nil {
				return 0, err
			}
			vv, err := val(f)
			if err != nil {
				return 0, err
			}
			nv, err := n(f)
			if err != nil {
				return 0, err
			}
			if !f.Mem.Fill(uint32(dv), byte(vv), uint32(nv)) {
				return 0, trapError("memory.fill out of bounds")
			}
			return 0, nil
		}, nil

	case wasm.OpMemorySize:
		return func(f *Frame) (uint64, error) { return uint64(f.Mem.PageCount()), nil }, nil

	case wasm.OpMemoryGrow:
		delta, err := child(0)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			dv, err := delta(f)
			if err != nil {
				return 0, err
			}
			return uint64(uint32(f.Mem.Grow(int32(uint32(dv))))), nil
		}, nil

	case wasm.OpSelect:
		// Condition evaluated first, then both value operands.
		cond, err := child(0)
		if err != nil {
			return nil, err
		}
		a, err := child(1)
		if err != nil {
			return nil, err
		}
		b, err := child(2)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			cv, err := cond(f)
			if err != nil {
				return 0, err
			}
			av, err := a(f)
			if err != nil {
				return 0, err
			}
			bv, err := b(f)
			if err != nil {
				return 0, err
			}
			if cv != 0 {
				return av, nil
			}
			return bv, nil
		}, nil

	case wasm.OpCall, wasm.OpCallIndirect:
		return d.emitCall(ptr)
	}

	if isLoad(op) {
		return d.emitLoad(op, ptr)
	}
	if isStore(op) {
		return nil, internalf(errors.PhaseEmit, "store opcode 0x%02x used as a value", op)
	}

	if fn, ok := binaryOps[op]; ok {
		a, err := child(0)
		if err != nil {
			return nil, err
		}
		b, err := child(1)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			av, err := a(f)
			if err != nil {
				return 0, err
			}
			bv, err := b(f)
			if err != nil {
				return 0, err
			}
			return fn(av, bv)
		}, nil
	}

	if fn, ok := unaryOps[op]; ok {
		a, err := child(0)
		if err != nil {
			return nil, err
		}
		return func(f *Frame) (uint64, error) {
			av, err := a(f)
			if err != nil {
				return 0, err
			}
			return fn(av)
		}, nil
	}

	return nil, internalf(errors.PhaseEmit, "no emitter for opcode 0x%02x", op)
}

// callPlan decodes the shared layout of OpCall/OpCallIndirect nodes:
// Imm(0) is the callee (func index, or type index for call_indirect),
// Imm(1) is the result count. Argument children come first; for
// call_indirect the final child is the table-index expression instead
// of an argument.
func (d *funcDecoder) callPlan(ptr int32) (argCount int, numResults int, indirect bool) {
	op := d.store.Opcode(ptr)
	cc := d.store.ChildCount(ptr)
	numResults = int(d.store.Imm(ptr, 1))
	if op == wasm.OpCallIndirect {
		return cc - 1, numResults, true
	}
	return cc, numResults, false
}

// emitCallInvoke builds the side-effecting part shared by both the
// single-result (emitNode) and multi/zero-result (emitCallStmt) paths:
// it evaluates every argument left to right, resolves the callee
// function index (for call_indirect, via the table), and invokes it.
func (d *funcDecoder) emitCallInvoke(ptr int32) (func(f *Frame) ([]uint64, error), error) {
	argCount, _, indirect := d.callPlan(ptr)
	args := make([]valueExpr, argCount)
	for i := range args {
		a, err := d.emitChild(ptr, i)
		if err != nil {
			return nil, err
		}
		args[i] = a
	}

	if !indirect {
		funcIdx := uint32(d.store.Imm(ptr, 0))
		return func(f *Frame) ([]uint64, error) {
			vals := make([]uint64, len(args))
			for i, a := range args {
				v, err := a(f)
				if err != nil {
					return nil, err
				}
				vals[i] = v
			}
			return f.Call.CallFunc(f.ctx, funcIdx, vals)
		}, nil
	}

	elemExpr, err := d.emitChild(ptr, argCount)
	if err != nil {
		return nil, err
	}
	return func(f *Frame) ([]uint64, error) {
		vals := make([]uint64, len(args))
		for i, a := range args {
			v, err := a(f)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		elem, err := elemExpr(f)
		if err != nil {
			return nil, err
		}
		funcIdx, ok := f.Tbl.FuncIndex(uint32(elem))
		if !ok {
			return nil, trapError("call_indirect: table element out of bounds or uninitialized")
		}
		return f.Call.CallFunc(f.ctx, funcIdx, vals)
	}, nil
}

// emitCall compiles a call/call_indirect node for use in value context
// (inlined as another node's child), valid only when the callee returns
// exactly one result (multi-result calls never get inlined; see
// emitCallStmt for that path).
func (d *funcDecoder) emitCall(ptr int32) (valueExpr, error) {
	invoke, err := d.emitCallInvoke(ptr)
	if err != nil {
		return nil, err
	}
	return func(f *Frame) (uint64, error) {
		results, err := invoke(f)
		if err != nil {
			return 0, err
		}
		if len(results) == 0 {
			return 0, nil
		}
		return results[0], nil
	}, nil
}

// emitCallStmt compiles a call/call_indirect node as a top-level
// statement, scattering every result into consecutive frame slots
// starting at the node's OutSlot. The decoder uses this path instead of
// emitNode whenever a call produces zero or more than one result, since
// those can't be represented by a single inlined value the way a
// one-result call can.
func (d *funcDecoder) emitCallStmt(ptr int32) (stmt, error) {
	invoke, err := d.emitCallInvoke(ptr)
	if err != nil {
		return nil, err
	}
	base := int(d.store.OutSlot(ptr))
	return func(f *Frame) (ctrl, error) {
		results, err := invoke(f)
		if err != nil {
			return ctrl{}, err
		}
		for i, v := range results {
			f.setSlot(base+i, v)
		}
		return ctrlFallthrough, nil
	}, nil
}

// emitChild resolves child word i of node ptr: a slot reference reads
// the Frame's variable at runtime, a node pointer recursively emits the
// inlined producer.
func (d *funcDecoder) emitChild(ptr int32, i int) (valueExpr, error) {
	return d.resolveWord(d.store.Child(ptr, i))
}

// resolveWord turns a raw child word into a valueExpr: a slot reference
// reads the Frame's runtime slot, a node pointer recursively emits the
// producer node it points at. Used both by emitChild and directly by
// the decoder for values it reads out of the virtual stack without an
// intervening AST node (br_table's dynamically dispatched operands,
// control.go).
func (d *funcDecoder) resolveWord(w int32) (valueExpr, error) {
	if ChildIsSlot(w) {
		slot := ChildSlot(w)
		return func(f *Frame) (uint64, error) { return f.slot(slot), nil }, nil
	}
	return d.emitNode(w)
}

func isLoad(op byte) bool {
	switch op {
	case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U:
		return true
	}
	return false
}

func isStore(op byte) bool {
	switch op {
	case wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		return true
	}
	return false
}

// emitLoad compiles a load node: child 0 is the address, imm 0 the
// static offset from the memarg.
func (d *funcDecoder) emitLoad(op byte, ptr int32) (valueExpr, error) {
	addr, err := d.emitChild(ptr, 0)
	if err != nil {
		return nil, err
	}
	offset := uint32(d.store.Imm(ptr, 0))

	read := func(f *Frame, a uint32) (uint64, error) {
		ea := a + offset
		switch op {
		case wasm.OpI32Load:
			v, ok := f.Mem.ReadU32(ea)
			return uint64(v), okOrTrap(ok)
		case wasm.OpI64Load:
			v, ok := f.Mem.ReadU64(ea)
			return v, okOrTrap(ok)
		case wasm.OpF32Load:
			v, ok := f.Mem.ReadU32(ea)
			return uint64(v), okOrTrap(ok)
		case wasm.OpF64Load:
			v, ok := f.Mem.ReadU64(ea)
			return v, okOrTrap(ok)
		case wasm.OpI32Load8S:
			v, ok := f.Mem.ReadU8(ea)
			return uint64(uint32(int32(int8(v)))), okOrTrap(ok)
		case wasm.OpI32Load8U:
			v, ok := f.Mem.ReadU8(ea)
			return uint64(v), okOrTrap(ok)
		case wasm.OpI32Load16S:
			v, ok := f.Mem.ReadU16(ea)
			return uint64(uint32(int32(int16(v)))), okOrTrap(ok)
		case wasm.OpI32Load16U:
			v, ok := f.Mem.ReadU16(ea)
			return uint64(v), okOrTrap(ok)
		case wasm.OpI64Load8S:
			v, ok := f.Mem.ReadU8(ea)
			return uint64(int64(int8(v))), okOrTrap(ok)
		case wasm.OpI64Load8U:
			v, ok := f.Mem.ReadU8(ea)
			return uint64(v), okOrTrap(ok)
		case wasm.OpI64Load16S:
			v, ok := f.Mem.ReadU16(ea)
			return uint64(int64(int16(v))), okOrTrap(ok)
		case wasm.OpI64Load16U:
			v, ok := f.Mem.ReadU16(ea)
			return uint64(v), okOrTrap(ok)
		case wasm.OpI64Load32S:
			v, ok := f.Mem.ReadU32(ea)
			return uint64(int64(int32(v))), okOrTrap(ok)
		case wasm.OpI64Load32U:
			v, ok := f.Mem.ReadU32(ea)
			return uint64(v), okOrTrap(ok)
		}
		return 0, internalf(errors.PhaseEmit, "unhandled load opcode 0x%02x", op)
	}

	return func(f *Frame) (uint64, error) {
		av, err := addr(f)
		if err != nil {
			return 0, err
		}
		return read(f, uint32(av))
	}, nil
}

func okOrTrap(ok bool) error {
	if ok {
		return nil
	}
	return trapError("memory access out of bounds")
}

// emitStore compiles a store node as a statement: children are address
// then value, mirroring loads.
func (d *funcDecoder) emitStore(op byte, ptr int32) (stmt, error) {
	addr, err := d.emitChild(ptr, 0)
	if err != nil {
		return nil, err
	}
	val, err := d.emitChild(ptr, 1)
	if err != nil {
		return nil, err
	}
	offset := uint32(d.store.Imm(ptr, 0))

	return func(f *Frame) (ctrl, error) {
		av, err := addr(f)
		if err != nil {
			return ctrl{}, err
		}
		vv, err := val(f)
		if err != nil {
			return ctrl{}, err
		}
		ea := uint32(av) + offset
		var ok bool
		switch op {
		case wasm.OpI32Store, wasm.OpF32Store:
			ok = f.Mem.WriteU32(ea, uint32(vv))
		case wasm.OpI64Store, wasm.OpF64Store:
			ok = f.Mem.WriteU64(ea, vv)
		case wasm.OpI32Store8, wasm.OpI64Store8:
			ok = f.Mem.WriteU8(ea, uint8(vv))
		case wasm.OpI32Store16, wasm.OpI64Store16:
			ok = f.Mem.WriteU16(ea, uint16(vv))
		case wasm.OpI64Store32:
			ok = f.Mem.WriteU32(ea, uint32(vv))
		}
		if !ok {
			return ctrl{}, trapError("memory access out of bounds")
		}
		return ctrlFallthrough, nil
	}, nil
}

// emitSatTrunc compiles one of the eight saturating truncation
// pseudo-opcodes, delegating the clamping semantics to rtlib. The
// dedicated node opcodes exist because the real
// WASM opcode is a 0xFC sub-opcode that doesn't fit the packed node's
// single opcode byte (ast.go).
func (d *funcDecoder) emitSatTrunc(op byte, ptr int32) (valueExpr, error) {
	src, err := d.emitChild(ptr, 0)
	if err != nil {
		return nil, err
	}
	f32 := op == OpI32TruncSatF32S || op == OpI32TruncSatF32U || op == OpI64TruncSatF32S || op == OpI64TruncSatF32U
	toF64 := func(v uint64) float64 {
		if f32 {
			return float64(math.Float32frombits(uint32(v)))
		}
		return math.Float64frombits(v)
	}
	var conv func(float64) uint64
	switch op {
	case OpI32TruncSatF32S, OpI32TruncSatF64S:
		conv = rtlib.SatTruncI32S
	case OpI32TruncSatF32U, OpI32TruncSatF64U:
		conv = rtlib.SatTruncI32U
	case OpI64TruncSatF32S, OpI64TruncSatF64S:
		conv = rtlib.SatTruncI64S
	case OpI64TruncSatF32U, OpI64TruncSatF64U:
		conv = rtlib.SatTruncI64U
	}
	return func(f *Frame) (uint64, error) {
		v, err := src(f)
		if err != nil {
			return 0, err
		}
		return conv(toF64(v)), nil
	}, nil
}

// binaryOps and unaryOps give each numeric/comparison/conversion opcode
// its semantic function. Most opcodes need no bespoke control-flow
// handling in the emitter, just the right bit-twiddling. TO_U32/TO_S64
// coercion is folded directly into the relevant comparisons/divisions
// below rather than materialized as a separate step, since both
// coercions are identity on the bit pattern (doc.go); only how a Go
// operator reads the bits changes.
var binaryOps = map[byte]func(a, b uint64) (uint64, error){
	wasm.OpI32Add:  wrap32(func(a, b uint32) uint32 { return a + b }),
	wasm.OpI32Sub:  wrap32(func(a, b uint32) uint32 { return a - b }),
	wasm.OpI32Mul:  wrap32(func(a, b uint32) uint32 { return a * b }),
	wasm.OpI32And:  wrap32(func(a, b uint32) uint32 { return a & b }),
	wasm.OpI32Or:   wrap32(func(a, b uint32) uint32 { return a | b }),
	wasm.OpI32Xor:  wrap32(func(a, b uint32) uint32 { return a ^ b }),
	wasm.OpI32Shl:  wrap32(func(a, b uint32) uint32 { return a << (b & 31) }),
	wasm.OpI32ShrU: wrap32(func(a, b uint32) uint32 { return a >> (b & 31) }),
	wasm.OpI32ShrS: func(a, b uint64) (uint64, error) {
		return uint64(uint32(int32(uint32(a)) >> (uint32(b) & 31))), nil
	},
	wasm.OpI32Rotl: wrap32(func(a, b uint32) uint32 { return bits.RotateLeft32(a, int(b)) }),
	wasm.OpI32Rotr: wrap32(func(a, b uint32) uint32 { return bits.RotateLeft32(a, -int(b)) }),
	wasm.OpI32DivS: trapDivS32,
	wasm.OpI32RemS: trapRemS32,
	wasm.OpI32DivU: trapDivU32,
	wasm.OpI32RemU: trapRemU32,

	wasm.OpI32Eq:  boolOp32(func(a, b uint32) bool { return a == b }),
	wasm.OpI32Ne:  boolOp32(func(a, b uint32) bool { return a != b }),
	wasm.OpI32LtS: boolOpS32(func(a, b int32) bool { return a < b }),
	wasm.OpI32GtS: boolOpS32(func(a, b int32) bool { return a > b }),
	wasm.OpI32LeS: boolOpS32(func(a, b int32) bool { return a <= b }),
	wasm.OpI32GeS: boolOpS32(func(a, b int32) bool { return a >= b }),
	wasm.OpI32LtU: boolOp32(func(a, b uint32) bool { return a < b }),
	wasm.OpI32GtU: boolOp32(func(a, b uint32) bool { return a > b }),
	wasm.OpI32LeU: boolOp32(func(a, b uint32) bool { return a <= b }),
	wasm.OpI32GeU: boolOp32(func(a, b uint32) bool { return a >= b }),

	wasm.OpI64Add: func(a, b uint64) (uint64, error) { return a + b, nil },
	wasm.OpI64Sub: func(a, b uint64) (uint64, error) { return a - b, nil },
	wasm.OpI64Mul: func(a, b uint64) (uint64, error) { return a * b, nil },
	wasm.OpI64And: func(a, b uint64) (uint64, error) { return a & b, nil },
	wasm.OpI64Or:  func(a, b uint64) (uint64, error) { return a | b, nil },
	wasm.OpI64Xor: func(a, b uint64) (uint64, error) { return a ^ b, nil },
	// Shift/rotate amounts are masked &63 by the decoder (metaMask63)
	// before the node is even built, so the semantic function just uses
	// the raw low bits.
	wasm.OpI64Shl:  func(a, b uint64) (uint64, error) { return a << (b & 63), nil },
	wasm.OpI64ShrU: func(a, b uint64) (uint64, error) { return a >> (b & 63), nil },
	wasm.OpI64ShrS: func(a, b uint64) (uint64, error) { return uint64(int64(a) >> (b & 63)), nil },
	wasm.OpI64Rotl: func(a, b uint64) (uint64, error) { return bits.RotateLeft64(a, int(b&63)), nil },
	wasm.OpI64Rotr: func(a, b uint64) (uint64, error) { return bits.RotateLeft64(a, -int(b&63)), nil },
	wasm.OpI64DivS: trapDivS64,
	wasm.OpI64RemS: trapRemS64,
	wasm.OpI64DivU: trapDivU64,
	wasm.OpI64RemU: trapRemU64,

	wasm.OpI64Eq:  boolOp64(func(a, b uint64) bool { return a == b }),
	wasm.OpI64Ne:  boolOp64(func(a, b uint64) bool { return a != b }),
	wasm.OpI64LtS: boolOpS64(func(a, b int64) bool { return a < b }),
	wasm.OpI64GtS: boolOpS64(func(a, b int64) bool { return a > b }),
	wasm.OpI64LeS: boolOpS64(func(a, b int64) bool { return a <= b }),
	wasm.OpI64GeS: boolOpS64(func(a, b int64) bool { return a >= b }),
	wasm.OpI64LtU: boolOp64(func(a, b uint64) bool { return a < b }),
	wasm.OpI64GtU: boolOp64(func(a, b uint64) bool { return a > b }),
	wasm.OpI64LeU: boolOp64(func(a, b uint64) bool { return a <= b }),
	wasm.OpI64GeU: boolOp64(func(a, b uint64) bool { return a >= b }),

	wasm.OpF32Add:      f32Binary(func(a, b float32) float32 { return a + b }),
	wasm.OpF32Sub:      f32Binary(func(a, b float32) float32 { return a - b }),
	wasm.OpF32Mul:      f32Binary(func(a, b float32) float32 { return a * b }),
	wasm.OpF32Div:      f32Binary(func(a, b float32) float32 { return a / b }),
	wasm.OpF32Min:      func(a, b uint64) (uint64, error) { return rtlib.F32Min(a, b), nil },
	wasm.OpF32Max:      func(a, b uint64) (uint64, error) { return rtlib.F32Max(a, b), nil },
	wasm.OpF32Copysign: func(a, b uint64) (uint64, error) { return rtlib.F32Copysign(a, b), nil },
	wasm.OpF32Eq:       boolOpF32(func(a, b float32) bool { return a == b }),
	wasm.OpF32Ne:       boolOpF32(func(a, b float32) bool { return a != b }),
	wasm.OpF32Lt:       boolOpF32(func(a, b float32) bool { return a < b }),
	wasm.OpF32Gt:       boolOpF32(func(a, b float32) bool { return a > b }),
	wasm.OpF32Le:       boolOpF32(func(a, b float32) bool { return a <= b }),
	wasm.OpF32Ge:       boolOpF32(func(a, b float32) bool { return a >= b }),

	wasm.OpF64Add:      f64Binary(func(a, b float64) float64 { return a + b }),
	wasm.OpF64Sub:      f64Binary(func(a, b float64) float64 { return a - b }),
	wasm.OpF64Mul:      f64Binary(func(a, b float64) float64 { return a * b }),
	wasm.OpF64Div:      f64Binary(func(a, b float64) float64 { return a / b }),
	wasm.OpF64Min:      func(a, b uint64) (uint64, error) { return rtlib.F64Min(a, b), nil },
	wasm.OpF64Max:      func(a, b uint64) (uint64, error) { return rtlib.F64Max(a, b), nil },
	wasm.OpF64Copysign: func(a, b uint64) (uint64, error) { return rtlib.F64Copysign(a, b), nil },
	wasm.OpF64Eq:       boolOpF64(func(a, b float64) bool { return a == b }),
	wasm.OpF64Ne:       boolOpF64(func(a, b float64) bool { return a != b }),
	wasm.OpF64Lt:       boolOpF64(func(a, b float64) bool { return a < b }),
	wasm.OpF64Gt:       boolOpF64(func(a, b float64) bool { return a > b }),
	wasm.OpF64Le:       boolOpF64(func(a, b float64) bool { return a <= b }),
	wasm.OpF64Ge:       boolOpF64(func(a, b float64) bool { return a >= b }),
}

var unaryOps = map[byte]func(a uint64) (uint64, error){
	wasm.OpI32Eqz: func(a uint64) (uint64, error) {
		if uint32(a) == 0 {
			return 1, nil
		}
		return 0, nil
	},
	wasm.OpI64Eqz: func(a uint64) (uint64, error) {
		if a == 0 {
			return 1, nil
		}
		return 0, nil
	},
	wasm.OpI32Clz:    func(a uint64) (uint64, error) { return rtlib.I32Clz(a), nil },
	wasm.OpI32Ctz:    func(a uint64) (uint64, error) { return rtlib.I32Ctz(a), nil },
	wasm.OpI32Popcnt: func(a uint64) (uint64, error) { return rtlib.I32Popcnt(a), nil },
	wasm.OpI64Clz:    func(a uint64) (uint64, error) { return rtlib.I64Clz(a), nil },
	wasm.OpI64Ctz:    func(a uint64) (uint64, error) { return rtlib.I64Ctz(a), nil },
	wasm.OpI64Popcnt: func(a uint64) (uint64, error) { return rtlib.I64Popcnt(a), nil },

	wasm.OpI32WrapI64:    func(a uint64) (uint64, error) { return rtlib.WrapI64(a), nil },
	wasm.OpI64ExtendI32S: func(a uint64) (uint64, error) { return rtlib.ExtendI32S(a), nil },
	wasm.OpI64ExtendI32U: func(a uint64) (uint64, error) { return rtlib.ExtendI32U(a), nil },
	wasm.OpI32Extend8S:   func(a uint64) (uint64, error) { return rtlib.Extend8S(a, false), nil },
	wasm.OpI32Extend16S:  func(a uint64) (uint64, error) { return rtlib.Extend16S(a, false), nil },
	wasm.OpI64Extend8S:   func(a uint64) (uint64, error) { return rtlib.Extend8S(a, true), nil },
	wasm.OpI64Extend16S:  func(a uint64) (uint64, error) { return rtlib.Extend16S(a, true), nil },
	wasm.OpI64Extend32S:  func(a uint64) (uint64, error) { return rtlib.Extend32S(a), nil },

	wasm.OpI32ReinterpretF32: func(a uint64) (uint64, error) { return rtlib.ReinterpretIdentity(a), nil },
	wasm.OpF32ReinterpretI32: func(a uint64) (uint64, error) { return rtlib.ReinterpretIdentity(a), nil },
	wasm.OpI64ReinterpretF64: func(a uint64) (uint64, error) { return rtlib.ReinterpretIdentity(a), nil },
	wasm.OpF64ReinterpretI64: func(a uint64) (uint64, error) { return rtlib.ReinterpretIdentity(a), nil },

	wasm.OpI32TruncF32S: trunc(rtlib.TruncI32S),
	wasm.OpI32TruncF32U: trunc(rtlib.TruncI32U),
	wasm.OpI32TruncF64S: trunc(rtlib.TruncF64I32S),
	wasm.OpI32TruncF64U: trunc(rtlib.TruncF64I32U),
	wasm.OpI64TruncF32S: trunc(rtlib.TruncI64S),
	wasm.OpI64TruncF32U: trunc(rtlib.TruncI64U),
	wasm.OpI64TruncF64S: trunc(rtlib.TruncF64I64S),
	wasm.OpI64TruncF64U: trunc(rtlib.TruncF64I64U),

	wasm.OpF32ConvertI32S: func(a uint64) (uint64, error) { return uint64(math.Float32bits(float32(int32(uint32(a))))), nil },
	wasm.OpF32ConvertI32U: func(a uint64) (uint64, error) { return uint64(math.Float32bits(float32(uint32(a)))), nil },
	wasm.OpF32ConvertI64S: func(a uint64) (uint64, error) { return uint64(math.Float32bits(float32(int64(a)))), nil },
	wasm.OpF32ConvertI64U: func(a uint64) (uint64, error) { return uint64(math.Float32bits(float32(a))), nil },
	wasm.OpF64ConvertI32S: func(a uint64) (uint64, error) { return math.Float64bits(float64(int32(uint32(a)))), nil },
	wasm.OpF64ConvertI32U: func(a uint64) (uint64, error) { return math.Float64bits(float64(uint32(a))), nil },
	wasm.OpF64ConvertI64S: func(a uint64) (uint64, error) { return math.Float64bits(float64(int64(a))), nil },
	wasm.OpF64ConvertI64U: func(a uint64) (uint64, error) { return math.Float64bits(float64(a)), nil },
	wasm.OpF32DemoteF64:   func(a uint64) (uint64, error) { return uint64(math.Float32bits(float32(math.Float64frombits(a)))), nil },
	wasm.OpF64PromoteF32:  func(a uint64) (uint64, error) { return math.Float64bits(float64(math.Float32frombits(uint32(a)))), nil },

	wasm.OpF32Abs:     f32Unary(func(a float32) float32 { return float32(math.Abs(float64(a))) }),
	wasm.OpF32Neg:     f32Unary(func(a float32) float32 { return -a }),
	wasm.OpF32Ceil:    f32Unary(func(a float32) float32 { return float32(math.Ceil(float64(a))) }),
	wasm.OpF32Floor:   f32Unary(func(a float32) float32 { return float32(math.Floor(float64(a))) }),
	wasm.OpF32Trunc:   f32Unary(func(a float32) float32 { return float32(math.Trunc(float64(a))) }),
	wasm.OpF32Sqrt:    f32Unary(func(a float32) float32 { return float32(math.Sqrt(float64(a))) }),
	wasm.OpF32Nearest: func(a uint64) (uint64, error) { return rtlib.F32Nearest(a), nil },

	wasm.OpF64Abs:     f64Unary(math.Abs),
	wasm.OpF64Neg:     f64Unary(func(a float64) float64 { return -a }),
	wasm.OpF64Ceil:    f64Unary(math.Ceil),
	wasm.OpF64Floor:   f64Unary(math.Floor),
	wasm.OpF64Trunc:   f64Unary(math.Trunc),
	wasm.OpF64Sqrt:    f64Unary(math.Sqrt),
	wasm.OpF64Nearest: func(a uint64) (uint64, error) { return rtlib.F64Nearest(a), nil },
}

func wrap32(fn func(a, b uint32) uint32) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) { return uint64(fn(uint32(a), uint32(b))), nil }
}

func boolOp32(fn func(a, b uint32) bool) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) { return boolU64(fn(uint32(a), uint32(b))), nil }
}

func boolOpS32(fn func(a, b int32) bool) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) { return boolU64(fn(int32(uint32(a)), int32(uint32(b)))), nil }
}

func boolOp64(fn func(a, b uint64) bool) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) { return boolU64(fn(a, b)), nil }
}

func boolOpS64(fn func(a, b int64) bool) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) { return boolU64(fn(int64(a), int64(b))), nil }
}

func boolOpF32(fn func(a, b float32) bool) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) {
		return boolU64(fn(math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))), nil
	}
}

func boolOpF64(fn func(a, b float64) bool) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) {
		return boolU64(fn(math.Float64frombits(a), math.Float64frombits(b))), nil
	}
}

func boolU64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func f32Binary(fn func(a, b float32) float32) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) {
		r := fn(math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))
		return uint64(math.Float32bits(r)), nil
	}
}

func f64Binary(fn func(a, b float64) float64) func(a, b uint64) (uint64, error) {
	return func(a, b uint64) (uint64, error) {
		return math.Float64bits(fn(math.Float64frombits(a), math.Float64frombits(b))), nil
	}
}

func f32Unary(fn func(a float32) float32) func(a uint64) (uint64, error) {
	return func(a uint64) (uint64, error) {
		return uint64(math.Float32bits(fn(math.Float32frombits(uint32(a))))), nil
	}
}

func f64Unary(fn func(a float64) float64) func(a uint64) (uint64, error) {
	return func(a uint64) (uint64, error) { return math.Float64bits(fn(math.Float64frombits(a))), nil }
}

func trunc(fn func(uint64) (uint64, bool)) func(a uint64) (uint64, error) {
	return func(a uint64) (uint64, error) {
		v, ok := fn(a)
		if !ok {
			return 0, trapError("integer trunc out of range")
		}
		return v, nil
	}
}

func trapDivS32(a, b uint64) (uint64, error) {
	x, y := int32(uint32(a)), int32(uint32(b))
	if y == 0 {
		return 0, trapError("i32.div_s by zero")
	}
	if x == math.MinInt32 && y == -1 {
		return 0, trapError("i32.div_s overflow")
	}
	return uint64(uint32(x / y)), nil
}

func trapRemS32(a, b uint64) (uint64, error) {
	x, y := int32(uint32(a)), int32(uint32(b))
	if y == 0 {
		return 0, trapError("i32.rem_s by zero")
	}
	if x == math.MinInt32 && y == -1 {
		return 0, nil
	}
	return uint64(uint32(x % y)), nil
}

func trapDivU32(a, b uint64) (uint64, error) {
	y := uint32(b)
	if y == 0 {
		return 0, trapError("i32.div_u by zero")
	}
	return uint64(uint32(a) / y), nil
}

func trapRemU32(a, b uint64) (uint64, error) {
	y := uint32(b)
	if y == 0 {
		return 0, trapError("i32.rem_u by zero")
	}
	return uint64(uint32(a) % y), nil
}

func trapDivS64(a, b uint64) (uint64, error) {
	x, y := int64(a), int64(b)
	if y == 0 {
		return 0, trapError("i64.div_s by zero")
	}
	if x == math.MinInt64 && y == -1 {
		return 0, trapError("i64.div_s overflow")
	}
	return uint64(x / y), nil
}

func trapRemS64(a, b uint64) (uint64, error) {
	x, y := int64(a), int64(b)
	if y == 0 {
		return 0, trapError("i64.rem_s by zero")
	}
	if x == math.MinInt64 && y == -1 {
		return 0, nil
	}
	return uint64(x % y), nil
}

func trapDivU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, trapError("i64.div_u by zero")
	}
	return a / b, nil
}

func trapRemU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, trapError("i64.rem_u by zero")
	}
	return a % b, nil
}
