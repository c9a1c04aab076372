package compiler

import "github.com/wippyai/wasm-corecc/wasm"

// Opcode metadata flags. Each opcode's metadata is a bitmask describing
// how the decoder's generic ("Simple") dispatch path should treat it,
// without a per-opcode switch case. Opcodes that need bespoke handling
// (control flow, memory access, calls, constants, select) are not
// marked Simple and are decoded explicitly instead.
const (
	metaPopMask   uint16 = 0x0003  // bits 0-1: operand count popped from the virtual stack (0-3)
	metaPushes    uint16 = 1 << 2  // produces one result pushed back onto the virtual stack
	metaSimple    uint16 = 1 << 3  // handled by the decoder's generic pop/alloc/push path
	metaHasIndex  uint16 = 1 << 4  // reads one trailing LEB128 index immediate (local/global index)
	metaHasAlign  uint16 = 1 << 5  // reads a memarg (align, offset) immediate
	metaBoolRes   uint16 = 1 << 6  // result is a comparison/test; decoder appends OpBoolToInt
	metaCoerceU32 uint16 = 1 << 7  // operands reinterpreted via OpToU32 before evaluation
	metaCoerceS64 uint16 = 1 << 8  // operands reinterpreted via OpToS64 before evaluation
	metaOmit      uint16 = 1 << 9  // no AST node is emitted (nop, drop)
	metaMask63    uint16 = 1 << 10 // shift/rotate amount is masked with &63 (i64 only)
)

// opMeta is the dense [256]uint16 table indexed by opcode byte. Only
// real WASM opcodes below the multi-byte prefixes (0xFB-0xFE)
// participate; prefixed instructions (saturating truncation, bulk memory)
// are decoded explicitly by decoder.go's misc-opcode switch and carry no
// entry here. Pseudo-ops (ast.go) also carry no entry: the lowering and
// emission stages that introduce them already know their shape.
var opMeta [256]uint16

func popN(n int) uint16 { return uint16(n) & metaPopMask }

func regMeta(op byte, flags uint16) { opMeta[op] = flags }

func init() {
	const (
		s  = metaSimple
		ps = metaPushes
	)

	// Parametric / variable access.
	regMeta(wasm.OpNop, popN(0)|s|metaOmit)
	regMeta(wasm.OpDrop, popN(1)|s|metaOmit)
	regMeta(wasm.OpLocalGet, popN(0)|ps|s|metaHasIndex)
	regMeta(wasm.OpLocalSet, popN(1)|s|metaHasIndex)
	regMeta(wasm.OpLocalTee, popN(1)|ps|s|metaHasIndex)
	regMeta(wasm.OpGlobalGet, popN(0)|ps|s|metaHasIndex)
	regMeta(wasm.OpGlobalSet, popN(1)|s|metaHasIndex)

	// i32 comparisons.
	regMeta(wasm.OpI32Eqz, popN(1)|ps|s|metaBoolRes)
	for _, op := range []byte{wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32LtS, wasm.OpI32GtS, wasm.OpI32LeS, wasm.OpI32GeS} {
		regMeta(op, popN(2)|ps|s|metaBoolRes)
	}
	for _, op := range []byte{wasm.OpI32LtU, wasm.OpI32GtU, wasm.OpI32LeU, wasm.OpI32GeU} {
		regMeta(op, popN(2)|ps|s|metaBoolRes|metaCoerceU32)
	}

	// i64 comparisons.
	regMeta(wasm.OpI64Eqz, popN(1)|ps|s|metaBoolRes)
	for _, op := range []byte{wasm.OpI64Eq, wasm.OpI64Ne, wasm.OpI64LtU, wasm.OpI64GtU, wasm.OpI64LeU, wasm.OpI64GeU} {
		regMeta(op, popN(2)|ps|s|metaBoolRes)
	}
	for _, op := range []byte{wasm.OpI64LtS, wasm.OpI64GtS, wasm.OpI64LeS, wasm.OpI64GeS} {
		regMeta(op, popN(2)|ps|s|metaBoolRes|metaCoerceS64)
	}

	// f32/f64 comparisons.
	for _, op := range []byte{
		wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Gt, wasm.OpF32Le, wasm.OpF32Ge,
		wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge,
	} {
		regMeta(op, popN(2)|ps|s|metaBoolRes)
	}

	// i32 arithmetic/bitwise.
	for _, op := range []byte{wasm.OpI32Clz, wasm.OpI32Ctz, wasm.OpI32Popcnt} {
		regMeta(op, popN(1)|ps|s)
	}
	for _, op := range []byte{
		wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul, wasm.OpI32DivS, wasm.OpI32RemS,
		wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor, wasm.OpI32Shl, wasm.OpI32ShrS,
		wasm.OpI32Rotl, wasm.OpI32Rotr,
	} {
		regMeta(op, popN(2)|ps|s)
	}
	for _, op := range []byte{wasm.OpI32DivU, wasm.OpI32RemU, wasm.OpI32ShrU} {
		regMeta(op, popN(2)|ps|s|metaCoerceU32)
	}

	// i64 arithmetic/bitwise.
	for _, op := range []byte{wasm.OpI64Clz, wasm.OpI64Ctz, wasm.OpI64Popcnt} {
		regMeta(op, popN(1)|ps|s)
	}
	for _, op := range []byte{wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul, wasm.OpI64DivU, wasm.OpI64RemU, wasm.OpI64And, wasm.OpI64Or, wasm.OpI64Xor} {
		regMeta(op, popN(2)|ps|s)
	}
	for _, op := range []byte{wasm.OpI64DivS, wasm.OpI64RemS} {
		regMeta(op, popN(2)|ps|s|metaCoerceS64)
	}
	regMeta(wasm.OpI64Shl, popN(2)|ps|s|metaMask63)
	regMeta(wasm.OpI64ShrU, popN(2)|ps|s|metaMask63)
	regMeta(wasm.OpI64ShrS, popN(2)|ps|s|metaCoerceS64|metaMask63)
	regMeta(wasm.OpI64Rotl, popN(2)|ps|s|metaMask63)
	regMeta(wasm.OpI64Rotr, popN(2)|ps|s|metaMask63)

	// f32/f64 arithmetic.
	for _, op := range []byte{
		wasm.OpF32Abs, wasm.OpF32Neg, wasm.OpF32Ceil, wasm.OpF32Floor, wasm.OpF32Trunc, wasm.OpF32Nearest, wasm.OpF32Sqrt,
		wasm.OpF64Abs, wasm.OpF64Neg, wasm.OpF64Ceil, wasm.OpF64Floor, wasm.OpF64Trunc, wasm.OpF64Nearest, wasm.OpF64Sqrt,
	} {
		regMeta(op, popN(1)|ps|s)
	}
	for _, op := range []byte{
		wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div, wasm.OpF32Min, wasm.OpF32Max, wasm.OpF32Copysign,
		wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div, wasm.OpF64Min, wasm.OpF64Max, wasm.OpF64Copysign,
	} {
		regMeta(op, popN(2)|ps|s)
	}

	// Conversions and sign extension: all unary.
	for _, op := range []byte{
		wasm.OpI32WrapI64,
		wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U,
		wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U,
		wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U,
		wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U, wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U, wasm.OpF32DemoteF64,
		wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U, wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U, wasm.OpF64PromoteF32,
		wasm.OpI32ReinterpretF32, wasm.OpI64ReinterpretF64, wasm.OpF32ReinterpretI32, wasm.OpF64ReinterpretI64,
		wasm.OpI32Extend8S, wasm.OpI32Extend16S, wasm.OpI64Extend8S, wasm.OpI64Extend16S, wasm.OpI64Extend32S,
	} {
		regMeta(op, popN(1)|ps|s)
	}

	// Memory loads/stores are not Simple (bespoke memarg + memory-index
	// bound checking in decoder.go) but still carry pop/push/align
	// metadata so the optimizer and emitter can query it uniformly.
	for _, op := range []byte{
		wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U, wasm.OpI64Load32S, wasm.OpI64Load32U,
	} {
		regMeta(op, popN(1)|ps|metaHasAlign)
	}
	for _, op := range []byte{
		wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32,
	} {
		regMeta(op, popN(2)|metaHasAlign)
	}
}

// PopCount returns how many virtual stack slots opcode op consumes.
func PopCount(op byte) int { return int(opMeta[op] & metaPopMask) }

// Pushes reports whether opcode op produces a result.
func Pushes(op byte) bool { return opMeta[op]&metaPushes != 0 }

// IsSimple reports whether the decoder's generic dispatch handles op.
func IsSimple(op byte) bool { return opMeta[op]&metaSimple != 0 }

// HasIndexImm reports whether op carries a trailing LEB128 index immediate.
func HasIndexImm(op byte) bool { return opMeta[op]&metaHasIndex != 0 }

// HasAlignImm reports whether op carries a memarg (align, offset) immediate.
func HasAlignImm(op byte) bool { return opMeta[op]&metaHasAlign != 0 }

// IsBoolResult reports whether op produces a boolean (comparison/test) result.
func IsBoolResult(op byte) bool { return opMeta[op]&metaBoolRes != 0 }

// CoercesU32 reports whether op's operands are reinterpreted as unsigned
// 32-bit values before evaluation.
func CoercesU32(op byte) bool { return opMeta[op]&metaCoerceU32 != 0 }

// CoercesS64 reports whether op's operands are reinterpreted as signed
// 64-bit values before evaluation.
func CoercesS64(op byte) bool { return opMeta[op]&metaCoerceS64 != 0 }

// IsOmitted reports whether op emits no AST node (nop, drop).
func IsOmitted(op byte) bool { return opMeta[op]&metaOmit != 0 }

// MasksShiftAmount reports whether op's shift/rotate amount is masked
// with &63 before use (i64 shifts/rotates only — i32 shifts are already
// masked to 5 bits by ordinary 32-bit semantics).
func MasksShiftAmount(op byte) bool { return opMeta[op]&metaMask63 != 0 }
