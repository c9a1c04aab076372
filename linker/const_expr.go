package linker

import (
	"math"

	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/wasm"
)

// evalConstExpr evaluates a constant initializer expression (a global's
// Init, or an element/data segment's Offset) to its uint64 bit pattern,
// per the WebAssembly Core Specification's restriction that such
// expressions contain exactly one of {i32,i64,f32,f64}.const or
// global.get of an imported immutable global, followed by end. This is
// instantiation-time bookkeeping; it never runs inside a compiled
// function body.
func evalConstExpr(code []byte, importedGlobals []uint64) (uint64, error) {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseLinking, errors.KindInvalidData, err, "decode const expr")
	}
	for _, instr := range instrs {
		switch imm := instr.Imm.(type) {
		case wasm.I32Imm:
			return uint64(uint32(imm.Value)), nil
		case wasm.I64Imm:
			return uint64(imm.Value), nil
		case wasm.F32Imm:
			return uint64(math.Float32bits(imm.Value)), nil
		case wasm.F64Imm:
			return math.Float64bits(imm.Value), nil
		case wasm.GlobalImm:
			if int(imm.GlobalIdx) >= len(importedGlobals) {
				return 0, errors.InvalidData(errors.PhaseLinking, nil, "global.get in const expr references a non-imported global")
			}
			return importedGlobals[imm.GlobalIdx], nil
		}
		if instr.Opcode == wasm.OpEnd {
			continue
		}
	}
	return 0, errors.InvalidData(errors.PhaseLinking, nil, "const expr has no constant instruction")
}
