package compiler

import (
	"fmt"

	"github.com/wippyai/wasm-corecc/errors"
)

// unsupportedInstruction reports an opcode the decoder has no case for.
func unsupportedInstruction(funcIdx uint32, opcode byte) *errors.Error {
	return &errors.Error{
		Phase:  errors.PhaseDecode,
		Kind:   errors.KindUnsupportedInstruction,
		Detail: fmt.Sprintf("function %d: unsupported opcode 0x%02x", funcIdx, opcode),
		Value:  opcode,
	}
}

// unsupportedMemoryIndex reports a load/store/bulk-memory op targeting a
// memory index other than 0, which this compiler's Non-goals exclude.
func unsupportedMemoryIndex(funcIdx uint32, memIdx uint32) *errors.Error {
	return &errors.Error{
		Phase:  errors.PhaseDecode,
		Kind:   errors.KindUnsupportedMemoryIndex,
		Detail: fmt.Sprintf("function %d: unsupported memory index %d", funcIdx, memIdx),
		Value:  memIdx,
	}
}

// unsupportedTableIndex reports a call_indirect/table op targeting a table
// index other than 0.
func unsupportedTableIndex(funcIdx uint32, tableIdx uint32) *errors.Error {
	return &errors.Error{
		Phase:  errors.PhaseDecode,
		Kind:   errors.KindUnsupportedTableIndex,
		Detail: fmt.Sprintf("function %d: unsupported table index %d", funcIdx, tableIdx),
		Value:  tableIdx,
	}
}

// deepStack reports the virtual operand stack exceeding its fixed
// capacity of 255 live slots.
func deepStack(funcIdx uint32, what string, limit int) *errors.Error {
	return &errors.Error{
		Phase:  errors.PhaseDecode,
		Kind:   errors.KindDeepStack,
		Detail: fmt.Sprintf("function %d: %s exceeds limit of %d", funcIdx, what, limit),
		Value:  limit,
	}
}

// internalf reports a compiler invariant violation — a bug in this
// package, not a malformed or unsupported input module.
func internalf(phase errors.Phase, format string, args ...any) *errors.Error {
	return &errors.Error{
		Phase:  phase,
		Kind:   errors.KindInternal,
		Detail: fmt.Sprintf(format, args...),
	}
}
