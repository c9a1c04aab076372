package compiler

import (
	"context"

	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/wasm"
)

// FuncSig is the parameter/result arity and typing a compiled function's
// caller needs in order to prepare a Frame.
type FuncSig struct {
	Params  []wasm.ValType
	Results []wasm.ValType
	// NumLocals is len(Params) plus every declared local; a Frame's
	// Locals slice must have exactly this length, params pre-seeded with
	// the caller's arguments and the rest zeroed.
	NumLocals int
	// StackSlots is the high-water mark of virtual stack slots this
	// function used (slot 0 is the permanent dummy; NewFrame sizes the
	// runtime slots slice to StackSlots+1).
	StackSlots int
}

// NewFrame allocates a Frame ready to run a function compiled with sig:
// Locals sized to sig.NumLocals with params already copied in (every
// other local starts at its Go zero value, which is the bit pattern of
// a zeroed local of any wasm type, doc.go), and the runtime stack slots
// sized to sig.StackSlots+1.
func NewFrame(ctx context.Context, sig *FuncSig, args []uint64, mem Memory, tbl Table, global []uint64, call Caller) *Frame {
	locals := make([]uint64, sig.NumLocals)
	copy(locals, args)
	return &Frame{
		Locals: locals,
		slots:  make([]uint64, sig.StackSlots+1),
		Mem:    mem,
		Tbl:    tbl,
		Global: global,
		Call:   call,
		ctx:    ctx,
	}
}

// Compile translates the bytecode of one WebAssembly function into a
// CompiledFunc: Decoder -> per-block Optimizer -> Control-Flow Lowerer
// -> Code Emitter. It is synchronous and not reentrant: the caller
// (package linker) is responsible for lazy, cached, single-threaded
// invocation.
func Compile(mod *wasm.Module, funcIdx uint32) (CompiledFunc, *FuncSig, error) {
	ft := mod.GetFuncType(funcIdx)
	if ft == nil {
		return nil, nil, internalf(errors.PhaseDecode, "function %d: no type registered", funcIdx)
	}
	numImportedFuncs := uint32(mod.NumImportedFuncs())
	if funcIdx < numImportedFuncs {
		return nil, nil, internalf(errors.PhaseDecode, "function %d: imported functions are not compiled", funcIdx)
	}
	codeIdx := funcIdx - numImportedFuncs
	if int(codeIdx) >= len(mod.Code) {
		return nil, nil, internalf(errors.PhaseDecode, "function %d: missing code body", funcIdx)
	}
	body := &mod.Code[codeIdx]

	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return nil, nil, internalf(errors.PhaseDecode, "function %d: %v", funcIdx, err)
	}

	d := newFuncDecoder(mod, funcIdx, ft, body)

	resultSlots, err := d.allocSlots(len(ft.Results))
	if err != nil {
		return nil, nil, err
	}
	d.funcBlock = d.blocks.push(blockNormal, nil, resultSlots)

	body2, _, _, err := d.decodeSeq(instrs, 0)
	if err != nil {
		return nil, nil, err
	}
	// Falling off the end of the body leaves the function's results on
	// the virtual stack; copy them into the outer block's result slots
	// the same way any block fallthrough does. An explicit return/br to
	// the outer block wrote them already and skips this copy at runtime.
	closed, err := d.closeBlockResults(body2, resultSlots, len(ft.Results), 0, d.funcBlock.isDead)
	if err != nil {
		return nil, nil, err
	}
	d.blocks.pop()

	sig := &FuncSig{
		Params:     ft.Params,
		Results:    ft.Results,
		NumLocals:  len(d.locals),
		StackSlots: d.blocks.used,
	}
	debugf("compiled function %d: %d instructions, %d locals, %d stack slots",
		funcIdx, len(instrs), sig.NumLocals, sig.StackSlots)

	fn := func(fr *Frame) ([]uint64, error) {
		c, err := closed(fr)
		if err != nil {
			return nil, err
		}
		// A fallthrough off the end of the function body, or an explicit
		// return/br targeting the implicit outer block, both mean the
		// function is done and its result slots are populated.
		_ = c
		results := make([]uint64, len(resultSlots))
		for i, s := range resultSlots {
			results[i] = fr.slot(s)
		}
		return results, nil
	}

	return fn, sig, nil
}
