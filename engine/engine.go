// Package engine is the user-facing front door: load a module, look up
// a function by export name, and invoke it, lazily compiling on first
// invocation through package linker.
package engine

import (
	"context"
	"fmt"

	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/linker"
	"github.com/wippyai/wasm-corecc/wasm"
)

// Module wraps a linked instance and exposes its exported functions.
type Module struct {
	mod  *wasm.Module
	inst *linker.Instance
}

// Load parses raw WASM binary bytes and instantiates it against imports.
func Load(binary []byte, imports *linker.Imports) (*Module, error) {
	mod, err := wasm.ParseModule(binary)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "parse module")
	}
	inst, err := linker.Instantiate(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	debugf("loaded module: %d funcs, %d exports", len(mod.Funcs)+mod.NumImportedFuncs(), len(mod.Exports))
	return &Module{mod: mod, inst: inst}, nil
}

// Function is a callable handle to one exported function. Its display
// name follows wasm:<name> for a named export, or
// wasm:function[<codeIndex>] when called up by raw index.
type Function struct {
	name    string
	funcIdx uint32
	mod     *Module
}

// Name returns the function's display name.
func (f *Function) Name() string { return f.name }

// Call invokes the function, compiling it on first use. The compiled
// closure and its signature are cached on the owning Instance, so
// subsequent calls skip recompilation entirely.
func (f *Function) Call(ctx context.Context, args []uint64) ([]uint64, error) {
	debugf("calling %s", f.name)
	return f.mod.inst.Call(ctx, f.funcIdx, args)
}

// Sig returns the function's parameter/result signature, compiling it
// if this is the first reference to it.
func (f *Function) Sig() (params, results []wasm.ValType, err error) {
	sig, err := f.mod.inst.FuncSig(f.funcIdx)
	if err != nil {
		return nil, nil, err
	}
	return sig.Params, sig.Results, nil
}

// Function looks up an exported function by name. The returned handle
// is not compiled until Call or Sig is first invoked.
func (m *Module) Function(name string) (*Function, error) {
	idx, ok := m.inst.ExportedFuncIdx(name)
	if !ok {
		return nil, fmt.Errorf("export %q not found", name)
	}
	return &Function{name: fmt.Sprintf("wasm:%s", name), funcIdx: idx, mod: m}, nil
}

// FunctionByIndex looks up a function by raw function index, whether or
// not it is exported. A module-defined function is named by its code
// index (funcIdx minus the imported function count); an imported
// function keeps its function index in the name.
func (m *Module) FunctionByIndex(funcIdx uint32) *Function {
	nameIdx := funcIdx
	if n := uint32(m.mod.NumImportedFuncs()); funcIdx >= n {
		nameIdx = funcIdx - n
	}
	return &Function{name: fmt.Sprintf("wasm:function[%d]", nameIdx), funcIdx: funcIdx, mod: m}
}

// Exports lists every exported function name.
func (m *Module) Exports() []string {
	var names []string
	for _, e := range m.mod.Exports {
		if e.Kind == wasm.KindFunc {
			names = append(names, e.Name)
		}
	}
	return names
}

// Instance exposes the underlying linker.Instance for tooling that
// needs direct memory access.
func (m *Module) Instance() *linker.Instance { return m.inst }
