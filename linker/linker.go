// Package linker resolves a parsed wasm.Module's imports against a set
// of host-provided functions and builds the runtime instance context
// (memory, table, globals) a compiled function closure reads and writes.
// It owns the lazy, cached, single-threaded compilation policy: each
// exported/called function is compiled with package compiler on first
// invocation and the result kept for the lifetime of the Instance.
package linker

import (
	"context"
	"fmt"

	"github.com/wippyai/wasm-corecc/compiler"
	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/instance"
	"github.com/wippyai/wasm-corecc/wasm"
)

// ImportFunc is a host function satisfying one of the module's imports.
type ImportFunc func(ctx context.Context, args []uint64) ([]uint64, error)

// Imports maps "module.name" import names to host implementations. A
// module whose imports are not all satisfied fails to instantiate.
type Imports struct {
	Funcs map[string]ImportFunc
}

func importKey(module, name string) string { return module + "." + name }

// Instance is a module bound to concrete memory, table, globals, and
// resolved imports, ready to compile and run its functions.
type Instance struct {
	mod *wasm.Module

	mem     *instance.Memory
	tbl     *instance.Table
	globals *instance.Globals

	importFuncs []ImportFunc // indexed by function index, length NumImportedFuncs()

	compiled map[uint32]compiler.CompiledFunc
	sigs     map[uint32]*compiler.FuncSig
}

// Instantiate resolves mod's imports against imports, allocates its
// memory/table/globals, applies active element and data segments, and
// returns a ready-to-call Instance. Instantiation runs every active
// segment's offset and every global's initializer as a constant
// expression (i32/i64/f32/f64.const, or global.get of an imported
// global).
func Instantiate(mod *wasm.Module, imports *Imports) (*Instance, error) {
	inst := &Instance{
		mod:      mod,
		compiled: make(map[uint32]compiler.CompiledFunc),
		sigs:     make(map[uint32]*compiler.FuncSig),
	}

	if err := inst.resolveImportFuncs(imports); err != nil {
		return nil, err
	}
	if err := inst.allocMemory(); err != nil {
		return nil, err
	}
	if err := inst.allocTable(); err != nil {
		return nil, err
	}
	if err := inst.initGlobals(); err != nil {
		return nil, err
	}
	if err := inst.applyElements(); err != nil {
		return nil, err
	}
	if err := inst.applyData(); err != nil {
		return nil, err
	}
	debugf("instantiated module: %d imported funcs, %d code bodies, %d globals, %d memory pages",
		len(inst.importFuncs), len(mod.Code), len(inst.globals.Values()), inst.mem.PageCount())
	return inst, nil
}

func (inst *Instance) resolveImportFuncs(imports *Imports) error {
	for _, imp := range inst.mod.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		var fn ImportFunc
		if imports != nil && imports.Funcs != nil {
			fn = imports.Funcs[importKey(imp.Module, imp.Name)]
		}
		if fn == nil {
			return errors.NotFound(errors.PhaseLinking, "import function", importKey(imp.Module, imp.Name))
		}
		inst.importFuncs = append(inst.importFuncs, fn)
	}
	return nil
}

func (inst *Instance) allocMemory() error {
	if len(inst.mod.Memories) == 0 {
		inst.mem = instance.NewMemory(0, 0)
		return nil
	}
	lim := inst.mod.Memories[0].Limits
	max := uint32(0)
	if lim.Max != nil {
		max = uint32(*lim.Max)
	}
	inst.mem = instance.NewMemory(uint32(lim.Min), max)
	return nil
}

func (inst *Instance) allocTable() error {
	if len(inst.mod.Tables) == 0 {
		inst.tbl = instance.NewTable(0)
		return nil
	}
	inst.tbl = instance.NewTable(uint32(inst.mod.Tables[0].Limits.Min))
	return nil
}

func (inst *Instance) initGlobals() error {
	numImported := inst.mod.NumImportedGlobals()
	total := numImported + len(inst.mod.Globals)
	inst.globals = instance.NewGlobals(total)

	imported := make([]uint64, 0, numImported)
	idx := uint32(0)
	for _, imp := range inst.mod.Imports {
		if imp.Desc.Kind != wasm.KindGlobal {
			continue
		}
		// Imported globals arrive pre-resolved to zero here: this engine
		// has no cross-instance global wiring, only host function imports.
		inst.globals.Set(idx, 0, imp.Desc.Global.Mutable)
		imported = append(imported, 0)
		idx++
	}

	for i, g := range inst.mod.Globals {
		v, err := evalConstExpr(g.Init, imported)
		if err != nil {
			return fmt.Errorf("global %d init: %w", numImported+i, err)
		}
		inst.globals.Set(uint32(numImported+i), v, g.Type.Mutable)
	}
	return nil
}

func (inst *Instance) applyElements() error {
	imported := inst.globalBitsForConstEval()
	for ei, el := range inst.mod.Elements {
		active, explicitTable := elementActiveTable(el.Flags)
		if !active {
			continue
		}
		if explicitTable && el.TableIdx != 0 {
			return errors.Unsupported(errors.PhaseLinking, "multiple tables")
		}
		offset, err := evalConstExpr(el.Offset, imported)
		if err != nil {
			return fmt.Errorf("element segment %d offset: %w", ei, err)
		}
		base := uint32(offset)

		if el.Exprs != nil {
			for i, expr := range el.Exprs {
				funcIdx, isNull, err := evalElemExpr(expr)
				if err != nil {
					return fmt.Errorf("element segment %d entry %d: %w", ei, i, err)
				}
				if isNull {
					continue
				}
				if !inst.tbl.Set(base+uint32(i), funcIdx) {
					return errors.OutOfBounds(errors.PhaseLinking, nil, int(base)+i, len(el.Exprs))
				}
			}
			continue
		}
		for i, funcIdx := range el.FuncIdxs {
			if !inst.tbl.Set(base+uint32(i), funcIdx) {
				return errors.OutOfBounds(errors.PhaseLinking, nil, int(base)+i, len(el.FuncIdxs))
			}
		}
	}
	return nil
}

// elementActiveTable reports whether flags mark an active element
// segment and, if so, which table it targets (flags 0/4 implicitly
// target table 0; 2/6 carry an explicit TableIdx the caller must read
// separately since this helper only classifies the flag bits).
func elementActiveTable(flags uint32) (active bool, explicitTable bool) {
	switch flags {
	case 0, 4:
		return true, false
	case 2, 6:
		return true, true
	default: // 1, 3, 5, 7: passive/declarative, not applied at instantiation
		return false, false
	}
}

func evalElemExpr(expr []byte) (funcIdx uint32, isNull bool, err error) {
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil {
		return 0, false, err
	}
	for _, instr := range instrs {
		switch imm := instr.Imm.(type) {
		case wasm.RefFuncImm:
			return imm.FuncIdx, false, nil
		case wasm.RefNullImm:
			return 0, true, nil
		}
	}
	return 0, true, nil
}

func (inst *Instance) applyData() error {
	imported := inst.globalBitsForConstEval()
	for di, d := range inst.mod.Data {
		if d.Flags == 1 {
			continue // passive: only reachable via memory.init, not decoded by this compiler
		}
		if d.Flags == 2 && d.MemIdx != 0 {
			return errors.Unsupported(errors.PhaseLinking, "multiple memories")
		}
		offset, err := evalConstExpr(d.Offset, imported)
		if err != nil {
			return fmt.Errorf("data segment %d offset: %w", di, err)
		}
		if !inst.mem.WriteBytes(uint32(offset), d.Init) {
			return errors.OutOfBounds(errors.PhaseLinking, nil, int(offset), len(d.Init))
		}
	}
	return nil
}

// globalBitsForConstEval returns the bit patterns of every imported
// global, in import order, for use by evalConstExpr's global.get case.
func (inst *Instance) globalBitsForConstEval() []uint64 {
	n := inst.mod.NumImportedGlobals()
	out := make([]uint64, n)
	copy(out, inst.globals.Values()[:n])
	return out
}

// CallFunc implements compiler.Caller: funcIdx below NumImportedFuncs()
// dispatches to the resolved host function; otherwise the target
// function is lazily compiled (and cached) then run in a fresh Frame.
func (inst *Instance) CallFunc(ctx context.Context, funcIdx uint32, args []uint64) ([]uint64, error) {
	numImported := uint32(inst.mod.NumImportedFuncs())
	if funcIdx < numImported {
		return inst.importFuncs[funcIdx](ctx, args)
	}

	fn, sig, err := inst.compileCached(funcIdx)
	if err != nil {
		return nil, err
	}
	fr := compiler.NewFrame(ctx, sig, args, inst.mem, inst.tbl, inst.globals.Values(), inst)
	return fn(fr)
}

func (inst *Instance) compileCached(funcIdx uint32) (compiler.CompiledFunc, *compiler.FuncSig, error) {
	if fn, ok := inst.compiled[funcIdx]; ok {
		return fn, inst.sigs[funcIdx], nil
	}
	debugf("compiling function %d on first use", funcIdx)
	fn, sig, err := compiler.Compile(inst.mod, funcIdx)
	if err != nil {
		return nil, nil, err
	}
	inst.compiled[funcIdx] = fn
	inst.sigs[funcIdx] = sig
	return fn, sig, nil
}

// Call invokes an exported-or-internal function by index, compiling it
// on first use.
func (inst *Instance) Call(ctx context.Context, funcIdx uint32, args []uint64) ([]uint64, error) {
	return inst.CallFunc(ctx, funcIdx, args)
}

// ExportedFuncIdx resolves an export name to a function index.
func (inst *Instance) ExportedFuncIdx(name string) (uint32, bool) {
	for _, e := range inst.mod.Exports {
		if e.Kind == wasm.KindFunc && e.Name == name {
			return e.Idx, true
		}
	}
	return 0, false
}

// FuncSig returns the parameter/result signature of funcIdx, compiling
// it if necessary so introspection (e.g. a CLI validating argument
// counts before a call) never needs a second code path from Call.
func (inst *Instance) FuncSig(funcIdx uint32) (*compiler.FuncSig, error) {
	numImported := uint32(inst.mod.NumImportedFuncs())
	if funcIdx < numImported {
		ft := inst.mod.GetFuncType(funcIdx)
		return &compiler.FuncSig{Params: ft.Params, Results: ft.Results}, nil
	}
	_, sig, err := inst.compileCached(funcIdx)
	return sig, err
}

// Memory exposes the instance's linear memory for host-side inspection
// (e.g. a CLI's memory dump); compiled code never calls through this.
func (inst *Instance) Memory() *instance.Memory { return inst.mem }

// Module returns the underlying parsed module.
func (inst *Instance) Module() *wasm.Module { return inst.mod }
