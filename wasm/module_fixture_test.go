package wasm_test

import "github.com/wippyai/wasm-corecc/wasm"

// Minimal hand-assembled WASM module builder used only by this package's
// own tests to construct decode fixtures (types/function/memory/global/
// export/start/code/data sections), covering the section subset the
// compiler's domain actually consumes. It builds the bytes directly
// instead of going through Module.Encode; it exists purely to build test
// inputs.

func vec(count int, items ...[]byte) []byte {
	out := encU32(uint32(count))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	return join([]byte{id}, encU32(uint32(len(payload))), payload)
}

func funcType(params, results []byte) []byte {
	return join(
		[]byte{wasm.FuncTypeByte},
		vec(len(params), paramBytes(params)...),
		vec(len(results), paramBytes(results)...),
	)
}

func paramBytes(types []byte) [][]byte {
	out := make([][]byte, len(types))
	for i, t := range types {
		out[i] = []byte{t}
	}
	return out
}

func typeSection(types ...[]byte) []byte {
	return section(wasm.SectionType, vec(len(types), types...))
}

func functionSection(typeIdxs ...uint32) []byte {
	items := make([][]byte, len(typeIdxs))
	for i, idx := range typeIdxs {
		items[i] = encU32(idx)
	}
	return section(wasm.SectionFunction, vec(len(items), items...))
}

func memoryLimits(min uint32, max uint32, hasMax bool) []byte {
	if !hasMax {
		return join([]byte{0x00}, encU32(min))
	}
	return join([]byte{0x01}, encU32(min), encU32(max))
}

func memorySection(mems ...[]byte) []byte {
	return section(wasm.SectionMemory, vec(len(mems), mems...))
}

func exportEntry(name string, kind byte, idx uint32) []byte {
	return join(encName(name), []byte{kind}, encU32(idx))
}

func encName(s string) []byte {
	return join(encU32(uint32(len(s))), []byte(s))
}

func exportSection(exports ...[]byte) []byte {
	return section(wasm.SectionExport, vec(len(exports), exports...))
}

func localDecl(count uint32, valType byte) []byte {
	return join(encU32(count), []byte{valType})
}

func funcBody(locals []byte, localCount int, code []byte) []byte {
	body := join(encU32(uint32(localCount)), locals, code, []byte{wasm.OpEnd})
	return join(encU32(uint32(len(body))), body)
}

func codeSection(bodies ...[]byte) []byte {
	return section(wasm.SectionCode, vec(len(bodies), bodies...))
}

func dataSegmentActive(offset []byte, init []byte) []byte {
	return join(encU32(0), offset, []byte{wasm.OpEnd}, encU32(uint32(len(init))), init)
}

func dataSection(segs ...[]byte) []byte {
	return section(wasm.SectionData, vec(len(segs), segs...))
}

func globalEntry(valType byte, mutable bool, init []byte) []byte {
	m := byte(0)
	if mutable {
		m = 1
	}
	return join([]byte{valType, m}, init, []byte{wasm.OpEnd})
}

func globalSection(globals ...[]byte) []byte {
	return section(wasm.SectionGlobal, vec(len(globals), globals...))
}

func startSection(funcIdx uint32) []byte {
	return section(wasm.SectionStart, encU32(funcIdx))
}

func customSection(name string, data []byte) []byte {
	return section(wasm.SectionCustom, join(encName(name), data))
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func buildModule(sections ...[]byte) []byte {
	return join(append([][]byte{header()}, sections...)...)
}
