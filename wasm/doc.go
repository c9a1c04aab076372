// Package wasm provides WebAssembly binary format parsing.
//
// This package implements a decoder for WebAssembly binary modules. It
// is the module-parser collaborator consumed by package compiler:
// ParseModule produces the type/function/code sections that
// compiler.Compile decodes one function at a time; custom sections,
// the name section included, are kept as raw bytes. Everything beyond
// the MVP feature set (GC, SIMD, threads, multi-memory) is parsed so
// the decoder does not choke on sections that carry it, but is
// rejected by package compiler if a function body actually uses it.
//
// # Supported Features
//
//	WebAssembly 2.0:
//	  - Core value types (i32, i64, f32, f64)
//	  - Functions, tables, memories, globals
//	  - Control flow, calls, local/global access
//	  - Memory and table operations
//	  - Import/export of all definitions
//
//	Post-2.0 Proposals:
//	  - GC (structs, arrays, typed references, heap types)
//	  - Exception handling (tags, try/catch, throw)
//	  - Tail calls (return_call, return_call_indirect)
//	  - SIMD (128-bit vector operations, v128 type)
//	  - Threads (atomic operations, shared memory)
//	  - Bulk memory (memory.copy, memory.fill, data.drop)
//	  - Reference types (funcref, externref, ref.null, ref.is_null)
//	  - Multi-memory (multiple memory instances)
//	  - Memory64 (64-bit memory addressing)
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse with validation enabled:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// # Module Structure
//
// A parsed module contains all sections:
//
//	module.Types      []FuncType    // Function signatures
//	module.Funcs      []uint32      // Type indices for functions
//	module.Tables     []TableType   // Table definitions
//	module.Memories   []MemoryType  // Memory definitions
//	module.Globals    []Global      // Global definitions
//	module.Imports    []Import      // Imported definitions
//	module.Exports    []Export      // Exported definitions
//	module.Code       []FuncBody    // Function bodies
//	module.Data       []DataSegment // Data segments
//	module.Elements   []Element     // Element segments
//
// # Instructions
//
// Decode instructions from bytecode:
//
//	instructions, err := wasm.DecodeInstructions(code)
//	for _, instr := range instructions {
//	    fmt.Printf("0x%02x\n", instr.Opcode)
//	}
//
// # Validation
//
// Validate module structure:
//
//	if err := module.Validate(); err != nil {
//	    log.Printf("invalid module: %v", err)
//	}
//
// Validation checks:
//   - Type, function, table, memory, global and tag indices are in bounds
//   - Export names are unique
//   - The start function has type [] -> []
//   - The data count and code section counts agree with their sections
//   - Memory limits are valid
//
// Table limits and function bodies are not checked. Invalid UTF-8 in
// import/export names is rejected earlier, by ParseModule.
//
// # LEB128 Encoding
//
// The package provides LEB128 utilities used throughout:
//
//	r := bytes.NewReader(data)
//	u, err := wasm.ReadLEB128u(r)  // Unsigned, uint32
//	s, err := wasm.ReadLEB128s(r)  // Signed, int32
package wasm
