// Package compiler translates the bytecode of a single WebAssembly
// function into a callable Go closure.
//
// The pipeline is: Decoder -> packed AST Store -> per-block Optimizer ->
// Control-Flow Lowerer -> Code Emitter. Compilation is synchronous,
// single-threaded, and per-function; functions are compiled lazily by
// package linker on first invocation and cached thereafter.
//
// Every numeric value flowing through a compiled function is carried as
// a raw uint64 bit pattern: i32 values occupy the low 32 bits, i64
// values the full 64 bits, f32 values are math.Float32bits in the low
// 32 bits, f64 values are math.Float64bits. This is the same
// representation wasm interpreters conventionally use for a tagged-free
// operand stack, and it makes the TO_U32/TO_S64 coercion pseudo-ops
// (see ast.go) free: reinterpreting bits as signed or unsigned does not
// change the bits, only how an operator reads them.
package compiler
