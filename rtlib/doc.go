// Package rtlib implements the WebAssembly numeric primitives that do
// not map onto a single Go operator: bit counting, rotation, ties-to-
// even rounding, sign manipulation, saturating truncation, and the
// reinterpret/sign-extension casts. Package compiler's Code Emitter
// calls these directly from the closures it builds for the
// corresponding opcodes.
//
// Every value here is the raw uint64 bit pattern compiler uses on its
// virtual stack: i32 results occupy the low 32 bits, f32 results are
// math.Float32bits in the low 32 bits, and so on. Callers already know
// which lane of the pattern is meaningful; these functions do not
// re-validate it.
package rtlib
