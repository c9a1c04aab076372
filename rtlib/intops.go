package rtlib

import "math/bits"

// I32Clz counts leading zero bits in the low 32 bits of v.
func I32Clz(v uint64) uint64 { return uint64(bits.LeadingZeros32(uint32(v))) }

// I32Ctz counts trailing zero bits in the low 32 bits of v.
func I32Ctz(v uint64) uint64 { return uint64(bits.TrailingZeros32(uint32(v))) }

// I32Popcnt counts set bits in the low 32 bits of v.
func I32Popcnt(v uint64) uint64 { return uint64(bits.OnesCount32(uint32(v))) }

// I32Rotl rotates the low 32 bits of v left by n bits. WASM does not
// require n to be pre-masked; Go's bits.RotateLeft32 already treats its
// shift argument modulo 32.
func I32Rotl(v, n uint64) uint64 { return uint64(bits.RotateLeft32(uint32(v), int(uint32(n)))) }

// I32Rotr rotates the low 32 bits of v right by n bits.
func I32Rotr(v, n uint64) uint64 { return uint64(bits.RotateLeft32(uint32(v), -int(uint32(n)))) }

// I64Clz counts leading zero bits in v.
func I64Clz(v uint64) uint64 { return uint64(bits.LeadingZeros64(v)) }

// I64Ctz counts trailing zero bits in v.
func I64Ctz(v uint64) uint64 { return uint64(bits.TrailingZeros64(v)) }

// I64Popcnt counts set bits in v.
func I64Popcnt(v uint64) uint64 { return uint64(bits.OnesCount64(v)) }

// I64Rotl rotates v left by n bits. The compiler already masks n with
// &63 for i64 shifts/rotates; RotateLeft64 also treats its argument
// modulo 64 on its own.
func I64Rotl(v, n uint64) uint64 { return bits.RotateLeft64(v, int(n&63)) }

// I64Rotr rotates v right by n bits.
func I64Rotr(v, n uint64) uint64 { return bits.RotateLeft64(v, -int(n&63)) }
