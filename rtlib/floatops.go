package rtlib

import "math"

// F32Nearest rounds the f32 bits in v to the nearest integer, ties to
// even, per the WebAssembly nearest instruction (distinct from
// round-half-away-from-zero, which Go's math.Round implements).
func F32Nearest(v uint64) uint64 {
	f := math.Float32frombits(uint32(v))
	return uint64(math.Float32bits(float32(math.RoundToEven(float64(f)))))
}

// F64Nearest rounds v to the nearest integer, ties to even.
func F64Nearest(v uint64) uint64 {
	f := math.Float64frombits(v)
	return math.Float64bits(math.RoundToEven(f))
}

// F32Copysign returns a with b's sign bit.
func F32Copysign(a, b uint64) uint64 {
	fa := math.Float32frombits(uint32(a))
	fb := math.Float32frombits(uint32(b))
	return uint64(math.Float32bits(float32(math.Copysign(float64(fa), float64(fb)))))
}

// F64Copysign returns a with b's sign bit.
func F64Copysign(a, b uint64) uint64 {
	return math.Float64bits(math.Copysign(math.Float64frombits(a), math.Float64frombits(b)))
}

// F32Min implements WASM f32.min: NaN-propagating, -0 < +0.
func F32Min(a, b uint64) uint64 {
	fa, fb := math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b))
	return uint64(math.Float32bits(float32(math.Min(float64(fa), float64(fb)))))
}

// F32Max implements WASM f32.max: NaN-propagating, +0 > -0.
func F32Max(a, b uint64) uint64 {
	fa, fb := math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b))
	return uint64(math.Float32bits(float32(math.Max(float64(fa), float64(fb)))))
}

// F64Min implements WASM f64.min.
func F64Min(a, b uint64) uint64 {
	return math.Float64bits(math.Min(math.Float64frombits(a), math.Float64frombits(b)))
}

// F64Max implements WASM f64.max.
func F64Max(a, b uint64) uint64 {
	return math.Float64bits(math.Max(math.Float64frombits(a), math.Float64frombits(b)))
}
