package rtlib

import "math"

// WrapI64 implements i32.wrap_i64: keep the low 32 bits, discard the rest.
func WrapI64(v uint64) uint64 { return v & 0xFFFFFFFF }

// ExtendI32S implements i64.extend_i32_s: sign-extend the low 32 bits to 64.
func ExtendI32S(v uint64) uint64 { return uint64(int64(int32(uint32(v)))) }

// ExtendI32U implements i64.extend_i32_u: the low 32 bits, zero-extended.
// Since every i32-producing op already masks its result to the low 32
// bits (see compiler/emit.go), this is the identity function; it is kept
// as a named call so the emitter's opcode table stays one-to-one.
func ExtendI32U(v uint64) uint64 { return v & 0xFFFFFFFF }

// Extend8S implements i32.extend8_s / i64.extend8_s: sign-extend the low
// byte. wide selects which width the result is masked back down to.
func Extend8S(v uint64, wide bool) uint64 {
	r := uint64(int64(int8(v)))
	if !wide {
		return r & 0xFFFFFFFF
	}
	return r
}

// Extend16S sign-extends the low 16 bits, analogous to Extend8S.
func Extend16S(v uint64, wide bool) uint64 {
	r := uint64(int64(int16(v)))
	if !wide {
		return r & 0xFFFFFFFF
	}
	return r
}

// Extend32S implements i64.extend32_s: sign-extend the low 32 bits to 64.
func Extend32S(v uint64) uint64 { return uint64(int64(int32(uint32(v)))) }

// ReinterpretIdentity implements every *.reinterpret_* opcode: the bit
// pattern a value carries on compiler's virtual stack already is its
// reinterpretation, so no transformation is needed. Kept as a named
// function purely so the emitter's opcode table has one entry per
// opcode rather than special-casing these four away.
func ReinterpretIdentity(v uint64) uint64 { return v }

// TruncI32S converts an f32 (low 32 bits of v) to a signed i32, trapping
// (ok=false) on NaN or out-of-range values per the WebAssembly spec.
func TruncI32S(v uint64) (uint64, bool) {
	f := float64(math.Float32frombits(uint32(v)))
	if math.IsNaN(f) || f < -2147483648 || f >= 2147483648 {
		return 0, false
	}
	return uint64(uint32(int32(f))), true
}

// TruncI32U converts an f32 to an unsigned i32, trapping on NaN or
// out-of-range values.
func TruncI32U(v uint64) (uint64, bool) {
	f := float64(math.Float32frombits(uint32(v)))
	if math.IsNaN(f) || f < 0 || f >= 4294967296 {
		return 0, false
	}
	return uint64(uint32(f)), true
}

// TruncF64I32S converts an f64 to a signed i32, trapping on NaN or
// out-of-range values.
func TruncF64I32S(v uint64) (uint64, bool) {
	f := math.Float64frombits(v)
	if math.IsNaN(f) || f < -2147483648 || f >= 2147483648 {
		return 0, false
	}
	return uint64(uint32(int32(f))), true
}

// TruncF64I32U converts an f64 to an unsigned i32.
func TruncF64I32U(v uint64) (uint64, bool) {
	f := math.Float64frombits(v)
	if math.IsNaN(f) || f < 0 || f >= 4294967296 {
		return 0, false
	}
	return uint64(uint32(f)), true
}

// TruncI64S converts an f32 to a signed i64.
func TruncI64S(v uint64) (uint64, bool) {
	f := float64(math.Float32frombits(uint32(v)))
	if math.IsNaN(f) || f < -9223372036854775808 || f >= 9223372036854775808 {
		return 0, false
	}
	return uint64(int64(f)), true
}

// TruncI64U converts an f32 to an unsigned i64.
func TruncI64U(v uint64) (uint64, bool) {
	f := float64(math.Float32frombits(uint32(v)))
	if math.IsNaN(f) || f < 0 || f >= 18446744073709551616 {
		return 0, false
	}
	return uint64(f), true
}

// TruncF64I64S converts an f64 to a signed i64.
func TruncF64I64S(v uint64) (uint64, bool) {
	f := math.Float64frombits(v)
	if math.IsNaN(f) || f < -9223372036854775808 || f >= 9223372036854775808 {
		return 0, false
	}
	return uint64(int64(f)), true
}

// TruncF64I64U converts an f64 to an unsigned i64.
func TruncF64I64U(v uint64) (uint64, bool) {
	f := math.Float64frombits(v)
	if math.IsNaN(f) || f < 0 || f >= 18446744073709551616 {
		return 0, false
	}
	return uint64(f), true
}

// satI32 clamps f into [lo, hi] and rounds toward zero, mapping NaN to 0,
// the shared body of every i32.trunc_sat_* variant.
func satI32(f float64, lo, hi float64) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	if f <= lo {
		return uint64(uint32(int32(lo)))
	}
	if f >= hi {
		return uint64(uint32(int32(hi)))
	}
	return uint64(uint32(int32(f)))
}

// SatTruncI32S implements i32.trunc_sat_f32_s / f64_s uniformly; f is
// already widened to float64 by the caller.
func SatTruncI32S(f float64) uint64 { return satI32(f, -2147483648, 2147483647) }

// SatTruncI32U implements i32.trunc_sat_f32_u / f64_u.
func SatTruncI32U(f float64) uint64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 4294967295 {
		return uint64(uint32(4294967295))
	}
	return uint64(uint32(f))
}

// SatTruncI64S implements i64.trunc_sat_f32_s / f64_s.
func SatTruncI64S(f float64) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	if f <= -9223372036854775808 {
		min := int64(math.MinInt64)
		return uint64(min)
	}
	if f >= 9223372036854775807 {
		return uint64(int64(math.MaxInt64))
	}
	return uint64(int64(f))
}

// SatTruncI64U implements i64.trunc_sat_f32_u / f64_u.
func SatTruncI64U(f float64) uint64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 18446744073709551615 {
		return math.MaxUint64
	}
	return uint64(f)
}
