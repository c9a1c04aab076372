package compiler_test

import (
	"context"
	stderrors "errors"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/wasm-corecc/engine"
	"github.com/wippyai/wasm-corecc/errors"
	"github.com/wippyai/wasm-corecc/linker"
	"github.com/wippyai/wasm-corecc/wat"
)

func TestDeadCodeDoesNotCountAgainstStackLimit(t *testing.T) {
	// 300 values pushed in unreachable code after a return would blow
	// the 255-slot limit if dead instructions still allocated stack
	// positions; only simultaneously-live slots may count.
	var b strings.Builder
	b.WriteString(`(module (func (export "dead") (result i32) (return (i32.const 7))`)
	for i := 0; i < 300; i++ {
		b.WriteString(` i32.const 1`)
	}
	b.WriteString(`))`)

	mod := mustLoad(t, b.String())
	if got := call(t, mod, "dead"); got[0] != 7 {
		t.Errorf("dead() = %d, want 7", got[0])
	}
}

func TestUnreachableKillsRestOfBlock(t *testing.T) {
	// The store after unreachable is never decoded into a live
	// statement; the function traps before touching memory.
	mod := mustLoad(t, `(module
		(memory 1)
		(func (export "boom")
			(unreachable)
			(i32.store8 (i32.const 0) (i32.const 1))))`)

	fn, err := mod.Function("boom")
	if err != nil {
		t.Fatalf("Function(boom): %v", err)
	}
	if _, err := fn.Call(context.Background(), nil); err == nil {
		t.Fatal("expected unreachable trap, got none")
	}
	if b, _ := mod.Instance().Memory().ReadU8(0); b != 0 {
		t.Errorf("mem[0] = %d, want 0 (dead store must not run)", b)
	}
}

func TestLoopSum(t *testing.T) {
	mod := mustLoad(t, `(module
		(func (export "sum") (param i32) (result i32)
			(local $acc i32) (local $i i32)
			(block $exit
				(loop $next
					(br_if $exit (i32.gt_s (local.get $i) (local.get 0)))
					(local.set $acc (i32.add (local.get $acc) (local.get $i)))
					(local.set $i (i32.add (local.get $i) (i32.const 1)))
					(br $next)))
			(local.get $acc)))`)

	if got := call(t, mod, "sum", 10); got[0] != 55 {
		t.Errorf("sum(10) = %d, want 55", got[0])
	}
	if got := call(t, mod, "sum", 0); got[0] != 0 {
		t.Errorf("sum(0) = %d, want 0", got[0])
	}
	if got := call(t, mod, "sum", 100); got[0] != 5050 {
		t.Errorf("sum(100) = %d, want 5050", got[0])
	}
}

func TestBrTable(t *testing.T) {
	mod := mustLoad(t, `(module
		(func (export "route") (param i32) (result i32)
			(block $a
				(block $b
					(block $c
						(br_table $c $b $a (local.get 0)))
					(return (i32.const 10)))
				(return (i32.const 20)))
			(i32.const 30)))`)

	cases := [][2]uint64{{0, 10}, {1, 20}, {2, 30}, {9, 30}}
	for _, c := range cases {
		if got := call(t, mod, "route", c[0]); got[0] != c[1] {
			t.Errorf("route(%d) = %d, want %d", c[0], got[0], c[1])
		}
	}
}

func TestCallIndirect(t *testing.T) {
	mod := mustLoad(t, `(module
		(type $binop (func (param i32 i32) (result i32)))
		(table 2 funcref)
		(elem (i32.const 0) $add $sub)
		(func $add (type $binop) (i32.add (local.get 0) (local.get 1)))
		(func $sub (type $binop) (i32.sub (local.get 0) (local.get 1)))
		(func (export "apply") (param i32 i32 i32) (result i32)
			(call_indirect (type $binop) (local.get 1) (local.get 2) (local.get 0))))`)

	if got := call(t, mod, "apply", 0, 7, 5); got[0] != 12 {
		t.Errorf("apply(add, 7, 5) = %d, want 12", got[0])
	}
	if got := call(t, mod, "apply", 1, 7, 5); got[0] != 2 {
		t.Errorf("apply(sub, 7, 5) = %d, want 2", got[0])
	}

	// Out-of-range table element is a runtime error, not a wrong answer.
	fn, err := mod.Function("apply")
	if err != nil {
		t.Fatalf("Function(apply): %v", err)
	}
	if _, err := fn.Call(context.Background(), []uint64{99, 1, 1}); err == nil {
		t.Error("apply with out-of-range table index: expected error, got none")
	}
}

func TestMutableGlobalPersistsAcrossCalls(t *testing.T) {
	mod := mustLoad(t, `(module
		(global $g (mut i32) (i32.const 5))
		(func (export "bump") (param i32) (result i32)
			(global.set $g (i32.add (global.get $g) (local.get 0)))
			(global.get $g)))`)

	if got := call(t, mod, "bump", 3); got[0] != 8 {
		t.Errorf("bump(3) = %d, want 8", got[0])
	}
	if got := call(t, mod, "bump", 4); got[0] != 12 {
		t.Errorf("bump(4) = %d, want 12 (global state carries over)", got[0])
	}
}

func TestSelect(t *testing.T) {
	mod := mustLoad(t, `(module
		(func (export "pick") (param i32 i32 i32) (result i32)
			(select (local.get 0) (local.get 1) (local.get 2))))`)

	if got := call(t, mod, "pick", 11, 22, 1); got[0] != 11 {
		t.Errorf("pick(11, 22, 1) = %d, want 11 (nonzero condition keeps first)", got[0])
	}
	if got := call(t, mod, "pick", 11, 22, 0); got[0] != 22 {
		t.Errorf("pick(11, 22, 0) = %d, want 22", got[0])
	}
}

func TestMultiValueCall(t *testing.T) {
	mod := mustLoad(t, `(module
		(func $swap (param i32 i32) (result i32 i32)
			(local.get 1) (local.get 0))
		(func (export "diff") (param i32 i32) (result i32)
			(i32.sub (call $swap (local.get 0) (local.get 1)))))`)

	// swap(10, 3) leaves (3, 10) on the stack; the subtraction sees them
	// in push order, so diff computes 3 - 10.
	got := call(t, mod, "diff", 10, 3)
	if int32(uint32(got[0])) != -7 {
		t.Errorf("diff(10, 3) = %d, want -7", int32(uint32(got[0])))
	}
}

func TestSaturatingTruncation(t *testing.T) {
	mod := mustLoad(t, `(module
		(func (export "sat") (param f64) (result i32)
			(i32.trunc_sat_f64_s (local.get 0))))`)

	cases := []struct {
		in   float64
		want int32
	}{
		{3.9, 3},
		{-3.9, -3},
		{1e15, math.MaxInt32},
		{-1e15, math.MinInt32},
		{math.NaN(), 0},
		{math.Inf(1), math.MaxInt32},
		{math.Inf(-1), math.MinInt32},
	}
	for _, c := range cases {
		got := call(t, mod, "sat", math.Float64bits(c.in))
		if int32(uint32(got[0])) != c.want {
			t.Errorf("sat(%g) = %d, want %d", c.in, int32(uint32(got[0])), c.want)
		}
	}
}

func TestDivisionByZeroTraps(t *testing.T) {
	mod := mustLoad(t, `(module
		(func (export "div") (param i32 i32) (result i32)
			(i32.div_s (local.get 0) (local.get 1))))`)

	if got := call(t, mod, "div", 7, 2); got[0] != 3 {
		t.Errorf("div(7, 2) = %d, want 3", got[0])
	}
	fn, err := mod.Function("div")
	if err != nil {
		t.Fatalf("Function(div): %v", err)
	}
	mustTrap := func(args []uint64, what string) {
		t.Helper()
		_, err := fn.Call(context.Background(), args)
		if err == nil {
			t.Errorf("%s: expected trap, got none", what)
			return
		}
		// A trap is the running program's behavior, not a compiler
		// failure: it must not surface as a structured errors.Error.
		var ce *errors.Error
		if stderrors.As(err, &ce) {
			t.Errorf("%s: trap surfaced as compiler error %v", what, ce)
		}
	}
	mustTrap([]uint64{1, 0}, "div(1, 0)")
	mustTrap([]uint64{0x80000000, 0xFFFFFFFF}, "div(MinInt32, -1)")
}

func TestNarrowStoreLoadSignExtends(t *testing.T) {
	mod := mustLoad(t, `(module
		(memory 1)
		(func (export "rt16s") (param i32) (result i32)
			(i32.store16 (i32.const 0) (local.get 0))
			(i32.load16_s (i32.const 0)))
		(func (export "rt8u") (param i32) (result i32)
			(i32.store8 (i32.const 4) (local.get 0))
			(i32.load8_u (i32.const 4))))`)

	got := call(t, mod, "rt16s", 0xFFFF)
	if int32(uint32(got[0])) != -1 {
		t.Errorf("rt16s(0xFFFF) = %d, want -1 (sign-extended)", int32(uint32(got[0])))
	}
	if got := call(t, mod, "rt8u", 0x1FF); got[0] != 0xFF {
		t.Errorf("rt8u(0x1FF) = %#x, want 0xFF (truncated, zero-extended)", got[0])
	}
}

func TestHostImport(t *testing.T) {
	imports := &linker.Imports{Funcs: map[string]linker.ImportFunc{
		"env.triple": func(ctx context.Context, args []uint64) ([]uint64, error) {
			return []uint64{uint64(uint32(args[0]) * 3)}, nil
		},
	}}
	bin, err := wat.Compile(`(module
		(import "env" "triple" (func $triple (param i32) (result i32)))
		(func (export "t9") (param i32) (result i32)
			(call $triple (call $triple (local.get 0)))))`)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	mod, err := engine.Load(bin, imports)
	if err != nil {
		t.Fatalf("engine.Load: %v", err)
	}
	if got := call(t, mod, "t9", 5); got[0] != 45 {
		t.Errorf("t9(5) = %d, want 45", got[0])
	}

	// The same module without its import satisfied must not instantiate.
	if _, err := engine.Load(bin, &linker.Imports{}); err == nil {
		t.Error("expected instantiation failure for unresolved import")
	}
}

func TestFloatSemantics(t *testing.T) {
	mod := mustLoad(t, `(module
		(func (export "near") (param f64) (result f64)
			(f64.nearest (local.get 0)))
		(func (export "csign") (param f64 f64) (result f64)
			(f64.copysign (local.get 0) (local.get 1))))`)

	// Ties round to even, not away from zero.
	if got := call(t, mod, "near", math.Float64bits(2.5)); got[0] != math.Float64bits(2.0) {
		t.Errorf("near(2.5) = %g, want 2", math.Float64frombits(got[0]))
	}
	if got := call(t, mod, "near", math.Float64bits(3.5)); got[0] != math.Float64bits(4.0) {
		t.Errorf("near(3.5) = %g, want 4", math.Float64frombits(got[0]))
	}
	got := call(t, mod, "csign", math.Float64bits(3.0), math.Float64bits(math.Copysign(0, -1)))
	if got[0] != math.Float64bits(-3.0) {
		t.Errorf("csign(3, -0) = %g, want -3 (negative zero carries its sign)", math.Float64frombits(got[0]))
	}
}

func TestI64Bitops(t *testing.T) {
	mod := mustLoad(t, `(module
		(func (export "pop") (param i64) (result i64)
			(i64.popcnt (local.get 0)))
		(func (export "ext8") (param i64) (result i64)
			(i64.extend8_s (local.get 0))))`)

	if got := call(t, mod, "pop", 0xFF00FF00FF00FF00); got[0] != 32 {
		t.Errorf("pop = %d, want 32", got[0])
	}
	got := call(t, mod, "ext8", 0x80)
	if int64(got[0]) != -128 {
		t.Errorf("ext8(0x80) = %d, want -128", int64(got[0]))
	}
}
