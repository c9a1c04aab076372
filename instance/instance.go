// Package instance implements the typed linear-memory, table, and
// global views a compiled function reads and writes at runtime. It is
// deliberately out of the core compiler's scope (compiler.Memory and
// compiler.Table are the interfaces the emitter depends on instead), so
// the compiler never sees how the backing storage is laid out.
package instance

const pageSize = 64 * 1024

// Memory is a growable linear memory with little-endian typed accessors.
// Every accessor bounds-checks and returns ok=false instead of panicking,
// since the emitted code turns a failed access into a runtime trap
// rather than a Go panic (compiler.okOrTrap).
type Memory struct {
	data     []byte
	maxPages uint32
}

// NewMemory allocates a Memory with minPages initial 64 KiB pages.
// maxPages of 0 means unbounded (bounded only by the WASM uint32
// address space).
func NewMemory(minPages, maxPages uint32) *Memory {
	return &Memory{
		data:     make([]byte, uint64(minPages)*pageSize),
		maxPages: maxPages,
	}
}

// PageCount returns the current size in 64 KiB pages.
func (m *Memory) PageCount() uint32 { return uint32(len(m.data) / pageSize) }

// Grow adds delta pages and returns the previous page count, or -1 if
// the growth would exceed maxPages. Growing detaches any typed view a
// caller may have
// cached over the old backing array — this is exactly why the optimizer's
// memory-aliasing barrier (compiler/optimize.go) exists.
func (m *Memory) Grow(delta int32) int32 {
	if delta < 0 {
		return -1
	}
	prev := m.PageCount()
	next := prev + uint32(delta)
	if next > 65536 || (m.maxPages != 0 && next > m.maxPages) {
		return -1
	}
	grown := make([]byte, uint64(next)*pageSize)
	copy(grown, m.data)
	m.data = grown
	return int32(prev)
}

func (m *Memory) bounds(addr uint32, size uint32) bool {
	end := uint64(addr) + uint64(size)
	return end <= uint64(len(m.data))
}

func (m *Memory) ReadU8(addr uint32) (uint8, bool) {
	if !m.bounds(addr, 1) {
		return 0, false
	}
	return m.data[addr], true
}

func (m *Memory) ReadU16(addr uint32) (uint16, bool) {
	if !m.bounds(addr, 2) {
		return 0, false
	}
	return uint16(m.data[addr]) | uint16(m.data[addr+1])<<8, true
}

func (m *Memory) ReadU32(addr uint32) (uint32, bool) {
	if !m.bounds(addr, 4) {
		return 0, false
	}
	b := m.data[addr : addr+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

func (m *Memory) ReadU64(addr uint32) (uint64, bool) {
	if !m.bounds(addr, 8) {
		return 0, false
	}
	b := m.data[addr : addr+8]
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, true
}

func (m *Memory) WriteU8(addr uint32, v uint8) bool {
	if !m.bounds(addr, 1) {
		return false
	}
	m.data[addr] = v
	return true
}

func (m *Memory) WriteU16(addr uint32, v uint16) bool {
	if !m.bounds(addr, 2) {
		return false
	}
	m.data[addr] = byte(v)
	m.data[addr+1] = byte(v >> 8)
	return true
}

func (m *Memory) WriteU32(addr uint32, v uint32) bool {
	if !m.bounds(addr, 4) {
		return false
	}
	b := m.data[addr : addr+4]
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	return true
}

func (m *Memory) WriteU64(addr uint32, v uint64) bool {
	if !m.bounds(addr, 8) {
		return false
	}
	b := m.data[addr : addr+8]
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return true
}

// Copy implements memory.copy, handling overlapping ranges the way Go's copy builtin already does
// for same-direction overlap.
func (m *Memory) Copy(dst, src, n uint32) bool {
	if !m.bounds(dst, n) || !m.bounds(src, n) {
		return false
	}
	copy(m.data[dst:uint64(dst)+uint64(n)], m.data[src:uint64(src)+uint64(n)])
	return true
}

// Fill implements memory.fill.
func (m *Memory) Fill(dst uint32, v byte, n uint32) bool {
	if !m.bounds(dst, n) {
		return false
	}
	region := m.data[dst : uint64(dst)+uint64(n)]
	for i := range region {
		region[i] = v
	}
	return true
}

// WriteBytes copies data into memory starting at addr, used to apply
// active data segments at instantiation time.
func (m *Memory) WriteBytes(addr uint32, data []byte) bool {
	if len(data) == 0 {
		return m.bounds(addr, 0)
	}
	if !m.bounds(addr, uint32(len(data))) {
		return false
	}
	copy(m.data[addr:uint64(addr)+uint64(len(data))], data)
	return true
}

// Bytes exposes the backing array for host-side inspection; it is not
// used by compiled code.
func (m *Memory) Bytes() []byte { return m.data }

// Table is the indirect-call table backing `call_indirect`. Elements
// are function
// indices into the owning instance's function space; a nil/unset
// element or an out-of-range index reports !ok, which the emitter turns
// into a runtime trap (compiler/emit.go's call_indirect path).
type Table struct {
	elems []int64 // -1 marks an unset element
}

// NewTable allocates a Table of size elements, all initially unset.
func NewTable(size uint32) *Table {
	t := &Table{elems: make([]int64, size)}
	for i := range t.elems {
		t.elems[i] = -1
	}
	return t
}

// Set assigns funcIdx to table element i, used when instantiating
// active/declarative element segments.
func (t *Table) Set(i uint32, funcIdx uint32) bool {
	if int(i) >= len(t.elems) {
		return false
	}
	t.elems[i] = int64(funcIdx)
	return true
}

// FuncIndex resolves element elemIdx to a function index.
func (t *Table) FuncIndex(elemIdx uint32) (uint32, bool) {
	if int(elemIdx) >= len(t.elems) {
		return 0, false
	}
	v := t.elems[elemIdx]
	if v < 0 {
		return 0, false
	}
	return uint32(v), true
}

// Globals holds every global variable's current bit-pattern value,
// indexed by global index across imported and module-defined globals.
type Globals struct {
	values  []uint64
	mutable []bool
}

// NewGlobals allocates storage for n globals, all initially zero.
func NewGlobals(n int) *Globals {
	return &Globals{values: make([]uint64, n), mutable: make([]bool, n)}
}

// Set installs the initial value and mutability of global idx.
func (g *Globals) Set(idx uint32, v uint64, mutable bool) {
	g.values[idx] = v
	g.mutable[idx] = mutable
}

// Values returns the backing slice a compiled Frame reads/writes
// directly (compiler.Frame.Global).
func (g *Globals) Values() []uint64 { return g.values }

// Mutable reports whether global idx may be written by global.set.
func (g *Globals) Mutable(idx uint32) bool { return g.mutable[idx] }
