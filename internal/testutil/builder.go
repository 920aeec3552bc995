// Package testutil builds small guest modules in memory for tests, so no
// binary fixtures have to be checked in.
package testutil

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ValType is a WebAssembly core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	externFunc   = 0x00
	externMemory = 0x02
)

type funcType struct {
	params  []ValType
	results []ValType
}

type importEntry struct {
	module, name string
	typeIdx      uint32
}

type funcEntry struct {
	export  string
	typeIdx uint32
	locals  []ValType
	body    []byte
}

type dataEntry struct {
	offset int32
	bytes  []byte
}

// Builder assembles a core WebAssembly module. Imports must be declared before
// any function is defined so that function indices stay stable.
type Builder struct {
	types   []funcType
	imports []importEntry
	funcs   []funcEntry
	globals []int32
	data    []dataEntry

	memPages     uint32
	memMax       uint32
	hasMemory    bool
	hasMax       bool
	exportMemory string
}

// NewBuilder returns an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) typeIndex(params, results []ValType) uint32 {
	for i, t := range b.types {
		if sameValTypes(t.params, params) && sameValTypes(t.results, results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, funcType{params: params, results: results})
	return uint32(len(b.types) - 1)
}

// Import declares an imported function and returns its function index.
func (b *Builder) Import(module, name string, params, results []ValType) uint32 {
	if len(b.funcs) > 0 {
		panic(fmt.Sprintf("testutil: import %s.%s declared after functions", module, name))
	}
	b.imports = append(b.imports, importEntry{module: module, name: name, typeIdx: b.typeIndex(params, results)})
	return uint32(len(b.imports) - 1)
}

// Func defines a function and returns its index. An empty export name keeps
// the function private.
func (b *Builder) Func(export string, params, results, locals []ValType, body ...[]byte) uint32 {
	var code []byte
	for _, instr := range body {
		code = append(code, instr...)
	}
	b.funcs = append(b.funcs, funcEntry{
		export:  export,
		typeIdx: b.typeIndex(params, results),
		locals:  locals,
		body:    code,
	})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Memory declares the module's memory with a minimum size in pages. An empty
// export name keeps it private.
func (b *Builder) Memory(pages uint32, export string) *Builder {
	b.hasMemory = true
	b.memPages = pages
	b.exportMemory = export
	return b
}

// MemoryMax caps the declared memory.
func (b *Builder) MemoryMax(pages uint32) *Builder {
	b.hasMax = true
	b.memMax = pages
	return b
}

// Global declares a mutable i32 global and returns its index.
func (b *Builder) Global(init int32) uint32 {
	b.globals = append(b.globals, init)
	return uint32(len(b.globals) - 1)
}

// Data places bytes at a fixed offset of memory 0.
func (b *Builder) Data(offset int32, bytes []byte) *Builder {
	b.data = append(b.data, dataEntry{offset: offset, bytes: bytes})
	return b
}

// Build encodes the module in the binary format.
func (b *Builder) Build() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.types) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.types)))
		for _, t := range b.types {
			s = append(s, 0x60)
			s = appendValTypes(s, t.params)
			s = appendValTypes(s, t.results)
		}
		out = appendSection(out, sectionType, s)
	}

	if len(b.imports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.imports)))
		for _, imp := range b.imports {
			s = appendName(s, imp.module)
			s = appendName(s, imp.name)
			s = append(s, externFunc)
			s = appendU32(s, imp.typeIdx)
		}
		out = appendSection(out, sectionImport, s)
	}

	if len(b.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			s = appendU32(s, f.typeIdx)
		}
		out = appendSection(out, sectionFunction, s)
	}

	if b.hasMemory {
		s := appendU32(nil, 1)
		if b.hasMax {
			s = append(s, 0x01)
			s = appendU32(s, b.memPages)
			s = appendU32(s, b.memMax)
		} else {
			s = append(s, 0x00)
			s = appendU32(s, b.memPages)
		}
		out = appendSection(out, sectionMemory, s)
	}

	if len(b.globals) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.globals)))
		for _, init := range b.globals {
			s = append(s, byte(I32), 0x01)
			s = append(s, I32Const(init)...)
			s = append(s, opEnd)
		}
		out = appendSection(out, sectionGlobal, s)
	}

	var exports []byte
	count := uint32(0)
	if b.hasMemory && b.exportMemory != "" {
		exports = appendName(exports, b.exportMemory)
		exports = append(exports, externMemory)
		exports = appendU32(exports, 0)
		count++
	}
	for i, f := range b.funcs {
		if f.export == "" {
			continue
		}
		exports = appendName(exports, f.export)
		exports = append(exports, externFunc)
		exports = appendU32(exports, uint32(len(b.imports)+i))
		count++
	}
	if count > 0 {
		out = appendSection(out, sectionExport, append(appendU32(nil, count), exports...))
	}

	if len(b.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			body := appendLocals(nil, f.locals)
			body = append(body, f.body...)
			body = append(body, opEnd)
			s = appendU32(s, uint32(len(body)))
			s = append(s, body...)
		}
		out = appendSection(out, sectionCode, s)
	}

	if len(b.data) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.data)))
		for _, d := range b.data {
			s = append(s, 0x00)
			s = append(s, I32Const(d.offset)...)
			s = append(s, opEnd)
			s = appendU32(s, uint32(len(d.bytes)))
			s = append(s, d.bytes...)
		}
		out = appendSection(out, sectionData, s)
	}

	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(content)))
	return append(out, content...)
}

func appendName(out []byte, name string) []byte {
	out = appendU32(out, uint32(len(name)))
	return append(out, name...)
}

func appendValTypes(out []byte, types []ValType) []byte {
	out = appendU32(out, uint32(len(types)))
	for _, t := range types {
		out = append(out, byte(t))
	}
	return out
}

// appendLocals groups consecutive locals of the same type.
func appendLocals(out []byte, locals []ValType) []byte {
	type group struct {
		n uint32
		t ValType
	}
	var groups []group
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == t {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{n: 1, t: t})
	}
	out = appendU32(out, uint32(len(groups)))
	for _, g := range groups {
		out = appendU32(out, g.n)
		out = append(out, byte(g.t))
	}
	return out
}

func appendU32(out []byte, v uint32) []byte {
	return appendUleb(out, uint64(v))
}

func appendUleb(out []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func appendSleb(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func sameValTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const opEnd = 0x0b

// Instructions.

var (
	Drop         = []byte{0x1a}
	Unreachable  = []byte{0x00}
	I32Add       = []byte{0x6a}
	I32Shl       = []byte{0x74}
	I32ShrU      = []byte{0x76}
	I64TruncF64S = []byte{0xb0}
	MemorySize   = []byte{0x3f, 0x00}
	MemoryGrow   = []byte{0x40, 0x00}
)

func I32Const(v int32) []byte {
	return appendSleb([]byte{0x41}, int64(v))
}

func F64Const(v float64) []byte {
	return binary.LittleEndian.AppendUint64([]byte{0x44}, math.Float64bits(v))
}

func LocalGet(idx uint32) []byte {
	return appendU32([]byte{0x20}, idx)
}

func LocalSet(idx uint32) []byte {
	return appendU32([]byte{0x21}, idx)
}

func GlobalGet(idx uint32) []byte {
	return appendU32([]byte{0x23}, idx)
}

func GlobalSet(idx uint32) []byte {
	return appendU32([]byte{0x24}, idx)
}

func Call(idx uint32) []byte {
	return appendU32([]byte{0x10}, idx)
}

// I64Store stores an i64 at the address on the stack plus offset.
func I64Store(offset uint32) []byte {
	return appendU32([]byte{0x37, 0x03}, offset)
}
