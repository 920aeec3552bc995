package testutil

import (
	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

// HeapBase is where the bump allocator of the test guests starts.
const HeapBase = 1024

// UTCSlot is the address EchoGuest stores the truncated getUTC result at.
const UTCSlot = 8

// Sample is a record in the shape the real guest parses.
const Sample = "20241\tGK5924\tQuản lý dự án\t3\t3\t1\t3\t13 - 16\t18:00 - 20:29\tB4-501\tBK-LTK\t37|38|39|40|--|42|43|44|45|46|47|"

type hostImports struct {
	beginCalendar, endCalendar, doSemester, log, getUTC uint32
}

func importAll(b *Builder) hostImports {
	return hostImports{
		beginCalendar: b.Import(protocol.ImportModule, protocol.CallbackBeginCalendar, nil, nil),
		endCalendar:   b.Import(protocol.ImportModule, protocol.CallbackEndCalendar, nil, nil),
		doSemester:    b.Import(protocol.ImportModule, protocol.CallbackDoSemester, []ValType{I32, I32}, nil),
		log:           b.Import(protocol.ImportModule, protocol.CallbackLog, []ValType{I32, I32}, nil),
		getUTC:        b.Import(protocol.ImportModule, protocol.CallbackGetUTC, []ValType{I32, I32, I32}, []ValType{F64}),
	}
}

// bumpAlloc defines an exported alloc backed by the heap global.
func bumpAlloc(b *Builder, heap uint32) uint32 {
	return b.Func(protocol.ExportAlloc, []ValType{I32}, []ValType{I32}, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(0), I32Add, GlobalSet(heap),
	)
}

// EchoGuest logs the record it is given, then runs one calendar bracket:
// doSemester(2024, 1) and getUTC(2024, 1, 2), storing the returned seconds as
// an i64 at UTCSlot. The heap is reset when parse returns.
func EchoGuest() []byte {
	b := NewBuilder()
	host := importAll(b)
	b.Memory(1, protocol.ExportMemory)
	heap := b.Global(HeapBase)

	bumpAlloc(b, heap)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil,
		LocalGet(0), LocalGet(1), Call(host.log),
		Call(host.beginCalendar),
		I32Const(2024), I32Const(1), Call(host.doSemester),
		I32Const(UTCSlot),
		I32Const(2024), I32Const(1), I32Const(2), Call(host.getUTC),
		I64TruncF64S,
		I64Store(0),
		Call(host.endCalendar),
		I32Const(HeapBase), GlobalSet(heap),
	)
	return b.Build()
}

// ScheduleGuest issues an unbracketed doSemester(2023, 2) followed by two
// calendar brackets:
//
//	begin, getUTC(2024, 37, 4), doSemester(2024, 1), end
//	begin, getUTC(2024, 38, 2), end
func ScheduleGuest() []byte {
	b := NewBuilder()
	host := importAll(b)
	b.Memory(1, protocol.ExportMemory)
	heap := b.Global(HeapBase)

	bumpAlloc(b, heap)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil,
		I32Const(2023), I32Const(2), Call(host.doSemester),
		Call(host.beginCalendar),
		I32Const(2024), I32Const(37), I32Const(4), Call(host.getUTC), Drop,
		I32Const(2024), I32Const(1), Call(host.doSemester),
		Call(host.endCalendar),
		Call(host.beginCalendar),
		I32Const(2024), I32Const(38), I32Const(2), Call(host.getUTC), Drop,
		Call(host.endCalendar),
		I32Const(HeapBase), GlobalSet(heap),
	)
	return b.Build()
}

// GrowingGuest allocates every buffer in freshly grown pages, so guest memory
// grows on each alloc. A failed grow yields a pointer past the end of memory.
// parse logs the record.
func GrowingGuest() []byte {
	b := NewBuilder()
	log := b.Import(protocol.ImportModule, protocol.CallbackLog, []ValType{I32, I32}, nil)
	b.Memory(1, protocol.ExportMemory)

	// ptr = memory.size << 16; memory.grow((size >> 16) + 1)
	b.Func(protocol.ExportAlloc, []ValType{I32}, []ValType{I32}, []ValType{I32},
		MemorySize, I32Const(16), I32Shl, LocalSet(1),
		LocalGet(0), I32Const(16), I32ShrU, I32Const(1), I32Add, MemoryGrow, Drop,
		LocalGet(1),
	)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil,
		LocalGet(0), LocalGet(1), Call(log),
	)
	return b.Build()
}

// NullAllocGuest's alloc always returns 0.
func NullAllocGuest() []byte {
	b := NewBuilder()
	b.Memory(1, protocol.ExportMemory)
	b.Func(protocol.ExportAlloc, []ValType{I32}, []ValType{I32}, nil, I32Const(0))
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil)
	return b.Build()
}

// TrappingAllocGuest's alloc traps.
func TrappingAllocGuest() []byte {
	b := NewBuilder()
	b.Memory(1, protocol.ExportMemory)
	b.Func(protocol.ExportAlloc, []ValType{I32}, []ValType{I32}, nil, Unreachable)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil)
	return b.Build()
}

// LogRangeGuest places data at offset and, on parse, logs [ptr, ptr+size)
// regardless of the record.
func LogRangeGuest(offset int32, data []byte, ptr, size uint32) []byte {
	b := NewBuilder()
	log := b.Import(protocol.ImportModule, protocol.CallbackLog, []ValType{I32, I32}, nil)
	b.Memory(1, protocol.ExportMemory)
	heap := b.Global(HeapBase)
	if len(data) > 0 {
		b.Data(offset, data)
	}

	bumpAlloc(b, heap)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil,
		I32Const(int32(ptr)), I32Const(int32(size)), Call(log),
		I32Const(HeapBase), GlobalSet(heap),
	)
	return b.Build()
}

// InitGuest opens a calendar bracket from its _initialize export, before any
// parse call. parse closes it.
func InitGuest() []byte {
	b := NewBuilder()
	host := importAll(b)
	b.Memory(1, protocol.ExportMemory)
	heap := b.Global(HeapBase)

	bumpAlloc(b, heap)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil, Call(host.endCalendar))
	b.Func("_initialize", nil, nil, nil, Call(host.beginCalendar))
	return b.Build()
}

// GuestWithImport is a minimal otherwise-valid guest that imports one extra
// function with the given signature.
func GuestWithImport(module, name string, params, results []ValType) []byte {
	b := NewBuilder()
	b.Import(module, name, params, results)
	b.Memory(1, protocol.ExportMemory)
	heap := b.Global(HeapBase)
	bumpAlloc(b, heap)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil)
	return b.Build()
}

// GuestWithoutParse exports alloc and memory only.
func GuestWithoutParse() []byte {
	b := NewBuilder()
	b.Memory(1, protocol.ExportMemory)
	heap := b.Global(HeapBase)
	bumpAlloc(b, heap)
	return b.Build()
}

// GuestWithoutMemoryExport keeps its memory private.
func GuestWithoutMemoryExport() []byte {
	b := NewBuilder()
	b.Memory(1, "")
	heap := b.Global(HeapBase)
	bumpAlloc(b, heap)
	b.Func(protocol.ExportParse, []ValType{I32, I32}, nil, nil)
	return b.Build()
}

// GuestWithBadParse exports parse as (i32) -> i32.
func GuestWithBadParse() []byte {
	b := NewBuilder()
	b.Memory(1, protocol.ExportMemory)
	heap := b.Global(HeapBase)
	bumpAlloc(b, heap)
	b.Func(protocol.ExportParse, []ValType{I32}, []ValType{I32}, nil, LocalGet(0))
	return b.Build()
}
