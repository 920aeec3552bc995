// Package protocol defines the guest contract shared by the host runtime and
// guest authors.
//
// A guest module imports its callbacks from ImportModule and exports
// ExportAlloc, ExportParse and ExportMemory. All pointers and sizes are
// 32-bit offsets into the guest's linear memory.
package protocol

// ImportModule is the namespace guest modules import host callbacks from.
const ImportModule = "host"

// Host callbacks the guest may import.
const (
	// Signature: beginCalendar() -> void
	CallbackBeginCalendar = "beginCalendar"

	// Signature: endCalendar() -> void
	CallbackEndCalendar = "endCalendar"

	// Signature: doSemester(year: i32, semester: i32) -> void
	CallbackDoSemester = "doSemester"

	// Signature: log(ptr: i32, size: i32) -> void
	CallbackLog = "log"

	// Signature: getUTC(year: i32, week: i32, weekday: i32) -> f64
	// Returns seconds since the Unix epoch.
	CallbackGetUTC = "getUTC"
)

// Guest exports.
const (
	// Signature: alloc(size: i32) -> i32 (pointer)
	ExportAlloc = "alloc"

	// Signature: parse(ptr: i32, size: i32) -> void
	ExportParse = "parse"

	// ExportMemory is the guest's linear memory.
	ExportMemory = "memory"
)

// ValueType mirrors the WebAssembly core value types used by the contract.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// String returns the text format name of the value type.
func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Signature describes a function type in the guest contract.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

// Callbacks lists every host callback with its expected signature.
var Callbacks = map[string]Signature{
	CallbackBeginCalendar: {},
	CallbackEndCalendar:   {},
	CallbackDoSemester:    {Params: []ValueType{ValueTypeI32, ValueTypeI32}},
	CallbackLog:           {Params: []ValueType{ValueTypeI32, ValueTypeI32}},
	CallbackGetUTC: {
		Params:  []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32},
		Results: []ValueType{ValueTypeF64},
	},
}

// Exports lists the required guest function exports with their signatures.
var Exports = map[string]Signature{
	ExportAlloc: {Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}},
	ExportParse: {Params: []ValueType{ValueTypeI32, ValueTypeI32}},
}

// CalendarQuery is the argument triple of a getUTC callback.
// Weekday uses the guest's numbering where Monday is 2 and Sunday is 8.
type CalendarQuery struct {
	Year    int32 `json:"year" yaml:"year"`
	Week    int32 `json:"week" yaml:"week"`
	Weekday int32 `json:"weekday" yaml:"weekday"`
}

// Semester is reported by the guest through doSemester.
type Semester struct {
	Year     int32 `json:"year" yaml:"year"`
	Semester int32 `json:"semester" yaml:"semester"`
}

// Resolution pairs a getUTC query with the timestamp handed back to the guest.
type Resolution struct {
	Query     CalendarQuery `json:"query" yaml:"query"`
	Timestamp int64         `json:"timestamp" yaml:"timestamp"`
}

// CalendarRun groups the calendar callbacks issued between beginCalendar and
// endCalendar. Bracketed is false for callbacks issued outside any bracket.
type CalendarRun struct {
	Bracketed   bool         `json:"bracketed" yaml:"bracketed"`
	Semesters   []Semester   `json:"semesters,omitempty" yaml:"semesters,omitempty"`
	Resolutions []Resolution `json:"resolutions,omitempty" yaml:"resolutions,omitempty"`
}

// Report is everything the host observed while the guest parsed one record.
type Report struct {
	Record string        `json:"record" yaml:"record"`
	Logs   []string      `json:"logs,omitempty" yaml:"logs,omitempty"`
	Runs   []CalendarRun `json:"runs,omitempty" yaml:"runs,omitempty"`
}
