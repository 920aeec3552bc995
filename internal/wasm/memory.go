package wasm

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/text/encoding/unicode"
)

// GuestBuffer is a byte range inside guest linear memory. It is owned by the
// guest allocator and only valid for the parse call that uses it.
type GuestBuffer struct {
	Ptr uint32
	Len uint32
}

// Memory provides safe memory operations for Wasm module interaction.
//
// Guest memory can grow (and move) whenever the guest allocates, so Memory
// never keeps a view of it: every operation asks the module for its current
// memory and copies bytes out before returning.
type Memory struct {
	module api.Module
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{module: module}
}

func (m *Memory) view() (api.Memory, error) {
	mem := m.module.Memory()
	if mem == nil {
		return nil, errors.New("module has no memory")
	}
	return mem, nil
}

// Size returns the current size of guest memory in bytes.
func (m *Memory) Size() uint32 {
	mem, err := m.view()
	if err != nil {
		return 0
	}
	return mem.Size()
}

// ReadBytes copies length bytes starting at ptr out of guest memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, error) {
	mem, err := m.view()
	if err != nil {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length, Err: err}
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length}
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// ReadString decodes [ptr, ptr+length) as UTF-8. Invalid sequences are
// replaced with U+FFFD and reported through the returned *DecodeWarning.
func (m *Memory) ReadString(ptr uint32, length uint32) (string, *DecodeWarning, error) {
	buf, err := m.ReadBytes(ptr, length)
	if err != nil {
		return "", nil, err
	}
	if utf8.Valid(buf) {
		return string(buf), nil, nil
	}
	return decodeLossy(buf), &DecodeWarning{Ptr: ptr, Length: length}, nil
}

func decodeLossy(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil || !utf8.Valid(out) {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(out)
}

// WriteBytes asks the guest allocator for len(data) bytes and copies data
// into the returned buffer.
func (m *Memory) WriteBytes(ctx context.Context, alloc api.Function, data []byte) (GuestBuffer, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return GuestBuffer{}, &OutOfGuestMemoryError{
			Size: math.MaxUint32,
			Err:  errors.New("payload exceeds 32-bit address space"),
		}
	}
	size := uint32(len(data))

	results, err := alloc.Call(ctx, uint64(size))
	if err != nil {
		return GuestBuffer{}, &OutOfGuestMemoryError{Size: size, Err: err}
	}
	if len(results) == 0 {
		return GuestBuffer{}, &OutOfGuestMemoryError{Size: size, Err: errors.New("alloc returned no results")}
	}
	ptr := api.DecodeU32(results[0])

	// alloc may have grown memory, so the view is taken after the call.
	mem, err := m.view()
	if err != nil {
		return GuestBuffer{}, &OutOfGuestMemoryError{Size: size, Ptr: ptr, Err: err}
	}
	memSize := mem.Size()
	if ptr == 0 || uint64(ptr)+uint64(size) > uint64(memSize) {
		return GuestBuffer{}, &OutOfGuestMemoryError{Size: size, Ptr: ptr, MemorySize: memSize}
	}
	if !mem.Write(ptr, data) {
		return GuestBuffer{}, &OutOfGuestMemoryError{Size: size, Ptr: ptr, MemorySize: memSize}
	}

	return GuestBuffer{Ptr: ptr, Len: size}, nil
}

// WriteString writes s to guest memory as UTF-8.
func (m *Memory) WriteString(ctx context.Context, alloc api.Function, s string) (GuestBuffer, error) {
	return m.WriteBytes(ctx, alloc, []byte(s))
}
