package wasm

import (
	"fmt"
)

// LoadStage identifies where loading a guest module failed.
type LoadStage string

const (
	StageRead        LoadStage = "read"
	StageCompile     LoadStage = "compile"
	StageBind        LoadStage = "bind"
	StageInstantiate LoadStage = "instantiate"
)

// ModuleLoadError occurs when a guest image is malformed or does not satisfy
// the host/guest contract.
type ModuleLoadError struct {
	ModuleName string
	Stage      LoadStage
	Reason     string
	Err        error
}

func (e *ModuleLoadError) Error() string {
	msg := fmt.Sprintf("failed to load Wasm module '%s' (%s)", e.ModuleName, e.Stage)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Err
}

// OutOfGuestMemoryError occurs when the guest allocator fails or hands back a
// pointer that cannot hold the requested bytes.
type OutOfGuestMemoryError struct {
	Size       uint32
	Ptr        uint32
	MemorySize uint32
	Err        error
}

func (e *OutOfGuestMemoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("guest allocation of %d bytes failed: %v", e.Size, e.Err)
	}
	return fmt.Sprintf("guest allocation of %d bytes returned invalid pointer %d (memory size %d)",
		e.Size, e.Ptr, e.MemorySize)
}

func (e *OutOfGuestMemoryError) Unwrap() error {
	return e.Err
}

// DecodeWarning reports a guest string that was not valid UTF-8. It is logged,
// never returned.
type DecodeWarning struct {
	Ptr    uint32
	Length uint32
}

func (e *DecodeWarning) Error() string {
	return fmt.Sprintf("invalid UTF-8 in guest memory (addr=%d, len=%d), replaced with U+FFFD",
		e.Ptr, e.Length)
}

// ModuleNotFoundError occurs when a module is not in cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// FunctionNotFoundError occurs when an exported function is missing
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// MemoryAccessError occurs when memory operations fail
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
	Err       error
}

func (e *MemoryAccessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("memory access failed (op=%s, addr=%d, len=%d): out of range",
			e.Operation, e.Address, e.Length)
	}
	return fmt.Sprintf("memory access failed (op=%s, addr=%d, len=%d): %v",
		e.Operation, e.Address, e.Length, e.Err)
}

func (e *MemoryAccessError) Unwrap() error {
	return e.Err
}

// HostFunctionError occurs when host function execution fails
type HostFunctionError struct {
	FunctionName string
	Err          error
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host function '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}

// ReentrantSubmitError occurs when a callback submits to the instance that is
// currently parsing.
type ReentrantSubmitError struct {
	InstanceID string
}

func (e *ReentrantSubmitError) Error() string {
	return fmt.Sprintf("re-entrant submit on instance '%s' from within a guest callback", e.InstanceID)
}
