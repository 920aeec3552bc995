package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

func TestFixturesCompile(t *testing.T) {
	fixtures := map[string][]byte{
		"echo":           EchoGuest(),
		"schedule":       ScheduleGuest(),
		"growing":        GrowingGuest(),
		"null alloc":     NullAllocGuest(),
		"trapping":       TrappingAllocGuest(),
		"log range":      LogRangeGuest(16, []byte("ok"), 16, 2),
		"init":           InitGuest(),
		"extra import":   GuestWithImport("env", "abort", []ValType{I32}, nil),
		"no parse":       GuestWithoutParse(),
		"private memory": GuestWithoutMemoryExport(),
		"bad parse":      GuestWithBadParse(),
	}

	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	for name, image := range fixtures {
		t.Run(name, func(t *testing.T) {
			_, err := runtime.CompileModule(ctx, image)
			require.NoError(t, err)
		})
	}
}

func TestLEB128(t *testing.T) {
	assert.Equal(t, []byte{0x00}, appendU32(nil, 0))
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, appendU32(nil, 624485))
	assert.Equal(t, []byte{0x41, 0x7f}, I32Const(-1))
	assert.Equal(t, []byte{0x41, 0xc0, 0x00}, I32Const(64))
	assert.Equal(t, []byte{0x41, 0x80, 0x7f}, I32Const(-128))
}

func TestEchoGuestExports(t *testing.T) {
	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	compiled, err := runtime.CompileModule(ctx, EchoGuest())
	require.NoError(t, err)

	assert.Len(t, compiled.ImportedFunctions(), 5)
	assert.Contains(t, compiled.ExportedFunctions(), "alloc")
	assert.Contains(t, compiled.ExportedFunctions(), "parse")
	assert.Contains(t, compiled.ExportedMemories(), "memory")
}
