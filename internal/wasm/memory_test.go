package wasm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/timetable-bridge/internal/testutil"
	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

func newEchoInstance(t *testing.T) *Instance {
	t.Helper()
	logger := zaptest.NewLogger(t)
	runtime := newTestRuntime(t, logger, nil)
	return instantiate(t, runtime, logger, "echo", testutil.EchoGuest(), &recorder{})
}

func TestMemory_WriteAndRead(t *testing.T) {
	inst := newEchoInstance(t)
	mem := inst.Memory()
	alloc := inst.exports[protocol.ExportAlloc]

	assert.Equal(t, uint32(65536), mem.Size())

	buf, err := mem.WriteString(context.Background(), alloc, "Quản lý dự án")
	require.NoError(t, err)
	assert.Equal(t, uint32(testutil.HeapBase), buf.Ptr)
	assert.Equal(t, uint32(len("Quản lý dự án")), buf.Len)

	got, warn, err := mem.ReadString(buf.Ptr, buf.Len)
	require.NoError(t, err)
	assert.Nil(t, warn)
	assert.Equal(t, "Quản lý dự án", got)

	// The bump allocator hands out the next buffer right after the first.
	next, err := mem.WriteString(context.Background(), alloc, "x")
	require.NoError(t, err)
	assert.Equal(t, buf.Ptr+buf.Len, next.Ptr)
}

func TestMemory_ReadBytesCopies(t *testing.T) {
	inst := newEchoInstance(t)
	mem := inst.Memory()

	buf, err := mem.WriteBytes(context.Background(), inst.exports[protocol.ExportAlloc], []byte("abc"))
	require.NoError(t, err)

	first, err := mem.ReadBytes(buf.Ptr, buf.Len)
	require.NoError(t, err)
	first[0] = 'z'

	second, err := mem.ReadBytes(buf.Ptr, buf.Len)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), second)
}

func TestMemory_ReadOutOfRange(t *testing.T) {
	inst := newEchoInstance(t)
	mem := inst.Memory()

	tests := []struct {
		name   string
		ptr    uint32
		length uint32
	}{
		{name: "past the end", ptr: 65536, length: 1},
		{name: "straddles the end", ptr: 65530, length: 16},
		{name: "wraps around", ptr: 0xFFFFFFFF, length: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mem.ReadBytes(tc.ptr, tc.length)
			var memErr *MemoryAccessError
			require.True(t, errors.As(err, &memErr), "expected MemoryAccessError, got %v", err)
			assert.Equal(t, "read", memErr.Operation)
			assert.Equal(t, tc.ptr, memErr.Address)
			assert.Contains(t, memErr.Error(), "out of range")

			_, _, err = mem.ReadString(tc.ptr, tc.length)
			assert.True(t, errors.As(err, &memErr))
		})
	}
}

func TestMemory_ReadStringInvalidUTF8(t *testing.T) {
	inst := newEchoInstance(t)
	mem := inst.Memory()

	raw := []byte{'a', 0xc3, 'b', 0xff, 0xfe}
	buf, err := mem.WriteBytes(context.Background(), inst.exports[protocol.ExportAlloc], raw)
	require.NoError(t, err)

	got, warn, err := mem.ReadString(buf.Ptr, buf.Len)
	require.NoError(t, err)
	require.NotNil(t, warn)
	assert.Equal(t, buf.Ptr, warn.Ptr)
	assert.Equal(t, buf.Len, warn.Length)
	assert.Equal(t, 'a', []rune(got)[0])
	assert.Contains(t, got, "b")
	assert.Contains(t, got, "�")
	assert.NotContains(t, got, string([]byte{0xff}))
}

func TestMemory_EmptyWrite(t *testing.T) {
	inst := newEchoInstance(t)
	mem := inst.Memory()

	buf, err := mem.WriteString(context.Background(), inst.exports[protocol.ExportAlloc], "")
	require.NoError(t, err)
	assert.Zero(t, buf.Len)
	assert.NotZero(t, buf.Ptr)

	got, warn, err := mem.ReadString(buf.Ptr, buf.Len)
	require.NoError(t, err)
	assert.Nil(t, warn)
	assert.Empty(t, got)
}
