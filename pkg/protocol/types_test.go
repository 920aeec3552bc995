package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tetratelabs/wazero/api"
)

func TestValueTypesMatchWazero(t *testing.T) {
	tests := []struct {
		ours   ValueType
		wazero api.ValueType
	}{
		{ValueTypeI32, api.ValueTypeI32},
		{ValueTypeI64, api.ValueTypeI64},
		{ValueTypeF32, api.ValueTypeF32},
		{ValueTypeF64, api.ValueTypeF64},
	}

	for _, tc := range tests {
		assert.Equal(t, byte(tc.wazero), byte(tc.ours))
		assert.Equal(t, api.ValueTypeName(tc.wazero), tc.ours.String())
	}
	assert.Equal(t, "unknown", ValueType(0).String())
}

func TestCallbackTable(t *testing.T) {
	assert.Len(t, Callbacks, 5)

	getUTC := Callbacks[CallbackGetUTC]
	assert.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32}, getUTC.Params)
	assert.Equal(t, []ValueType{ValueTypeF64}, getUTC.Results)

	for _, name := range []string{CallbackBeginCalendar, CallbackEndCalendar} {
		assert.Empty(t, Callbacks[name].Params, name)
		assert.Empty(t, Callbacks[name].Results, name)
	}
	for _, name := range []string{CallbackDoSemester, CallbackLog} {
		assert.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32}, Callbacks[name].Params, name)
		assert.Empty(t, Callbacks[name].Results, name)
	}
}

func TestExportTable(t *testing.T) {
	assert.Equal(t, Signature{
		Params:  []ValueType{ValueTypeI32},
		Results: []ValueType{ValueTypeI32},
	}, Exports[ExportAlloc])
	assert.Equal(t, Signature{
		Params: []ValueType{ValueTypeI32, ValueTypeI32},
	}, Exports[ExportParse])
}
