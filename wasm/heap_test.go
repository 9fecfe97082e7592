package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmerio/wasmer-go/wasmer"
)

func TestHeap_WriteAndRead(t *testing.T) {
	limits, err := wasmer.NewLimits(1, 4)
	require.NoError(t, err)
	memory := wasmer.NewMemory(wasmer.NewStore(wasmer.NewEngine()), wasmer.NewMemoryType(limits))

	heap := NewHeap(memory)
	ptr, err := heap.Write([]byte("transfer"))
	require.NoError(t, err)
	assert.Equal(t, int32(wasmer.WasmPageSize), ptr)

	out, err := readBytes(memory, ptr, 8)
	require.NoError(t, err)
	assert.Equal(t, "transfer", string(out))

	heap.Reset()
	again, err := heap.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, ptr, again)

	size := int32(memory.DataSize())
	tests := []struct {
		name   string
		offset int32
		length int32
	}{
		{"negative offset", -1, 1},
		{"negative length", 0, -1},
		{"offset past memory", size, 1},
		{"end past memory", size - 1, 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := readBytes(memory, test.offset, test.length)
			assert.Error(t, err)
		})
	}
}
