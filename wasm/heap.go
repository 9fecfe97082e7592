package wasm

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// Heap hands out argument memory to programs that do not export an
// allocator. It owns the region past the memory size observed when it was
// created and rewinds on every Reset. Programs growing their own memory
// must export `alloc`.
type Heap struct {
	memory  *wasmer.Memory
	base    int32
	nextPtr int32
}

func NewHeap(memory *wasmer.Memory) *Heap {
	base := int32(memory.DataSize())
	return &Heap{
		memory:  memory,
		base:    base,
		nextPtr: base,
	}
}

func (h *Heap) Reset() {
	h.nextPtr = h.base
}

func (h *Heap) Write(bytes []byte) (int32, error) {
	size := uint(len(bytes))
	end := uint(h.nextPtr) + size

	if available := h.memory.DataSize(); end > available {
		numberOfPages := (end-available)/wasmer.WasmPageSize + 1
		if !h.memory.Grow(wasmer.Pages(numberOfPages)) {
			return 0, fmt.Errorf("unable to grow memory by %d pages", numberOfPages)
		}
	}

	ptr := h.nextPtr
	copy(h.memory.Data()[ptr:], bytes)
	h.nextPtr += int32(size)

	return ptr, nil
}

func readBytes(memory *wasmer.Memory, offset int32, length int32) ([]byte, error) {
	bytes := memory.Data()
	if offset < 0 {
		return nil, fmt.Errorf("offset %d must be positive", offset)
	}
	if length < 0 {
		return nil, fmt.Errorf("length %d must be positive", length)
	}

	if offset >= int32(len(bytes)) {
		return nil, fmt.Errorf("offset %d out of memory bounds ending at %d", offset, len(bytes))
	}

	end := int64(offset) + int64(length)
	if end > int64(len(bytes)) {
		return nil, fmt.Errorf("end %d out of memory bounds ending at %d", end, len(bytes))
	}

	out := make([]byte, length)
	copy(out, bytes[offset:end])
	return out, nil
}
