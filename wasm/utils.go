package wasm

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

func params(kinds ...wasmer.ValueKind) []*wasmer.ValueType {
	return wasmer.NewValueTypes(kinds...)
}

func returns(kinds ...wasmer.ValueKind) []*wasmer.ValueType {
	return wasmer.NewValueTypes(kinds...)
}

type abortError struct {
	message      string
	lineNumber   int
	columnNumber int
}

func (e *abortError) Error() string {
	return fmt.Sprintf("wasm execution aborted at line %d column %d: %s", e.lineNumber, e.columnNumber, e.message)
}
