package wasm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/mapping"
	"github.com/wasmerio/wasmer-go/wasmer"
	"go.uber.org/zap"
)

// Module runs the handlers of one wasm mapping program.
//
// Handlers are exported functions taking the pointer and length of the
// JSON encoded event. Programs talk back to the host through the `env`
// imports: `store_set`, `store_remove`, `log` and `abort`.
type Module struct {
	store    *wasmer.Store
	instance *wasmer.Instance
	memory   *wasmer.Memory
	heap     *Heap
	alloc    wasmer.NativeFunction
	handlers map[string]wasmer.NativeFunction

	entities *mapping.Store
	logger   *zap.Logger

	// hostErr is the first error raised by an import during the current
	// invocation. Traps lose the original Go error, this keeps it.
	hostErr error
}

func NewModule(code []byte, config *mapping.Config) (*Module, error) {
	engine := wasmer.NewEngine()
	m := &Module{
		store:    wasmer.NewStore(engine),
		entities: mapping.NewStore(config.SubgraphID, config.Sink),
		logger:   config.Logger,
		handlers: map[string]wasmer.NativeFunction{},
	}

	module, err := wasmer.NewModule(m.store, code)
	if err != nil {
		return nil, fmt.Errorf("unable to compile wasm program: %w", err)
	}

	m.instance, err = wasmer.NewInstance(module, m.newImports())
	if err != nil {
		return nil, fmt.Errorf("unable to instantiate wasm program: %w", err)
	}

	m.memory, err = m.instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("unable to get the wasm program memory: %w", err)
	}
	m.heap = NewHeap(m.memory)

	if alloc, err := m.instance.Exports.GetFunction("alloc"); err == nil {
		m.alloc = alloc
	}

	for _, handler := range config.Handlers() {
		fn, err := m.instance.Exports.GetFunction(handler)
		if err != nil {
			return nil, fmt.Errorf("handler %q is not exported by the wasm program: %w", handler, err)
		}
		m.handlers[handler] = fn
	}

	return m, nil
}

func (m *Module) Invoke(ctx context.Context, handler string, ev *mapping.Event) error {
	fn, found := m.handlers[handler]
	if !found {
		return &mapping.ExecutionError{Kind: mapping.ErrorKindTrap, Handler: handler, Err: fmt.Errorf("handler not exported")}
	}

	args, err := json.Marshal(ev)
	if err != nil {
		return &mapping.ExecutionError{Kind: mapping.ErrorKindDecode, Handler: handler, Err: fmt.Errorf("encoding arguments: %w", err)}
	}

	m.hostErr = nil
	m.heap.Reset()

	ptr, err := m.write(args)
	if err != nil {
		return &mapping.ExecutionError{Kind: mapping.ErrorKindResourceLimit, Handler: handler, Err: err}
	}

	if _, err := fn(ptr, int32(len(args))); err != nil {
		if m.hostErr != nil {
			err = m.hostErr
		}
		return mapping.NewExecutionError(handler, err)
	}
	return nil
}

// Close drops the instance references, wasmer finalizers release the
// underlying runtime objects.
func (m *Module) Close() error {
	m.handlers = nil
	m.alloc = nil
	m.instance = nil
	return nil
}

func (m *Module) write(data []byte) (int32, error) {
	if m.alloc == nil {
		return m.heap.Write(data)
	}

	out, err := m.alloc(int32(len(data)))
	if err != nil {
		return 0, fmt.Errorf("calling alloc: %w", err)
	}
	ptr, ok := out.(int32)
	if !ok {
		return 0, fmt.Errorf("alloc returned %T, expected i32", out)
	}

	memory := m.memory.Data()
	if ptr < 0 || int(ptr)+len(data) > len(memory) {
		return 0, fmt.Errorf("alloc returned out of bounds pointer %d for %d bytes", ptr, len(data))
	}
	copy(memory[ptr:], data)
	return ptr, nil
}

func (m *Module) fail(err error) ([]wasmer.Value, error) {
	if m.hostErr == nil {
		m.hostErr = err
	}
	return nil, err
}

func (m *Module) readString(ptr, length wasmer.Value) (string, error) {
	raw, err := readBytes(m.memory, ptr.I32(), length.I32())
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (m *Module) newImports() *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	imports.Register("env", map[string]wasmer.IntoExtern{
		"abort": wasmer.NewFunction(
			m.store,
			wasmer.NewFunctionType(
				params(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32),
				returns(),
			),
			func(args []wasmer.Value) ([]wasmer.Value, error) {
				message, err := m.readString(args[0], args[1])
				if err != nil {
					return m.fail(fmt.Errorf("read message argument: %w", err))
				}

				return m.fail(&abortError{message, int(args[2].I32()), int(args[3].I32())})
			},
		),
		"log": wasmer.NewFunction(
			m.store,
			wasmer.NewFunctionType(
				params(wasmer.I32, wasmer.I32, wasmer.I32),
				returns(),
			),
			func(args []wasmer.Value) ([]wasmer.Value, error) {
				message, err := m.readString(args[1], args[2])
				if err != nil {
					return m.fail(fmt.Errorf("read message argument: %w", err))
				}

				m.logMessage(args[0].I32(), message)
				return nil, nil
			},
		),
		"store_set": wasmer.NewFunction(
			m.store,
			wasmer.NewFunctionType(
				params(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32),
				returns(),
			),
			func(args []wasmer.Value) ([]wasmer.Value, error) {
				entityType, err := m.readString(args[0], args[1])
				if err != nil {
					return m.fail(fmt.Errorf("read entity type argument: %w", err))
				}
				id, err := m.readString(args[2], args[3])
				if err != nil {
					return m.fail(fmt.Errorf("read id argument: %w", err))
				}
				data, err := readBytes(m.memory, args[4].I32(), args[5].I32())
				if err != nil {
					return m.fail(fmt.Errorf("read entity argument: %w", err))
				}

				ent := entity.Entity{}
				if err := json.Unmarshal(data, &ent); err != nil {
					return m.fail(fmt.Errorf("decoding entity %s %q: %w", entityType, id, err))
				}

				if err := m.entities.Set(entityType, id, ent); err != nil {
					return m.fail(err)
				}
				return nil, nil
			},
		),
		"store_remove": wasmer.NewFunction(
			m.store,
			wasmer.NewFunctionType(
				params(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32),
				returns(),
			),
			func(args []wasmer.Value) ([]wasmer.Value, error) {
				entityType, err := m.readString(args[0], args[1])
				if err != nil {
					return m.fail(fmt.Errorf("read entity type argument: %w", err))
				}
				id, err := m.readString(args[2], args[3])
				if err != nil {
					return m.fail(fmt.Errorf("read id argument: %w", err))
				}

				if err := m.entities.Remove(entityType, id); err != nil {
					return m.fail(err)
				}
				return nil, nil
			},
		),
	})
	return imports
}

func (m *Module) logMessage(level int32, message string) {
	switch level {
	case 0, 1:
		m.logger.Error(message)
	case 2:
		m.logger.Warn(message)
	case 3:
		m.logger.Info(message)
	default:
		m.logger.Debug(message)
	}
}

var _ mapping.Module = (*Module)(nil)

// IsAbort reports whether err comes from the program calling `abort`.
func IsAbort(err error) bool {
	var abortErr *abortError
	return errors.As(err, &abortErr)
}
