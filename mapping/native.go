package mapping

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, ev *Event) error

// Handlers maps handler names, as referenced by manifests, to Go code.
type Handlers map[string]HandlerFunc

// ProgramFactory creates a fresh program instance. State kept by the
// returned handlers lives as long as the module.
type ProgramFactory func(store *Store, logger *zap.Logger) Handlers

// Registry resolves the programs of data sources using the native
// mapping language. The mapping file names the registered program.
type Registry struct {
	lock     sync.RWMutex
	programs map[string]ProgramFactory
}

func NewRegistry() *Registry {
	return &Registry{programs: map[string]ProgramFactory{}}
}

var DefaultRegistry = NewRegistry()

func Register(name string, factory ProgramFactory) {
	DefaultRegistry.Register(name, factory)
}

func (r *Registry) Register(name string, factory ProgramFactory) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.programs[name] = factory
}

func (r *Registry) Programs() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]string, 0, len(r.programs))
	for name := range r.programs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) NewModule(ctx context.Context, config *Config) (Module, error) {
	name := config.DataSource.Mapping.File

	r.lock.RLock()
	factory, found := r.programs[name]
	r.lock.RUnlock()
	if !found {
		return nil, fmt.Errorf("native program %q is not registered", name)
	}

	handlers := factory(NewStore(config.SubgraphID, config.Sink), config.Logger)
	for _, handler := range config.Handlers() {
		if _, found := handlers[handler]; !found {
			return nil, fmt.Errorf("native program %q does not define handler %q", name, handler)
		}
	}

	return &NativeModule{name: name, handlers: handlers}, nil
}

type NativeModule struct {
	name     string
	handlers Handlers
}

func (m *NativeModule) Invoke(ctx context.Context, handler string, ev *Event) (err error) {
	fn, found := m.handlers[handler]
	if !found {
		return &ExecutionError{Kind: ErrorKindTrap, Handler: handler, Err: fmt.Errorf("program %q has no handler %q", m.name, handler)}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &ExecutionError{Kind: ErrorKindTrap, Handler: handler, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := fn(ctx, ev); err != nil {
		return NewExecutionError(handler, err)
	}
	return nil
}

func (m *NativeModule) Close() error { return nil }
