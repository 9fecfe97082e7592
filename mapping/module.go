package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/manifest"
	"go.uber.org/zap"
)

// Module is one loaded mapping program. Invoke calls are serialized by the
// caller; a Module is not safe for concurrent invocations.
type Module interface {
	Invoke(ctx context.Context, handler string, ev *Event) error
	Close() error
}

// Factory loads the mapping program of a data source into a new Module.
type Factory interface {
	NewModule(ctx context.Context, config *Config) (Module, error)
}

type Config struct {
	SubgraphID string
	DataSource *manifest.DataSource

	// ProgramLocation is the resolved location of the mapping file.
	ProgramLocation string

	Sink   Sink
	Logger *zap.Logger
}

func (c *Config) Handlers() []string {
	out := make([]string, 0, len(c.DataSource.Mapping.EventHandlers))
	for _, eh := range c.DataSource.Mapping.EventHandlers {
		out = append(out, eh.Handler)
	}
	return out
}

// Sink receives the entity mutations emitted by a module.
type Sink interface {
	Emit(ev entity.Event) error
}

type SinkFunc func(ev entity.Event) error

func (f SinkFunc) Emit(ev entity.Event) error { return f(ev) }

var ErrResourceLimit = errors.New("resource limit exceeded")

type ErrorKind int

const (
	ErrorKindTrap ErrorKind = iota
	ErrorKindResourceLimit
	ErrorKindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTrap:
		return "trap"
	case ErrorKindResourceLimit:
		return "resource_limit"
	case ErrorKindDecode:
		return "decode"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ExecutionError is a failed handler invocation. Execution errors are never
// retried.
type ExecutionError struct {
	Kind    ErrorKind
	Handler string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("handler %q failed (%s): %s", e.Handler, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError classifies err raised while running handler.
func NewExecutionError(handler string, err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	kind := ErrorKindTrap
	if errors.Is(err, ErrResourceLimit) {
		kind = ErrorKindResourceLimit
	}
	return &ExecutionError{Kind: kind, Handler: handler, Err: err}
}

// Store is the entity API exposed to mapping code.
type Store struct {
	subgraphID string
	sink       Sink
}

func NewStore(subgraphID string, sink Sink) *Store {
	return &Store{subgraphID: subgraphID, sink: sink}
}

func (s *Store) SubgraphID() string { return s.subgraphID }

func (s *Store) Set(entityType, id string, ent entity.Entity) error {
	key := entity.NewStoreKey(s.subgraphID, entityType, id)
	if err := key.Validate(); err != nil {
		return err
	}
	if ent == nil {
		ent = entity.Entity{}
	}
	return s.sink.Emit(entity.NewEntitySet(key, ent))
}

func (s *Store) Remove(entityType, id string) error {
	key := entity.NewStoreKey(s.subgraphID, entityType, id)
	if err := key.Validate(); err != nil {
		return err
	}
	return s.sink.Emit(entity.NewEntityRemoved(key))
}
