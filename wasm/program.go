package wasm

import (
	"context"
	"fmt"

	"github.com/streamingfast/subgraph-runtime/manifest"
	"github.com/streamingfast/subgraph-runtime/mapping"
)

// Factory loads wasm mapping programs from any location supported by
// dstore (local paths, gs://, s3://, az://).
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) NewModule(ctx context.Context, config *mapping.Config) (mapping.Module, error) {
	code, err := manifest.ReadFile(ctx, config.ProgramLocation)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}

	module, err := NewModule(code, config)
	if err != nil {
		return nil, fmt.Errorf("loading program %q: %w", config.ProgramLocation, err)
	}
	return module, nil
}
