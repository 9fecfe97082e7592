package host

import (
	"fmt"
	"sync"

	eth "github.com/streamingfast/eth-go"
	"github.com/streamingfast/subgraph-runtime/chain"
	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/manifest"
	"github.com/streamingfast/subgraph-runtime/mapping"
)

// runtime is the per data source state of a host: its module and the
// handler bindings subscribed on its behalf.
type runtime struct {
	dataSource *manifest.DataSource
	address    eth.Address
	bindings   []*binding
	module     mapping.Module

	// lock serializes invocations of module. pending collects the events
	// of the invocation in progress.
	lock          sync.Mutex
	pending       []entity.Event
	maxOperations int
}

type binding struct {
	handler string
	event   string
	decoder *mapping.Decoder
}

func (r *runtime) blockRange() chain.BlockRange {
	return chain.BlockRange{From: r.dataSource.Source.StartBlock, To: r.dataSource.Source.EndBlock}
}

// Emit implements mapping.Sink, it is only reached while lock is held.
func (r *runtime) Emit(ev entity.Event) error {
	if r.maxOperations > 0 && len(r.pending) >= r.maxOperations {
		return fmt.Errorf("invocation emitted more than %d entity operations: %w", r.maxOperations, mapping.ErrResourceLimit)
	}
	r.pending = append(r.pending, ev)
	return nil
}

func (r *runtime) takePending() []entity.Event {
	out := r.pending
	r.pending = nil
	return out
}
