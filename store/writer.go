package store

import (
	"context"
	"fmt"

	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/stream"
	"go.uber.org/zap"
)

// Applier is the write side of the entity store.
type Applier interface {
	Apply(ctx context.Context, source string, ev entity.Event) error
}

// Writer consumes the entity event stream of a producer and applies every
// event, in stream order, to the store.
type Writer struct {
	store  Applier
	source string
}

// NewWriter returns a writer tagging its rows with source, usually the id
// of the subgraph being indexed.
func NewWriter(store Applier, source string) *Writer {
	return &Writer{store: store, source: source}
}

// Run takes the producer's stream and applies its events until the stream
// is closed, which ends Run without error. The first failing write, or ctx
// being canceled, stops it.
func (w *Writer) Run(ctx context.Context, producer stream.EventProducer) error {
	events, err := producer.TakeEventStream()
	if err != nil {
		return fmt.Errorf("taking event stream: %w", err)
	}

	applied := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				zlog.Info("event stream closed, writer done", zap.String("event_source", w.source), zap.Int("applied_count", applied))
				return nil
			}

			if err := w.store.Apply(ctx, w.source, ev); err != nil {
				return fmt.Errorf("applying %s: %w", ev, err)
			}
			applied++
		}
	}
}
