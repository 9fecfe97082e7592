package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/store"
	"go.uber.org/zap"
)

// Request is the single query type served: a lookup of one entity by key.
type Request struct {
	entity.StoreKey
}

type Response struct {
	entity.StoreKey
	Data entity.Entity `json:"data"`
}

// Executor answers queries from the entity store.
type Executor struct {
	reader store.Reader
	logger *zap.Logger
}

func NewExecutor(reader store.Reader, logger *zap.Logger) *Executor {
	return &Executor{reader: reader, logger: logger}
}

// Run settles every query read from queries until the stream is closed or
// ctx is done.
func (e *Executor) Run(ctx context.Context, queries <-chan *Query) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-queries:
			if !ok {
				return nil
			}

			result, err := e.Execute(ctx, q.Body)
			if err != nil {
				err = q.Promise.Fail(err)
			} else {
				err = q.Promise.Fulfill(result)
			}
			if err != nil {
				e.logger.Warn("unable to settle query promise", zap.Error(err))
			}
		}
	}
}

func (e *Executor) Execute(ctx context.Context, body []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	ent, err := e.reader.Load(ctx, req.StoreKey)
	if err != nil {
		return nil, err
	}

	return json.Marshal(&Response{StoreKey: req.StoreKey, Data: ent})
}
