package query

import (
	"context"
	"errors"
	"sync"
)

var ErrAlreadySettled = errors.New("promise already settled")

// Promise carries the single result of a query back to the request that
// issued it. It is settled exactly once, by Fulfill or Fail.
type Promise struct {
	once   sync.Once
	done   chan struct{}
	result []byte
	err    error
}

func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) Fulfill(result []byte) error {
	return p.settle(result, nil)
}

func (p *Promise) Fail(err error) error {
	if err == nil {
		err = errors.New("query failed")
	}
	return p.settle(nil, err)
}

func (p *Promise) settle(result []byte, err error) error {
	settled := false
	p.once.Do(func() {
		p.result = result
		p.err = err
		settled = true
		close(p.done)
	})
	if !settled {
		return ErrAlreadySettled
	}
	return nil
}

// Wait blocks until the promise is settled or ctx is done.
func (p *Promise) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query is one request received by the server. Whoever reads it off the
// query stream must settle Promise.
type Query struct {
	Body    []byte
	Promise *Promise
}
