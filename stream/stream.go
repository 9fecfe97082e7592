package stream

import (
	"errors"

	"github.com/streamingfast/subgraph-runtime/entity"
	"go.uber.org/atomic"
)

var ErrAlreadyTaken = errors.New("stream already taken")

// EventProducer hands out its outbound entity event stream to a single
// consumer. Every call after the first returns ErrAlreadyTaken.
type EventProducer interface {
	TakeEventStream() (<-chan entity.Event, error)
}

// Once guards a one-shot hand-off of a stream.
type Once struct {
	taken atomic.Bool
}

// Take returns nil the first time it is called and ErrAlreadyTaken afterwards.
func (o *Once) Take() error {
	if !o.taken.CAS(false, true) {
		return ErrAlreadyTaken
	}
	return nil
}

func (o *Once) Taken() bool {
	return o.taken.Load()
}
