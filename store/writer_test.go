package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProducer struct {
	once   stream.Once
	events chan entity.Event
}

func newTestProducer(events ...entity.Event) *testProducer {
	p := &testProducer{events: make(chan entity.Event, len(events))}
	for _, ev := range events {
		p.events <- ev
	}
	return p
}

func (p *testProducer) TakeEventStream() (<-chan entity.Event, error) {
	if err := p.once.Take(); err != nil {
		return nil, err
	}
	return p.events, nil
}

func TestWriter_AppliesInOrderUntilClose(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	account := entity.NewStoreKey("sg1", "Account", "0xabc")
	other := entity.NewStoreKey("sg1", "Account", "0xdef")
	producer := newTestProducer(
		entity.NewEntitySet(account, entity.Entity{"balance": entity.String("100")}),
		entity.NewEntitySet(other, entity.Entity{"balance": entity.String("1")}),
		entity.NewEntitySet(account, entity.Entity{"balance": entity.String("40")}),
		entity.NewEntityRemoved(other),
	)
	close(producer.events)

	require.NoError(t, NewWriter(s, "sg1").Run(ctx, producer))

	loaded, err := s.Load(ctx, account)
	require.NoError(t, err)
	assert.True(t, entity.Entity{"balance": entity.String("40")}.Equal(loaded))

	_, err = s.Load(ctx, other)
	assert.ErrorIs(t, err, ErrNotFound)

	err = NewWriter(s, "sg1").Run(ctx, producer)
	assert.ErrorIs(t, err, stream.ErrAlreadyTaken)
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, string, entity.Event) error {
	return errors.New("disk full")
}

func TestWriter_StopsOnWriteFailure(t *testing.T) {
	producer := newTestProducer(entity.NewEntityRemoved(entity.NewStoreKey("sg1", "Account", "0xabc")))

	err := NewWriter(failingApplier{}, "sg1").Run(context.Background(), producer)
	assert.EqualError(t, err, "applying remove sg1/Account/0xabc: disk full")
}

func TestWriter_StopsOnContextCancel(t *testing.T) {
	producer := newTestProducer()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewWriter(newTestStore(t), "sg1").Run(ctx, producer)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
