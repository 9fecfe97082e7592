package chain

import (
	"context"
	"sync"
)

type subscriber struct {
	subscription *Subscription
	events       chan *Event
	done         chan struct{}

	closeOnce sync.Once
	lock      sync.Mutex // held while sending, so close never races a send
	closed    bool
}

func newSubscriber(sub *Subscription, bufferSize int) *subscriber {
	return &subscriber{
		subscription: sub,
		events:       make(chan *Event, bufferSize),
		done:         make(chan struct{}),
	}
}

func (s *subscriber) send(ctx context.Context, ev *Event) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}

	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.lock.Lock()
		s.closed = true
		close(s.events)
		s.lock.Unlock()
	})
}
