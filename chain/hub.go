package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streamingfast/shutter"
	"go.uber.org/zap"
)

const DefaultSubscriberBufferSize = 100

var ErrHubTerminated = errors.New("subscription hub terminated")

// Hub is an in-process Adapter fed by Broadcast. Every subscription gets
// its own bounded buffer; a full buffer blocks the broadcaster.
type Hub struct {
	*shutter.Shutter

	logger     *zap.Logger
	bufferSize int

	subscribersMutex sync.RWMutex
	subscribers      []*subscriber
	byID             map[string]*subscriber
}

type HubOption func(h *Hub)

func WithSubscriberBufferSize(size int) HubOption {
	return func(h *Hub) {
		h.bufferSize = size
	}
}

func NewHub(logger *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		logger:     logger,
		bufferSize: DefaultSubscriberBufferSize,
		byID:       map[string]*subscriber{},
	}
	for _, opt := range opts {
		opt(h)
	}

	h.Shutter = shutter.New(shutter.RegisterOnTerminating(h.closeAll))
	return h
}

func (h *Hub) Subscribe(sub *Subscription) (<-chan *Event, error) {
	if sub == nil || sub.ID == "" {
		return nil, fmt.Errorf("subscription must have an id")
	}

	h.subscribersMutex.Lock()
	defer h.subscribersMutex.Unlock()

	if h.IsTerminating() {
		return nil, ErrHubTerminated
	}

	if _, found := h.byID[sub.ID]; found {
		return nil, fmt.Errorf("subscription %q already registered", sub.ID)
	}

	s := newSubscriber(sub, h.bufferSize)
	h.subscribers = append(h.subscribers, s)
	h.byID[sub.ID] = s

	h.logger.Debug("subscription registered",
		zap.String("subscription_id", sub.ID),
		zap.String("event_signature", sub.EventSignature),
		zap.String("address", sub.Address.Pretty()),
		zap.Stringer("range", sub.Range),
	)
	return s.events, nil
}

func (h *Hub) Unsubscribe(id string) error {
	h.subscribersMutex.Lock()
	s, found := h.byID[id]
	if !found {
		h.subscribersMutex.Unlock()
		return fmt.Errorf("subscription %q not found", id)
	}

	delete(h.byID, id)
	kept := h.subscribers[:0]
	for _, candidate := range h.subscribers {
		if candidate != s {
			kept = append(kept, candidate)
		}
	}
	h.subscribers = kept
	h.subscribersMutex.Unlock()

	s.close()
	h.logger.Debug("subscription removed", zap.String("subscription_id", id))
	return nil
}

// Broadcast delivers ev to every matching subscription, in registration
// order. It blocks while a matching subscriber's buffer is full.
func (h *Hub) Broadcast(ctx context.Context, ev *Event) error {
	h.subscribersMutex.RLock()
	var targets []*subscriber
	for _, s := range h.subscribers {
		if s.subscription.Matches(ev) {
			targets = append(targets, s)
		}
	}
	h.subscribersMutex.RUnlock()

	for _, s := range targets {
		if err := s.send(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) SubscriptionCount() int {
	h.subscribersMutex.RLock()
	defer h.subscribersMutex.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) closeAll(err error) {
	h.subscribersMutex.Lock()
	subscribers := h.subscribers
	h.subscribers = nil
	h.byID = map[string]*subscriber{}
	h.subscribersMutex.Unlock()

	h.logger.Info("closing subscription hub", zap.Int("subscription_count", len(subscribers)), zap.Error(err))
	for _, s := range subscribers {
		s.close()
	}
}
