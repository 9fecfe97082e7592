package host

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streamingfast/shutter"
	"github.com/streamingfast/subgraph-runtime/chain"
	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/manifest"
	"github.com/streamingfast/subgraph-runtime/mapping"
	"github.com/streamingfast/subgraph-runtime/metrics"
	"github.com/streamingfast/subgraph-runtime/stream"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RuntimeHost runs the mappings of one subgraph: chain events received on
// its subscriptions are decoded, handed to the data source module, and the
// resulting entity events are published on a single bounded stream.
type RuntimeHost struct {
	*shutter.Shutter

	manifest *manifest.Manifest
	adapter  chain.Adapter
	logger   *zap.Logger
	metrics  *metrics.Metrics
	config   *config

	runtimes []*runtime

	subscriptionsLock sync.Mutex
	subscriptions     []*chain.Subscription
	failed            map[string]error
	subscriptionErr   error

	output       chan entity.Event
	outputOnce   stream.Once
	outputLock   sync.RWMutex
	outputClosed bool

	// recvCtx ends when shutdown starts, emitCtx once the teardown grace
	// period is over.
	recvCtx    context.Context
	recvCancel context.CancelFunc
	emitCtx    context.Context
	emitCancel context.CancelFunc
	dispatches sync.WaitGroup
}

func newRuntimeHost(manif *manifest.Manifest, adapter chain.Adapter, logger *zap.Logger, m *metrics.Metrics, conf *config) *RuntimeHost {
	h := &RuntimeHost{
		manifest: manif,
		adapter:  adapter,
		logger:   logger,
		metrics:  m,
		config:   conf,
		failed:   map[string]error{},
		output:   make(chan entity.Event, conf.outputCapacity),
	}
	h.recvCtx, h.recvCancel = context.WithCancel(context.Background())
	h.emitCtx, h.emitCancel = context.WithCancel(context.Background())
	h.Shutter = shutter.New(shutter.RegisterOnTerminating(h.teardown))
	return h
}

func (h *RuntimeHost) SubgraphManifest() *manifest.Manifest {
	return h.manifest
}

// TakeEventStream hands out the output stream. Only the first call
// succeeds, later ones return stream.ErrAlreadyTaken. The stream is closed
// once the host is shut down.
func (h *RuntimeHost) TakeEventStream() (<-chan entity.Event, error) {
	if err := h.outputOnce.Take(); err != nil {
		return nil, err
	}
	return h.output, nil
}

func (h *RuntimeHost) Subscriptions() []*chain.Subscription {
	h.subscriptionsLock.Lock()
	defer h.subscriptionsLock.Unlock()
	return append([]*chain.Subscription(nil), h.subscriptions...)
}

// FailedSubscriptions lists the subscriptions the chain adapter rejected,
// keyed by subscription id.
func (h *RuntimeHost) FailedSubscriptions() map[string]error {
	h.subscriptionsLock.Lock()
	defer h.subscriptionsLock.Unlock()

	out := make(map[string]error, len(h.failed))
	for id, err := range h.failed {
		out[id] = err
	}
	return out
}

// SubscriptionError aggregates every subscription failure, nil if none.
func (h *RuntimeHost) SubscriptionError() error {
	h.subscriptionsLock.Lock()
	defer h.subscriptionsLock.Unlock()
	return h.subscriptionErr
}

func (h *RuntimeHost) subscribe(rt *runtime) {
	for _, b := range rt.bindings {
		id := strings.ReplaceAll(uuid.New().String(), "-", "")
		logger := h.logger.With(
			zap.String("subscription_id", id),
			zap.String("data_source", rt.dataSource.Name),
			zap.String("handler", b.handler),
			zap.String("event_signature", b.event),
		)

		sub, err := chain.NewSubscription(id, rt.dataSource.Name, rt.address, b.event, rt.blockRange())
		if err == nil {
			var events <-chan *chain.Event
			if events, err = h.adapter.Subscribe(sub); err == nil {
				h.subscriptionsLock.Lock()
				h.subscriptions = append(h.subscriptions, sub)
				h.subscriptionsLock.Unlock()

				h.metrics.SubscriptionsActive.WithLabelValues(h.manifest.ID).Inc()
				h.dispatches.Add(1)
				go h.dispatch(logger, rt, b, sub, events)
				continue
			}
		}

		logger.Warn("chain adapter rejected subscription", zap.Error(err))
		h.metrics.SubscriptionFailure.WithLabelValues(h.manifest.ID).Inc()

		h.subscriptionsLock.Lock()
		h.failed[id] = err
		h.subscriptionErr = multierr.Append(h.subscriptionErr, err)
		h.subscriptionsLock.Unlock()
	}
}

// dispatch processes the events of one subscription, in stream order. A
// closed stream only ends this subscription.
func (h *RuntimeHost) dispatch(logger *zap.Logger, rt *runtime, b *binding, sub *chain.Subscription, events <-chan *chain.Event) {
	defer h.dispatches.Done()
	defer h.metrics.SubscriptionsActive.WithLabelValues(h.manifest.ID).Dec()

	for {
		select {
		case <-h.recvCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				logger.Info("subscription stream ended")
				return
			}
			if h.recvCtx.Err() != nil {
				return
			}
			if !h.handle(logger, rt, b, ev) {
				return
			}
		}
	}
}

// handle returns false when the host stopped emitting.
func (h *RuntimeHost) handle(logger *zap.Logger, rt *runtime, b *binding, ev *chain.Event) bool {
	decoded, err := b.decoder.Decode(b.handler, ev)
	if err != nil {
		h.reportFailure(logger, b, ev, err)
		return true
	}

	rt.lock.Lock()
	defer rt.lock.Unlock()

	if h.recvCtx.Err() != nil {
		return false
	}

	start := time.Now()
	err = rt.module.Invoke(h.emitCtx, b.handler, decoded)
	emitted := rt.takePending()
	if err != nil {
		h.metrics.ObserveInvocation(h.manifest.ID, b.handler, "error", time.Since(start))
		h.reportFailure(logger, b, ev, err)
		return true
	}
	h.metrics.ObserveInvocation(h.manifest.ID, b.handler, "ok", time.Since(start))

	for i, out := range emitted {
		if !h.forward(out) {
			logger.Warn("dropping entity events, host shut down while consumer was not reading",
				zap.Uint64("block_num", ev.BlockNumber),
				zap.Uint32("log_index", ev.LogIndex),
				zap.Int("dropped_count", len(emitted)-i),
			)
			return false
		}
	}
	return true
}

func (h *RuntimeHost) forward(ev entity.Event) bool {
	h.outputLock.RLock()
	defer h.outputLock.RUnlock()
	if h.outputClosed {
		return false
	}

	select {
	case h.output <- ev:
	default:
		h.logger.Debug("output stream full, waiting for consumer", zap.Int("capacity", cap(h.output)))

		start := time.Now()
		select {
		case h.output <- ev:
		case <-h.emitCtx.Done():
			return false
		}
		h.metrics.OutputBlocked.WithLabelValues(h.manifest.ID).Add(time.Since(start).Seconds())
	}

	h.metrics.EventsEmitted.WithLabelValues(h.manifest.ID).Inc()
	h.metrics.OutputPending.WithLabelValues(h.manifest.ID).Set(float64(len(h.output)))
	return true
}

func (h *RuntimeHost) reportFailure(logger *zap.Logger, b *binding, ev *chain.Event, err error) {
	kind := mapping.ErrorKindTrap
	var execErr *mapping.ExecutionError
	if errors.As(err, &execErr) {
		kind = execErr.Kind
	}

	h.metrics.ExecutionErrors.WithLabelValues(h.manifest.ID, kind.String()).Inc()
	logger.Error("handler invocation failed, skipping event",
		zap.Stringer("kind", kind),
		zap.Uint64("block_num", ev.BlockNumber),
		zap.String("transaction_hash", ev.TransactionHash.Pretty()),
		zap.Uint32("log_index", ev.LogIndex),
		zap.Error(err),
	)
}

func (h *RuntimeHost) teardown(err error) {
	h.logger.Info("shutting down runtime host", zap.Error(err))
	h.recvCancel()

	for _, sub := range h.Subscriptions() {
		if err := h.adapter.Unsubscribe(sub.ID); err != nil {
			h.logger.Debug("unable to unsubscribe", zap.String("subscription_id", sub.ID), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		h.dispatches.Wait()
		close(done)
	}()

	abandoned := false
	grace := time.NewTimer(h.config.teardownGrace)
	select {
	case <-done:
		grace.Stop()
	case <-grace.C:
		h.logger.Warn("teardown grace period elapsed, abandoning pending entity events", zap.Duration("grace", h.config.teardownGrace))
		h.emitCancel()

		// Invocations are not metered, a handler that never returns must not
		// hold the shutdown forever.
		running := time.NewTimer(h.config.teardownGrace)
		select {
		case <-done:
			running.Stop()
		case <-running.C:
			h.logger.Warn("handler invocations still running after teardown grace, abandoning their dispatch")
			abandoned = true
		}
	}
	h.emitCancel()

	h.outputLock.Lock()
	h.outputClosed = true
	close(h.output)
	h.outputLock.Unlock()

	if abandoned {
		h.logger.Warn("leaving modules open, some invocations have not returned")
	} else {
		h.closeModules()
	}
	h.logger.Info("runtime host terminated")
}

func (h *RuntimeHost) closeModules() {
	for _, rt := range h.runtimes {
		if err := rt.module.Close(); err != nil {
			h.logger.Warn("unable to close module", zap.String("data_source", rt.dataSource.Name), zap.Error(err))
		}
	}
}

var _ stream.EventProducer = (*RuntimeHost)(nil)
