package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsEmitted       *prometheus.CounterVec
	OutputPending       *prometheus.GaugeVec
	OutputBlocked       *prometheus.CounterVec
	Invocations         *prometheus.CounterVec
	InvocationDuration  *prometheus.HistogramVec
	ExecutionErrors     *prometheus.CounterVec
	SubscriptionsActive *prometheus.GaugeVec
	SubscriptionFailure *prometheus.CounterVec

	StoreOperations *prometheus.CounterVec
	QueryRequests   *prometheus.CounterVec
}

// New registers the runtime collectors on registerer. Pass a fresh
// prometheus.NewRegistry() in tests.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subgraph_host_events_emitted_total",
			Help: "Entity events forwarded on the host output stream",
		}, []string{"subgraph"}),
		OutputPending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subgraph_host_output_pending",
			Help: "Entity events buffered in the host output stream, waiting for the consumer",
		}, []string{"subgraph"}),
		OutputBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subgraph_host_output_blocked_seconds_total",
			Help: "Time spent waiting for room in a full host output stream",
		}, []string{"subgraph"}),
		Invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subgraph_host_invocations_total",
			Help: "Mapping handler invocations",
		}, []string{"subgraph", "handler", "status"}),
		InvocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subgraph_host_invocation_duration_seconds",
			Help:    "Mapping handler invocation latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"subgraph", "handler"}),
		ExecutionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subgraph_host_execution_errors_total",
			Help: "Failed mapping invocations, by failure kind",
		}, []string{"subgraph", "kind"}),
		SubscriptionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subgraph_host_subscriptions_active",
			Help: "Chain event subscriptions currently dispatching",
		}, []string{"subgraph"}),
		SubscriptionFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subgraph_host_subscription_failures_total",
			Help: "Subscriptions rejected by the chain adapter",
		}, []string{"subgraph"}),
		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subgraph_store_operations_total",
			Help: "Entity store writes",
		}, []string{"op", "status"}),
		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subgraph_query_requests_total",
			Help: "Queries received by the query server, by outcome",
		}, []string{"status"}),
	}
}

// NewNoop returns collectors registered nowhere.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveInvocation(subgraph, handler, status string, elapsed time.Duration) {
	m.Invocations.WithLabelValues(subgraph, handler, status).Inc()
	m.InvocationDuration.WithLabelValues(subgraph, handler).Observe(elapsed.Seconds())
}
