package host

import (
	"time"
)

const (
	DefaultOutputCapacity = 100
	DefaultTeardownGrace  = 30 * time.Second
	DefaultMaxOperations  = 10000
)

type config struct {
	outputCapacity int
	teardownGrace  time.Duration
	maxOperations  int
	dataSources    []string
}

func newConfig(opts []Option) *config {
	c := &config{
		outputCapacity: DefaultOutputCapacity,
		teardownGrace:  DefaultTeardownGrace,
		maxOperations:  DefaultMaxOperations,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(c *config)

// WithOutputCapacity bounds the host output stream. Emission blocks once
// that many events are waiting for the consumer.
func WithOutputCapacity(capacity int) Option {
	return func(c *config) {
		if capacity > 0 {
			c.outputCapacity = capacity
		}
	}
}

// WithTeardownGrace is how long shutdown waits for in-flight invocations to
// hand their events to the consumer before dropping them.
func WithTeardownGrace(grace time.Duration) Option {
	return func(c *config) {
		c.teardownGrace = grace
	}
}

// WithMaxOperations caps the entity operations a single invocation may
// emit. Zero disables the cap.
func WithMaxOperations(max int) Option {
	return func(c *config) {
		c.maxOperations = max
	}
}

// WithDataSources restricts the host to the named data sources of the
// manifest.
func WithDataSources(names ...string) Option {
	return func(c *config) {
		c.dataSources = names
	}
}
