package mongo

import (
	"context"

	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Option adjusts the client options before connecting.
type Option func(*options.ClientOptions)

// WithMetrics records the duration and outcome of every command the driver sends.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(opts *options.ClientOptions) {
		opts.SetMonitor(newCommandMonitor(m))
	}
}

func newCommandMonitor(m *metrics.StoreMetrics) *event.CommandMonitor {
	return &event.CommandMonitor{
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			m.Observe("mongo", e.CommandName, e.Duration.Seconds(), false)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			m.Observe("mongo", e.CommandName, e.Duration.Seconds(), true)
		},
	}
}
