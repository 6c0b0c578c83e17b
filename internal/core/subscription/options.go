package subscription

import (
	"log/slog"

	"github.com/syntrixbase/natsub/internal/core/metrics"
)

// Option configures a subscription.
type Option func(*options)

type options struct {
	sid     uint64
	logger  *slog.Logger
	metrics metrics.Metrics
}

// WithSID sets the connection-assigned subscription id.
func WithSID(sid uint64) Option {
	return func(o *options) {
		o.sid = sid
	}
}

// WithLogger sets the logger used for swallowed delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.metrics = metrics.OrNop(o.metrics)
	return o
}
