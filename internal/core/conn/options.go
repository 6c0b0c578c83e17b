package conn

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/natsub/internal/core/handoff"
	"github.com/syntrixbase/natsub/internal/core/metrics"
)

// Defaults applied by New.
const (
	DefaultRequestTimeout = 2 * time.Second
	DefaultFlushTimeout   = 10 * time.Second
	DefaultInboxPrefix    = nats.InboxPrefix
)

// Option configures a Conn.
type Option func(*options)

type options struct {
	logger            *slog.Logger
	metrics           metrics.Metrics
	pendingMsgsLimit  int
	pendingBytesLimit int
	requestTimeout    time.Duration
	flushTimeout      time.Duration
	inboxPrefix       string
	poolCapacity      int
}

func defaultOptions() options {
	return options{
		logger:            slog.Default(),
		metrics:           metrics.Nop{},
		pendingMsgsLimit:  nats.DefaultSubPendingMsgsLimit,
		pendingBytesLimit: nats.DefaultSubPendingBytesLimit,
		requestTimeout:    DefaultRequestTimeout,
		flushTimeout:      DefaultFlushTimeout,
		inboxPrefix:       DefaultInboxPrefix,
		poolCapacity:      handoff.DefaultPoolCapacity,
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics.OrNop(m)
	}
}

// WithPendingLimits bounds the messages and bytes a subscription may
// hold unconsumed before it is marked a slow consumer. Zero or less
// disables a limit.
func WithPendingLimits(msgs, bytes int) Option {
	return func(o *options) {
		o.pendingMsgsLimit = msgs
		o.pendingBytesLimit = bytes
	}
}

// WithRequestTimeout sets the timeout used by Request when none is given.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithFlushTimeout sets the timeout used by Flush when none is given.
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}

// WithInboxPrefix sets the prefix of reply subjects.
func WithInboxPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.inboxPrefix = prefix
		}
	}
}

// WithPoolCapacity bounds the idle handoff cells kept for requests and pings.
func WithPoolCapacity(n int) Option {
	return func(o *options) {
		o.poolCapacity = n
	}
}
