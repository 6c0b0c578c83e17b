// Package metrics defines the telemetry hooks of the subscriber runtime.
package metrics

// Subscription kinds used as label values.
const (
	KindSync  = "sync"
	KindAsync = "async"
)

// Drop reasons.
const (
	ReasonNoConsumer    = "no_consumer"
	ReasonMaxExceeded   = "max_exceeded"
	ReasonSlowConsumer  = "slow_consumer"
	ReasonClosed        = "closed"
	ReasonInvalidHeader = "invalid_header"
	ReasonUnknownSID    = "unknown_sid"
)

// Request results.
const (
	ResultOK           = "ok"
	ResultTimeout      = "timeout"
	ResultNoResponders = "no_responders"
	ResultError        = "error"
)

// Metrics receives delivery and control-plane events.
type Metrics interface {
	// IncDelivered counts a message handed to a consumer.
	IncDelivered(kind string)
	// IncDropped counts a message discarded before reaching a consumer.
	IncDropped(kind, reason string)
	// IncControl counts an intercepted control frame by status kind.
	IncControl(kind string)
	// IncSlowConsumer counts a slow-consumer transition.
	IncSlowConsumer(kind string)
	IncHandlerPanic()
	IncRequest(result string)
}
