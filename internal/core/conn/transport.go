package conn

import (
	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/natsub/internal/core/subscription"
)

// Sink receives inbound messages from a transport.
type Sink interface {
	// Deliver routes msg to the subscription registered under sid.
	Deliver(sid uint64, msg *subscription.Message)
}

// Transport moves protocol operations to and from a server. Frame
// encoding and reconnection live behind it.
type Transport interface {
	// Bind sets the sink for inbound messages. It is called once,
	// before any other method.
	Bind(sink Sink)
	Subscribe(sid uint64, subject, queue string) error
	// Unsubscribe stops delivery for sid, after max messages when max > 0.
	Unsubscribe(sid uint64, max int) error
	Publish(subject, reply string, header nats.Header, data []byte) error
	// Ping calls pong once the server has processed everything sent so far.
	Ping(pong func()) error
	Close() error
}
