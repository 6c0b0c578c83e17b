package memory

import (
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/natsub/internal/core/conn"
	"github.com/syntrixbase/natsub/internal/core/subscription"
)

var _ conn.Transport = (*Transport)(nil)

// Transport is one client connection to a Broker.
type Transport struct {
	broker *Broker
	closed atomic.Bool

	mu   sync.RWMutex
	sink conn.Sink
}

// Bind implements conn.Transport.
func (t *Transport) Bind(sink conn.Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Subscribe implements conn.Transport.
func (t *Transport) Subscribe(sid uint64, subject, queue string) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return t.broker.subscribe(t, sid, subject, queue)
}

// Unsubscribe implements conn.Transport.
func (t *Transport) Unsubscribe(sid uint64, max int) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	t.broker.unsubscribe(t, sid, max)
	return nil
}

// Publish implements conn.Transport.
func (t *Transport) Publish(subject, reply string, hdr nats.Header, data []byte) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return t.broker.publish(subject, reply, hdr, data)
}

// Ping answers immediately: publishes are delivered before they return.
func (t *Transport) Ping(pong func()) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if t.broker.IsClosed() {
		return ErrBrokerClosed
	}
	pong()
	return nil
}

// Close detaches the transport from the broker.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.broker.removeTransport(t)
	return nil
}

func (t *Transport) deliver(sid uint64, msg *subscription.Message) {
	if t.closed.Load() {
		return
	}
	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()
	if sink != nil {
		sink.Deliver(sid, msg)
	}
}
