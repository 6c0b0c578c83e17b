package memory

import (
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/natsub/internal/core/protocol"
	"github.com/syntrixbase/natsub/internal/core/subscription"
)

// Picker chooses which of n queue group members receives a message.
type Picker func(n int) int

// RandomPicker spreads messages uniformly over group members.
func RandomPicker(n int) int {
	return rand.IntN(n)
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithPicker sets the queue group selection policy.
func WithPicker(p Picker) BrokerOption {
	return func(b *Broker) {
		if p != nil {
			b.picker = p
		}
	}
}

// Broker routes messages between transports in the same process.
type Broker struct {
	mu      sync.Mutex
	entries []*entry
	picker  Picker
	closed  atomic.Bool
}

// entry is one subscription registered by a transport.
type entry struct {
	transport *Transport
	sid       uint64
	subject   string
	queue     string
	max       int
	delivered int
}

// target is a resolved delivery.
type target struct {
	transport *Transport
	sid       uint64
}

// NewBroker creates an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{picker: RandomPicker}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect returns a new transport attached to b.
func (b *Broker) Connect() *Transport {
	return &Transport{broker: b}
}

// NumSubscriptions returns the number of live entries.
func (b *Broker) NumSubscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Broker) subscribe(t *Transport, sid uint64, subject, queue string) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if e.transport == t && e.sid == sid {
			return ErrDuplicateSID
		}
	}
	b.entries = append(b.entries, &entry{transport: t, sid: sid, subject: subject, queue: queue})
	return nil
}

func (b *Broker) unsubscribe(t *Transport, sid uint64, max int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.transport != t || e.sid != sid {
			continue
		}
		if max > 0 && e.delivered < max {
			e.max = max
			return
		}
		b.entries = slices.Delete(b.entries, i, i+1)
		return
	}
}

func (b *Broker) removeTransport(t *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = slices.DeleteFunc(b.entries, func(e *entry) bool { return e.transport == t })
}

// publish delivers to every plain subscriber and to one member of each
// queue group. A request nobody receives is answered with a
// no-responders status on its reply subject.
func (b *Broker) publish(subject, reply string, hdr nats.Header, data []byte) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	if !validPublishSubject(subject) {
		return ErrInvalidSubject
	}

	b.mu.Lock()
	targets := b.routeLocked(subject)
	var noResponders []target
	if len(targets) == 0 && reply != "" {
		noResponders = b.routeLocked(reply)
	}
	b.mu.Unlock()

	// Sinks are called outside the lock: a handler may publish.
	for _, tg := range targets {
		tg.transport.deliver(tg.sid, subscription.NewMsg(subject, reply, cloneHeader(hdr), slices.Clone(data)))
	}
	for _, tg := range noResponders {
		status := protocol.StatusHeader(protocol.StatusNoResponders, protocol.DescNoResponders)
		tg.transport.deliver(tg.sid, subscription.NewMsg(reply, "", status, nil))
	}
	return nil
}

// routeLocked resolves subject to deliveries and applies auto-unsubscribe
// limits. Called with mu held.
func (b *Broker) routeLocked(subject string) []target {
	var (
		targets []target
		groups  map[string][]*entry
		order   []string
	)
	for _, e := range b.entries {
		if !matchSubject(e.subject, subject) {
			continue
		}
		if e.queue == "" {
			targets = append(targets, b.takeLocked(e))
			continue
		}
		if groups == nil {
			groups = make(map[string][]*entry)
		}
		if _, ok := groups[e.queue]; !ok {
			order = append(order, e.queue)
		}
		groups[e.queue] = append(groups[e.queue], e)
	}
	for _, q := range order {
		members := groups[q]
		i := b.picker(len(members))
		if i < 0 || i >= len(members) {
			i = 0
		}
		targets = append(targets, b.takeLocked(members[i]))
	}

	b.entries = slices.DeleteFunc(b.entries, func(e *entry) bool {
		return e.max > 0 && e.delivered >= e.max
	})
	return targets
}

func (b *Broker) takeLocked(e *entry) target {
	e.delivered++
	return target{transport: e.transport, sid: e.sid}
}

// Close stops all routing. Closing twice is a no-op.
func (b *Broker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	return nil
}

// IsClosed returns true if the broker is closed.
func (b *Broker) IsClosed() bool {
	return b.closed.Load()
}

func cloneHeader(h nats.Header) nats.Header {
	if h == nil {
		return nil
	}
	out := make(nats.Header, len(h))
	for k, v := range h {
		out[k] = slices.Clone(v)
	}
	return out
}
