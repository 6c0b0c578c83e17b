// Package subscription implements per-subject delivery: the shared
// accounting base, a blocking pull path and a push path driven by a
// dedicated worker goroutine.
//
// A message is counted once, when a consumer takes it from the
// subscription's queue. The subscription lock guards the counters and
// flags and is never held across a queue pull or a handler call.
package subscription

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/syntrixbase/natsub/internal/core/metrics"
	"github.com/syntrixbase/natsub/internal/core/queue"
)

// Subscription is the state shared by both delivery paths.
type Subscription struct {
	mu sync.Mutex

	sid        uint64
	subject    string
	queueGroup string
	kind       string

	conn  Conn
	queue *queue.Queue[*Message]

	delivered    uint64
	max          int
	pendingMsgs  int
	pendingBytes int

	closed     bool
	draining   bool
	connClosed bool
	slow       bool

	// announced is set once the server knows the sid. Sync subscriptions
	// are announced by their connection on creation, async ones on Start.
	announced bool

	// ready reports whether a consumer exists. Called with mu held.
	ready func() bool

	logger  *slog.Logger
	metrics metrics.Metrics
}

func newSubscription(conn Conn, subject, queueGroup, kind string, opts []Option) *Subscription {
	o := buildOptions(opts)
	s := &Subscription{
		sid:        o.sid,
		subject:    subject,
		queueGroup: queueGroup,
		kind:       kind,
		conn:       conn,
		queue:      queue.New[*Message](),
		metrics:    o.metrics,
	}
	s.logger = o.logger.With("component", "subscription", "sid", o.sid, "subject", subject)
	s.ready = func() bool { return true }
	return s
}

// SID returns the connection-assigned subscription id.
func (s *Subscription) SID() uint64 { return s.sid }

// Subject returns the subscribed subject pattern.
func (s *Subscription) Subject() string { return s.subject }

// Queue returns the queue group, empty for plain subscriptions.
func (s *Subscription) Queue() string { return s.queueGroup }

// Kind returns metrics.KindSync or metrics.KindAsync.
func (s *Subscription) Kind() string { return s.kind }

// Delivered returns how many messages consumers have taken.
func (s *Subscription) Delivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Max returns the delivery limit; zero or less means unbounded.
func (s *Subscription) Max() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

// UnsubscribeMax is the limit to attach to an unsubscribe frame: zero
// once the subscription is closing, otherwise the configured max.
func (s *Subscription) UnsubscribeMax() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.draining || s.max < 0 {
		return 0
	}
	return s.max
}

// Pending returns the messages and bytes accepted but not yet consumed.
func (s *Subscription) Pending() (msgs, bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingMsgs, s.pendingBytes
}

// IsValid reports whether the subscription still accepts messages.
func (s *Subscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.connClosed && s.conn != nil
}

// IsDraining reports whether Drain was called and the backlog is not
// yet consumed.
func (s *Subscription) IsDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining && !s.closed
}

// ProcessMsg hands an inbound message to the subscription. It returns
// false when the caller should stop routing to this subscription.
// A message arriving before any consumer exists is discarded.
func (s *Subscription) ProcessMsg(msg *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.draining {
		return false
	}
	if !s.ready() {
		s.metrics.IncDropped(s.kind, metrics.ReasonNoConsumer)
		return true
	}
	if s.connClosed {
		return false
	}

	msg.Sub = s
	msg.conn = s.conn
	if !s.queue.Push(msg) {
		return false
	}
	s.pendingMsgs++
	s.pendingBytes += msg.Size()
	return true
}

// MarkSlowConsumer flags that messages were dropped for this
// subscription. It reports whether the flag was newly raised.
func (s *Subscription) MarkSlowConsumer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slow {
		return false
	}
	s.slow = true
	s.metrics.IncSlowConsumer(s.kind)
	return true
}

// MarkConnectionClosed records that the owning connection was torn down
// and wakes any blocked consumer.
func (s *Subscription) MarkConnectionClosed() {
	s.mu.Lock()
	if s.connClosed {
		s.mu.Unlock()
		return
	}
	s.connClosed = true
	q := s.queue
	s.mu.Unlock()

	q.Close()
}

// AutoUnsubscribe closes the subscription after max messages in total
// have been delivered. A max already reached closes it now.
func (s *Subscription) AutoUnsubscribe(max int) error {
	s.mu.Lock()
	if s.closed || s.conn == nil {
		s.mu.Unlock()
		return ErrBadSubscription
	}
	if s.connClosed {
		s.mu.Unlock()
		return ErrConnectionClosed
	}
	s.max = max
	c := s.conn
	announced := s.announced
	reached := max > 0 && s.delivered >= uint64(max)
	s.mu.Unlock()

	if reached {
		s.finish()
	}
	if !announced {
		return nil
	}
	return c.SendUnsubscribeMessage(s)
}

// Unsubscribe stops delivery and detaches from the connection. Calling
// it again is a no-op.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.conn
	connClosed := s.connClosed
	announced := s.announced
	q := s.queue
	s.mu.Unlock()

	q.Close()
	if c == nil || connClosed {
		return nil
	}
	c.RemoveSubscription(s)
	if !announced {
		return nil
	}
	return c.SendUnsubscribeMessage(s)
}

// Drain stops intake but lets the consumer take what is already queued.
// The subscription closes once the backlog is empty.
func (s *Subscription) Drain() error {
	s.mu.Lock()
	if s.closed || s.draining {
		s.mu.Unlock()
		return nil
	}
	if s.connClosed {
		s.mu.Unlock()
		return ErrConnectionClosed
	}
	s.draining = true
	c := s.conn
	announced := s.announced
	s.mu.Unlock()

	var err error
	if c != nil && announced {
		err = c.SendUnsubscribeMessage(s)
	}
	s.finishIfDrained()
	return err
}

// tallyLocked counts a message taken from the queue. deliver is false
// when the message overshot the limit; last is true for the message
// that reaches it.
func (s *Subscription) tallyLocked(msg *Message) (deliver, last bool) {
	s.pendingMsgs--
	s.pendingBytes -= msg.Size()
	s.delivered++
	if s.max <= 0 {
		return true, false
	}
	max := uint64(s.max)
	return s.delivered <= max, s.delivered == max
}

// finish closes the subscription after its final delivery and drops the
// connection reference. It never waits on the async worker.
func (s *Subscription) finish() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	c := s.conn
	s.conn = nil
	q := s.queue
	s.mu.Unlock()

	q.Close()
	if c != nil {
		c.RemoveSubscription(s)
	}
}

func (s *Subscription) finishIfDrained() {
	s.mu.Lock()
	done := s.draining && !s.closed && s.queue.Len() == 0
	s.mu.Unlock()
	if done {
		s.finish()
	}
}

// closedErr maps a pull on a closed queue to the subscription's state.
func (s *Subscription) closedErr(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.connClosed:
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	case s.max > 0 && s.delivered >= uint64(s.max):
		return ErrMaxMessages
	default:
		return fmt.Errorf("%w: %w", ErrBadSubscription, err)
	}
}

func (s *Subscription) String() string {
	if s.queueGroup != "" {
		return fmt.Sprintf("%s sub %d on %q queue %q", s.kind, s.sid, s.subject, s.queueGroup)
	}
	return fmt.Sprintf("%s sub %d on %q", s.kind, s.sid, s.subject)
}
