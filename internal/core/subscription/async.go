package subscription

import (
	"github.com/syntrixbase/natsub/internal/core/metrics"
	"github.com/syntrixbase/natsub/internal/core/queue"
)

// Handler is invoked once per delivered message from the worker goroutine.
type Handler func(msg *Message)

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// AsyncSubscription pushes messages to a Handler from one dedicated
// worker goroutine.
type AsyncSubscription struct {
	*Subscription

	// guarded by Subscription.mu
	handler Handler
	started bool
	done    chan struct{}
}

// NewAsync creates a push subscription owned by conn. Delivery begins on
// Start, or on the first SetHandler with a non-nil handler.
func NewAsync(conn Conn, subject, queueGroup string, opts ...Option) *AsyncSubscription {
	a := &AsyncSubscription{Subscription: newSubscription(conn, subject, queueGroup, metrics.KindAsync, opts)}
	a.ready = func() bool { return a.started && a.handler != nil }
	return a
}

// SetHandler replaces the handler. Registering the first handler starts
// delivery.
func (a *AsyncSubscription) SetHandler(h Handler) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrBadSubscription
	}
	a.handler = h
	started := a.started
	a.mu.Unlock()

	if h == nil || started {
		return nil
	}
	return a.Start()
}

// Start subscribes on the connection and launches the worker. Starting
// a started subscription is a no-op.
func (a *AsyncSubscription) Start() error {
	a.mu.Lock()
	if a.closed || a.conn == nil {
		a.mu.Unlock()
		return ErrBadSubscription
	}
	if a.connClosed {
		a.mu.Unlock()
		return ErrConnectionClosed
	}
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	c := a.conn
	a.mu.Unlock()

	if err := c.SendSubscriptionMessage(a.Subscription); err != nil {
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	a.announced = true
	closed := a.closed
	if a.done == nil && !closed {
		a.done = make(chan struct{})
		go a.run(a.queue, a.done)
	}
	a.mu.Unlock()

	// Unsubscribed while the subscribe frame was in flight.
	if closed {
		if err := c.SendUnsubscribeMessage(a.Subscription); err != nil {
			return err
		}
		return ErrBadSubscription
	}
	return nil
}

// AutoUnsubscribe starts the subscription so the limit applies before
// any explicit Start, then sets the limit.
func (a *AsyncSubscription) AutoUnsubscribe(max int) error {
	if err := a.Start(); err != nil {
		return err
	}
	return a.Subscription.AutoUnsubscribe(max)
}

// Unsubscribe stops the worker after its in-flight handler call and
// detaches from the connection.
func (a *AsyncSubscription) Unsubscribe() error {
	a.mu.Lock()
	a.handler = nil
	a.started = false
	q := a.queue
	a.mu.Unlock()

	q.Close()
	return a.Subscription.Unsubscribe()
}

// Done is closed when the worker has exited. It is already closed for a
// subscription that never started.
func (a *AsyncSubscription) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done == nil {
		return closedDone
	}
	return a.done
}

func (a *AsyncSubscription) run(q *queue.Queue[*Message], done chan struct{}) {
	defer close(done)

	for {
		msg, err := q.Pull(-1)
		if err != nil {
			return
		}

		a.mu.Lock()
		deliver, last := a.tallyLocked(msg)
		h := a.handler
		slow := a.slow
		a.slow = false
		a.mu.Unlock()

		if slow {
			a.logger.Warn("Slow consumer, messages were dropped", "delivered", a.Delivered())
		}

		switch {
		case !deliver:
			a.metrics.IncDropped(a.kind, metrics.ReasonMaxExceeded)
		case h == nil:
			a.metrics.IncDropped(a.kind, metrics.ReasonNoConsumer)
		default:
			a.metrics.IncDelivered(a.kind)
			a.dispatch(h, msg)
		}

		if last {
			a.finish()
			return
		}
		a.finishIfDrained()
	}
}

// dispatch runs h, discarding a panic so the next message is still
// delivered.
func (a *AsyncSubscription) dispatch(h Handler, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			a.metrics.IncHandlerPanic()
			a.logger.Warn("Message handler panicked", "msg_subject", msg.Subject, "panic", r)
		}
	}()
	h(msg)
}
