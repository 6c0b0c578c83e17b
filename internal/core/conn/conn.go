// Package conn is the connection layer: it owns the routing table from
// subscription id to subscription, intercepts protocol control frames
// and correlates request/reply and ping/pong exchanges.
package conn

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/syntrixbase/natsub/internal/core/handoff"
	"github.com/syntrixbase/natsub/internal/core/metrics"
	"github.com/syntrixbase/natsub/internal/core/protocol"
	"github.com/syntrixbase/natsub/internal/core/subscription"
)

// reply is the outcome of one request.
type reply struct {
	msg *subscription.Message
	err error
}

// Conn routes inbound messages to subscriptions and implements the
// subscription.Conn contract on top of a Transport.
type Conn struct {
	id        string
	transport Transport
	opts      options
	logger    *slog.Logger
	metrics   metrics.Metrics

	subs    *xsync.Map[uint64, *subscription.Subscription]
	nextSID atomix.Uint64
	closed  atomic.Bool

	respOnce   sync.Once
	respErr    error
	respSID    atomic.Uint64
	respPrefix string
	requests   *xsync.Map[string, *handoff.Handoff[reply]]
	replies    *handoff.Pool[reply]
	pongs      *handoff.Pool[struct{}]

	lastHeartbeat atomic.Int64
}

var _ subscription.Conn = (*Conn)(nil)
var _ Sink = (*Conn)(nil)

// New creates a connection over t and binds itself as t's sink.
func New(t Transport, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	c := &Conn{
		id:         id,
		transport:  t,
		opts:       o,
		logger:     o.logger.With("component", "conn", "conn_id", id),
		metrics:    o.metrics,
		subs:       xsync.NewMap[uint64, *subscription.Subscription](),
		respPrefix: strings.TrimSuffix(o.inboxPrefix, ".") + "." + nuid.Next() + ".",
		requests:   xsync.NewMap[string, *handoff.Handoff[reply]](),
		replies:    handoff.NewPool[reply](o.poolCapacity),
		pongs:      handoff.NewPool[struct{}](o.poolCapacity),
	}
	t.Bind(c)
	return c
}

// ID returns the connection instance id.
func (c *Conn) ID() string { return c.id }

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

// NumSubscriptions returns the number of routed subscriptions.
func (c *Conn) NumSubscriptions() int { return c.subs.Size() }

// LastHeartbeat returns when the last idle heartbeat arrived, or the
// zero time.
func (c *Conn) LastHeartbeat() time.Time {
	ns := c.lastHeartbeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// NewInbox returns a unique reply subject under the configured prefix.
func (c *Conn) NewInbox() string {
	return strings.TrimSuffix(c.opts.inboxPrefix, ".") + "." + nuid.Next()
}

// Subscribe creates an async subscription delivering to handler. A nil
// handler leaves the subscription unstarted until SetHandler or Start.
func (c *Conn) Subscribe(subject string, handler subscription.Handler) (*subscription.AsyncSubscription, error) {
	return c.subscribeAsync(subject, "", handler)
}

// QueueSubscribe is Subscribe as a member of queue group queue.
func (c *Conn) QueueSubscribe(subject, queue string, handler subscription.Handler) (*subscription.AsyncSubscription, error) {
	if queue == "" {
		return nil, fmt.Errorf("%w: empty queue group", ErrBadSubject)
	}
	return c.subscribeAsync(subject, queue, handler)
}

// SubscribeSync creates a pull subscription.
func (c *Conn) SubscribeSync(subject string) (*subscription.SyncSubscription, error) {
	return c.subscribeSync(subject, "")
}

// QueueSubscribeSync is SubscribeSync as a member of queue group queue.
func (c *Conn) QueueSubscribeSync(subject, queue string) (*subscription.SyncSubscription, error) {
	if queue == "" {
		return nil, fmt.Errorf("%w: empty queue group", ErrBadSubject)
	}
	return c.subscribeSync(subject, queue)
}

func (c *Conn) subscribeAsync(subject, queue string, handler subscription.Handler) (*subscription.AsyncSubscription, error) {
	if err := c.checkSubject(subject); err != nil {
		return nil, err
	}
	sid := c.nextSID.Add(1)
	a := subscription.NewAsync(c, subject, queue, c.subOptions(sid)...)
	c.subs.Store(sid, a.Subscription)

	if handler != nil {
		if err := a.SetHandler(handler); err != nil {
			c.subs.Delete(sid)
			return nil, err
		}
	}
	c.logger.Debug("Subscribed", "sid", sid, "subject", subject, "queue", queue, "kind", metrics.KindAsync)
	return a, nil
}

func (c *Conn) subscribeSync(subject, queue string) (*subscription.SyncSubscription, error) {
	if err := c.checkSubject(subject); err != nil {
		return nil, err
	}
	sid := c.nextSID.Add(1)
	s := subscription.NewSync(c, subject, queue, c.subOptions(sid)...)
	c.subs.Store(sid, s.Subscription)

	if err := c.SendSubscriptionMessage(s.Subscription); err != nil {
		c.subs.Delete(sid)
		return nil, err
	}
	c.logger.Debug("Subscribed", "sid", sid, "subject", subject, "queue", queue, "kind", metrics.KindSync)
	return s, nil
}

func (c *Conn) subOptions(sid uint64) []subscription.Option {
	return []subscription.Option{
		subscription.WithSID(sid),
		subscription.WithLogger(c.opts.logger.With("conn_id", c.id)),
		subscription.WithMetrics(c.metrics),
	}
}

func (c *Conn) checkSubject(subject string) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrBadSubject, subject)
	}
	return nil
}

// SendSubscriptionMessage implements subscription.Conn.
func (c *Conn) SendSubscriptionMessage(sub *subscription.Subscription) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.transport.Subscribe(sub.SID(), sub.Subject(), sub.Queue())
}

// SendUnsubscribeMessage implements subscription.Conn.
func (c *Conn) SendUnsubscribeMessage(sub *subscription.Subscription) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.transport.Unsubscribe(sub.SID(), sub.UnsubscribeMax())
}

// RemoveSubscription implements subscription.Conn.
func (c *Conn) RemoveSubscription(sub *subscription.Subscription) {
	c.subs.Delete(sub.SID())
}

// Publish sends data to subject.
func (c *Conn) Publish(subject string, data []byte) error {
	return c.publish(subject, "", nil, data)
}

// PublishRequest sends data to subject with a reply subject.
func (c *Conn) PublishRequest(subject, reply string, data []byte) error {
	return c.publish(subject, reply, nil, data)
}

// PublishMsg sends msg including its header.
func (c *Conn) PublishMsg(msg *subscription.Message) error {
	return c.publish(msg.Subject, msg.Reply, msg.Header, msg.Data)
}

func (c *Conn) publish(subject, reply string, hdr nats.Header, data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if subject == "" {
		return ErrBadSubject
	}
	return c.transport.Publish(subject, reply, hdr, data)
}

// Request publishes data to subject and waits for the first reply. A
// zero timeout uses the configured request timeout.
func (c *Conn) Request(subject string, data []byte, timeout time.Duration) (*subscription.Message, error) {
	if timeout < 0 {
		return nil, ErrInvalidTimeout
	}
	if timeout == 0 {
		timeout = c.opts.requestTimeout
	}
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	if subject == "" {
		return nil, ErrBadSubject
	}
	if err := c.ensureRespMux(); err != nil {
		return nil, err
	}

	token := nuid.Next()
	h := c.replies.Acquire()
	c.requests.Store(token, h)

	if err := c.transport.Publish(subject, c.respPrefix+token, nil, data); err != nil {
		c.requests.Delete(token)
		c.replies.Release(h)
		c.metrics.IncRequest(metrics.ResultError)
		return nil, err
	}

	r, err := h.Get(timeout)
	if err != nil {
		// A late reply may still Set this cell, so it is not reused.
		c.requests.Delete(token)
		c.metrics.IncRequest(metrics.ResultTimeout)
		return nil, fmt.Errorf("conn: request %q: %w", subject, ErrTimeout)
	}
	c.replies.Release(h)

	switch {
	case errors.Is(r.err, ErrNoResponders):
		c.metrics.IncRequest(metrics.ResultNoResponders)
	case r.err != nil:
		c.metrics.IncRequest(metrics.ResultError)
	default:
		c.metrics.IncRequest(metrics.ResultOK)
	}
	return r.msg, r.err
}

// ensureRespMux subscribes the shared reply wildcard once.
func (c *Conn) ensureRespMux() error {
	c.respOnce.Do(func() {
		sid := c.nextSID.Add(1)
		c.respSID.Store(sid)
		if err := c.transport.Subscribe(sid, c.respPrefix+"*", ""); err != nil {
			c.respErr = fmt.Errorf("subscribe response mux: %w", err)
		}
	})
	return c.respErr
}

// Flush waits until the server has processed everything sent so far.
// A zero timeout uses the configured flush timeout.
func (c *Conn) Flush(timeout time.Duration) error {
	if timeout < 0 {
		return ErrInvalidTimeout
	}
	if timeout == 0 {
		timeout = c.opts.flushTimeout
	}
	if c.closed.Load() {
		return ErrConnClosed
	}

	h := c.pongs.Acquire()
	if err := c.transport.Ping(func() { h.Set(struct{}{}) }); err != nil {
		c.pongs.Release(h)
		return err
	}
	if _, err := h.Get(timeout); err != nil {
		return fmt.Errorf("conn: flush: %w", ErrTimeout)
	}
	c.pongs.Release(h)
	return nil
}

// Deliver implements Sink.
func (c *Conn) Deliver(sid uint64, msg *subscription.Message) {
	st, isStatus, err := protocol.StatusFromHeader(msg.Header)
	if err != nil {
		c.logger.Warn("Dropping message with invalid status header", "sid", sid, "msg_subject", msg.Subject, "error", err)
		c.metrics.IncDropped(c.kindOf(sid), metrics.ReasonInvalidHeader)
		return
	}

	if respSID := c.respSID.Load(); respSID != 0 && sid == respSID {
		c.resolveRequest(msg, isStatus && st.Kind() == protocol.KindNoResponders)
		return
	}

	if isStatus {
		switch kind := st.Kind(); kind {
		case protocol.KindFlowControl:
			c.metrics.IncControl(kind.String())
			c.replyControl(msg.Reply)
			return
		case protocol.KindHeartbeat:
			c.metrics.IncControl(kind.String())
			c.lastHeartbeat.Store(time.Now().UnixNano())
			if stalled := msg.Header.Get(protocol.HeaderConsumerStalled); stalled != "" {
				c.replyControl(stalled)
			}
			return
		}
	}

	sub, ok := c.subs.Load(sid)
	if !ok {
		c.metrics.IncDropped("unknown", metrics.ReasonUnknownSID)
		return
	}

	if c.exceedsPending(sub, msg) {
		if sub.MarkSlowConsumer() {
			c.logger.Warn("Slow consumer, dropping messages", "sid", sid, "subject", sub.Subject())
		}
		c.metrics.IncDropped(sub.Kind(), metrics.ReasonSlowConsumer)
		return
	}

	if !sub.ProcessMsg(msg) {
		c.subs.Delete(sid)
		c.metrics.IncDropped(sub.Kind(), metrics.ReasonClosed)
	}
}

func (c *Conn) kindOf(sid uint64) string {
	if sub, ok := c.subs.Load(sid); ok {
		return sub.Kind()
	}
	return "unknown"
}

func (c *Conn) exceedsPending(sub *subscription.Subscription, msg *subscription.Message) bool {
	msgs, bytes := sub.Pending()
	if limit := c.opts.pendingMsgsLimit; limit > 0 && msgs+1 > limit {
		return true
	}
	if limit := c.opts.pendingBytesLimit; limit > 0 && bytes+msg.Size() > limit {
		return true
	}
	return false
}

func (c *Conn) replyControl(subject string) {
	if subject == "" {
		return
	}
	if err := c.publish(subject, "", nil, nil); err != nil {
		c.logger.Warn("Failed to answer control message", "reply", subject, "error", err)
	}
}

func (c *Conn) resolveRequest(msg *subscription.Message, noResponders bool) {
	token := strings.TrimPrefix(msg.Subject, c.respPrefix)
	h, ok := c.requests.LoadAndDelete(token)
	if !ok {
		return
	}
	if noResponders {
		h.Set(reply{err: ErrNoResponders})
		return
	}
	h.Set(reply{msg: msg})
}

// Close marks every subscription connection-closed, fails pending
// requests and closes the transport. Calling it again is a no-op.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.subs.Range(func(_ uint64, sub *subscription.Subscription) bool {
		sub.MarkConnectionClosed()
		return true
	})
	c.subs.Clear()

	c.requests.Range(func(token string, _ *handoff.Handoff[reply]) bool {
		if h, ok := c.requests.LoadAndDelete(token); ok {
			h.Set(reply{err: ErrConnClosed})
		}
		return true
	})

	c.logger.Debug("Connection closed")
	return c.transport.Close()
}
