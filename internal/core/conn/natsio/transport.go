// Package natsio adapts a nats.go connection to conn.Transport.
package natsio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/natsub/internal/core/conn"
	"github.com/syntrixbase/natsub/internal/core/subscription"
)

// ErrUnknownSID is returned when unsubscribing an sid that was never subscribed.
var ErrUnknownSID = errors.New("natsio: unknown sid")

// Credentials supplies the user JWT and nonce signature for the handshake.
type Credentials interface {
	UserJWT() (string, error)
	Sign(nonce []byte) ([]byte, error)
}

// Config holds the dial parameters.
type Config struct {
	Servers       []string
	NoRandomize   bool
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	FlushTimeout  time.Duration
	Credentials   Credentials
	Logger        *slog.Logger
}

var _ conn.Transport = (*Transport)(nil)

// Transport is a conn.Transport over *nats.Conn.
type Transport struct {
	nc           *nats.Conn
	logger       *slog.Logger
	flushTimeout time.Duration

	mu   sync.Mutex
	sink conn.Sink
	subs map[uint64]*natsSub
}

// natsSub remembers the auto-unsubscribe limit so the entry is dropped
// once nats.go has removed the subscription.
type natsSub struct {
	ns  *nats.Subscription
	max int
}

// reached reports whether nats.go has delivered the limit. Called with
// Transport.mu held.
func (e *natsSub) reached() bool {
	if e.max <= 0 {
		return false
	}
	n, err := e.ns.Delivered()
	return err != nil || n >= int64(e.max)
}

// Dial connects to the servers in ServerPool order.
func Dial(cfg Config) (*Transport, error) {
	pool, err := conn.NewServerPool(cfg.Servers, cfg.NoRandomize, cfg.MaxReconnects)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "natsio")

	opts := []nats.Option{
		nats.DontRandomize(),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from server", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to server", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				logger.Warn("Asynchronous error", "subject", sub.Subject, "error", err)
				return
			}
			logger.Warn("Asynchronous error", "error", err)
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.Credentials != nil {
		opts = append(opts, nats.UserJWT(cfg.Credentials.UserJWT, cfg.Credentials.Sign))
	}

	nc, err := nats.Connect(strings.Join(pool.URLs(), ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("Connected to server", "url", nc.ConnectedUrl())

	return New(nc, cfg.FlushTimeout, logger), nil
}

// New wraps an established connection.
func New(nc *nats.Conn, flushTimeout time.Duration, logger *slog.Logger) *Transport {
	if flushTimeout <= 0 {
		flushTimeout = conn.DefaultFlushTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		nc:           nc,
		logger:       logger,
		flushTimeout: flushTimeout,
		subs:         make(map[uint64]*natsSub),
	}
}

// Conn returns the underlying nats connection.
func (t *Transport) Conn() *nats.Conn {
	return t.nc
}

// Bind implements conn.Transport.
func (t *Transport) Bind(sink conn.Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Subscribe implements conn.Transport. Pending limits are enforced by
// conn, so the client-side limits here are disabled.
func (t *Transport) Subscribe(sid uint64, subject, queue string) error {
	handler := func(m *nats.Msg) {
		t.mu.Lock()
		sink := t.sink
		t.forgetReachedLocked(sid, m.Sub)
		t.mu.Unlock()
		if sink != nil {
			sink.Deliver(sid, subscription.NewMsg(m.Subject, m.Reply, m.Header, m.Data))
		}
	}

	var (
		ns  *nats.Subscription
		err error
	)
	if queue == "" {
		ns, err = t.nc.Subscribe(subject, handler)
	} else {
		ns, err = t.nc.QueueSubscribe(subject, queue, handler)
	}
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", subject, err)
	}
	if err := ns.SetPendingLimits(-1, -1); err != nil {
		_ = ns.Unsubscribe()
		return fmt.Errorf("set pending limits: %w", err)
	}

	t.mu.Lock()
	t.subs[sid] = &natsSub{ns: ns}
	t.mu.Unlock()
	return nil
}

// forgetReachedLocked drops sid once its subscription hit the limit.
func (t *Transport) forgetReachedLocked(sid uint64, ns *nats.Subscription) {
	if e, ok := t.subs[sid]; ok && e.ns == ns && e.reached() {
		delete(t.subs, sid)
	}
}

// Unsubscribe implements conn.Transport.
func (t *Transport) Unsubscribe(sid uint64, max int) error {
	t.mu.Lock()
	e, ok := t.subs[sid]
	if ok {
		e.max = max
		if max <= 0 || e.reached() {
			delete(t.subs, sid)
		}
	}
	t.mu.Unlock()
	if !ok {
		return ErrUnknownSID
	}

	if max > 0 {
		return e.ns.AutoUnsubscribe(max)
	}
	err := e.ns.Unsubscribe()
	if errors.Is(err, nats.ErrBadSubscription) {
		// Already removed by the server after an auto-unsubscribe.
		return nil
	}
	return err
}

// Publish implements conn.Transport.
func (t *Transport) Publish(subject, reply string, hdr nats.Header, data []byte) error {
	return t.nc.PublishMsg(&nats.Msg{
		Subject: subject,
		Reply:   reply,
		Header:  hdr,
		Data:    data,
	})
}

// Ping implements conn.Transport. pong runs once the server answers.
func (t *Transport) Ping(pong func()) error {
	if t.nc.IsClosed() {
		return nats.ErrConnectionClosed
	}
	go func() {
		if err := t.nc.FlushTimeout(t.flushTimeout); err != nil {
			t.logger.Debug("Ping failed", "error", err)
			return
		}
		pong()
	}()
	return nil
}

// Close drops all subscriptions and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.subs = make(map[uint64]*natsSub)
	t.mu.Unlock()
	t.nc.Close()
	return nil
}
