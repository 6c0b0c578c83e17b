// Command natsub subscribes, publishes and sends requests over a NATS
// server or the in-process broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syntrixbase/natsub/internal/config"
	"github.com/syntrixbase/natsub/internal/core/conn"
	"github.com/syntrixbase/natsub/internal/core/conn/memory"
	"github.com/syntrixbase/natsub/internal/core/conn/natsio"
	"github.com/syntrixbase/natsub/internal/core/creds"
	"github.com/syntrixbase/natsub/internal/core/metrics"
	"github.com/syntrixbase/natsub/internal/core/subscription"
	"github.com/syntrixbase/natsub/internal/logging"
)

// Modes accepted by -mode.
const (
	modeSub = "sub"
	modePub = "pub"
	modeReq = "req"
)

// pollInterval bounds how long a sync pull blocks before the loop
// checks for cancellation.
const pollInterval = 250 * time.Millisecond

type options struct {
	configPath string
	mode       string
	subject    string
	queue      string
	msg        string
	max        int
	timeout    time.Duration
	sync       bool
}

// app carries the process wiring that tests replace.
type app struct {
	stdout io.Writer
	// broker backs the memory transport
	broker *memory.Broker
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a := &app{stdout: os.Stdout, broker: memory.NewBroker()}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("natsub", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML config file")
	fs.StringVar(&opts.mode, "mode", modeSub, "One of sub, pub, req")
	fs.StringVar(&opts.subject, "subject", "", "Subject to subscribe, publish or request on")
	fs.StringVar(&opts.queue, "queue", "", "Queue group for sub mode")
	fs.StringVar(&opts.msg, "msg", "", "Payload for pub and req; in sub mode, the reply sent to requests")
	fs.IntVar(&opts.max, "max", 0, "Stop after this many messages in sub mode (0 = unbounded)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Request and flush timeout (0 = config value)")
	fs.BoolVar(&opts.sync, "sync", false, "Use a pull subscription in sub mode")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch opts.mode {
	case modeSub, modePub, modeReq:
	default:
		return opts, fmt.Errorf("unknown mode %q (must be %s, %s or %s)", opts.mode, modeSub, modePub, modeReq)
	}
	if opts.subject == "" {
		return opts, errors.New("-subject is required")
	}
	if opts.max < 0 {
		return opts, errors.New("-max must not be negative")
	}
	return opts, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		cfg.Client.RequestTimeout = opts.timeout
		cfg.Client.FlushTimeout = opts.timeout
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer logging.Shutdown()
	logger := slog.Default().With("mode", opts.mode)

	m, stopMetrics, err := startMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	t, err := a.dial(cfg.Client, logger)
	if err != nil {
		return err
	}
	nc := conn.New(t,
		conn.WithLogger(logger),
		conn.WithMetrics(m),
		conn.WithPendingLimits(cfg.Client.PendingMsgsLimit, cfg.Client.PendingBytesLimit),
		conn.WithRequestTimeout(cfg.Client.RequestTimeout),
		conn.WithFlushTimeout(cfg.Client.FlushTimeout),
		conn.WithInboxPrefix(cfg.Client.InboxPrefix),
	)
	defer nc.Close()
	logger.Info("Connected", "conn", nc.ID(), "transport", cfg.Client.Transport)

	switch opts.mode {
	case modePub:
		return a.publish(nc, opts)
	case modeReq:
		return a.request(nc, opts)
	default:
		if opts.sync {
			return a.subscribeSync(ctx, nc, opts, logger)
		}
		return a.subscribeAsync(ctx, nc, opts, logger)
	}
}

func (a *app) dial(cfg config.ClientConfig, logger *slog.Logger) (conn.Transport, error) {
	if cfg.Transport == config.TransportMemory {
		return a.broker.Connect(), nil
	}

	natsCfg := natsio.Config{
		Servers:       cfg.Servers,
		NoRandomize:   cfg.NoRandomize,
		Name:          cfg.Name,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait,
		FlushTimeout:  cfg.FlushTimeout,
		Logger:        logger,
	}
	if cfg.CredsFile != "" {
		c, err := creds.Load(cfg.CredsFile)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		natsCfg.Credentials = c
	}
	return natsio.Dial(natsCfg)
}

// startMetrics serves the Prometheus endpoint when enabled. The
// returned stop func is always safe to call.
func startMetrics(cfg config.MetricsConfig, logger *slog.Logger) (metrics.Metrics, func(), error) {
	if !cfg.Enabled {
		return metrics.Nop{}, func() {}, nil
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.NewPrometheus(reg, cfg.Namespace)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	logger.Info("Serving metrics", "listen", cfg.Listen, "path", cfg.Path)

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return m, stop, nil
}

func (a *app) publish(nc *conn.Conn, opts options) error {
	if err := nc.Publish(opts.subject, []byte(opts.msg)); err != nil {
		return err
	}
	if err := nc.Flush(0); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	fmt.Fprintf(a.stdout, "Published [%s]: %s\n", opts.subject, opts.msg)
	return nil
}

func (a *app) request(nc *conn.Conn, opts options) error {
	reply, err := nc.Request(opts.subject, []byte(opts.msg), 0)
	if err != nil {
		return fmt.Errorf("request %s: %w", opts.subject, err)
	}
	fmt.Fprintf(a.stdout, "Reply [%s]: %s\n", opts.subject, reply.Data)
	return nil
}

// printer numbers and prints received messages, answering requests
// when a reply payload was given.
type printer struct {
	w     io.Writer
	reply []byte
	n     int
	log   *slog.Logger
}

func (p *printer) handle(msg *subscription.Message) {
	p.n++
	fmt.Fprintf(p.w, "[#%d] %s: %s\n", p.n, msg.Subject, msg.Data)
	if msg.Reply == "" || p.reply == nil {
		return
	}
	if err := msg.Respond(p.reply); err != nil {
		p.log.Warn("Failed to respond", "subject", msg.Subject, "error", err)
	}
}

func (a *app) newPrinter(opts options, logger *slog.Logger) *printer {
	p := &printer{w: a.stdout, log: logger}
	if opts.msg != "" {
		p.reply = []byte(opts.msg)
	}
	return p
}

func (a *app) subscribeAsync(ctx context.Context, nc *conn.Conn, opts options, logger *slog.Logger) error {
	p := a.newPrinter(opts, logger)
	var (
		sub *subscription.AsyncSubscription
		err error
	)
	if opts.queue == "" {
		sub, err = nc.Subscribe(opts.subject, p.handle)
	} else {
		sub, err = nc.QueueSubscribe(opts.subject, opts.queue, p.handle)
	}
	if err != nil {
		return err
	}
	if opts.max > 0 {
		if err := sub.AutoUnsubscribe(opts.max); err != nil {
			return err
		}
	}
	logger.Info("Listening", "subject", opts.subject, "queue", opts.queue, "max", opts.max)

	select {
	case <-sub.Done():
	case <-ctx.Done():
		logger.Info("Shutting down", "delivered", sub.Delivered())
		if err := sub.Unsubscribe(); err != nil {
			return err
		}
		<-sub.Done()
	}
	return nil
}

func (a *app) subscribeSync(ctx context.Context, nc *conn.Conn, opts options, logger *slog.Logger) error {
	p := a.newPrinter(opts, logger)
	var (
		sub *subscription.SyncSubscription
		err error
	)
	if opts.queue == "" {
		sub, err = nc.SubscribeSync(opts.subject)
	} else {
		sub, err = nc.QueueSubscribeSync(opts.subject, opts.queue)
	}
	if err != nil {
		return err
	}
	if opts.max > 0 {
		if err := sub.AutoUnsubscribe(opts.max); err != nil {
			return err
		}
	}
	logger.Info("Listening", "subject", opts.subject, "queue", opts.queue, "max", opts.max, "sync", true)

	for {
		msg, err := sub.NextMsg(pollInterval)
		switch {
		case err == nil:
			p.handle(msg)
		case errors.Is(err, subscription.ErrTimeout):
			if ctx.Err() != nil {
				logger.Info("Shutting down", "delivered", sub.Delivered())
				return sub.Unsubscribe()
			}
		case errors.Is(err, subscription.ErrSlowConsumer):
			logger.Warn("Slow consumer, messages were dropped", "subject", opts.subject)
		case errors.Is(err, subscription.ErrMaxMessages):
			return nil
		default:
			return err
		}
	}
}
