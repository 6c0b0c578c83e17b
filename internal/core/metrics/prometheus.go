package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every collector name.
const DefaultNamespace = "natsub"

// Prometheus records events into Prometheus collectors.
type Prometheus struct {
	delivered     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	control       *prometheus.CounterVec
	slowConsumers *prometheus.CounterVec
	handlerPanics prometheus.Counter
	requests      *prometheus.CounterVec
}

var _ Metrics = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	p := &Prometheus{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages handed to a consumer.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages discarded before reaching a consumer.",
		}, []string{"kind", "reason"}),
		control: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_frames_total",
			Help:      "Intercepted control frames by status kind.",
		}, []string{"kind"}),
		slowConsumers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_events_total",
			Help:      "Transitions of a subscription into the slow state.",
		}, []string{"kind"}),
		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Recovered panics raised by message handlers.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Request/reply round trips by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			p.delivered, p.dropped, p.control, p.slowConsumers, p.handlerPanics, p.requests,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Prometheus) IncDelivered(kind string) {
	p.delivered.WithLabelValues(kind).Inc()
}

func (p *Prometheus) IncDropped(kind, reason string) {
	p.dropped.WithLabelValues(kind, reason).Inc()
}

func (p *Prometheus) IncControl(kind string) {
	p.control.WithLabelValues(kind).Inc()
}

func (p *Prometheus) IncSlowConsumer(kind string) {
	p.slowConsumers.WithLabelValues(kind).Inc()
}

func (p *Prometheus) IncHandlerPanic() {
	p.handlerPanics.Inc()
}

func (p *Prometheus) IncRequest(result string) {
	p.requests.WithLabelValues(result).Inc()
}
