package chatclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts subscription and delivery activity. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	Attempts   prometheus.Counter
	Reconnects prometheus.Counter
	Open       prometheus.Gauge
	Inbound    *prometheus.CounterVec
	Publishes  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_subscribe_attempts_total",
			Help: "Number of subscription attempts started",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_reconnects_scheduled_total",
			Help: "Number of reconnects scheduled after an unexpected close",
		}),
		Open: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_subscription_open",
			Help: "1 while the subscription is open, 0 otherwise",
		}),
		Inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_inbound_frames_total",
			Help: "Inbound frames by result (delivered, malformed, binary)",
		}, []string{"result"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_publish_requests_total",
			Help: "Publish requests by result (accepted, failed)",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Reconnects, m.Open, m.Inbound, m.Publishes)
	}
	return m
}

func (m *Metrics) attempt() {
	if m != nil {
		m.Attempts.Inc()
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) setOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.Open.Set(1)
	} else {
		m.Open.Set(0)
	}
}

func (m *Metrics) inbound(result string) {
	if m != nil {
		m.Inbound.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) publish(result string) {
	if m != nil {
		m.Publishes.WithLabelValues(result).Inc()
	}
}
