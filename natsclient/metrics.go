package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ngsiadapter/metric"
)

// connMetrics tracks connection state and inbound traffic. A nil
// *connMetrics is valid and records nothing.
type connMetrics struct {
	status     prometheus.Gauge
	reconnects prometheus.Counter
	messages   *prometheus.CounterVec
}

func newConnMetrics(registry *metric.MetricsRegistry) (*connMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &connMetrics{
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ngsi_adapter",
			Subsystem: "nats",
			Name:      "connection_status",
			Help:      "Connection status (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=circuit_open)",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ngsi_adapter",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total reconnections to the NATS server",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ngsi_adapter",
			Subsystem: "nats",
			Name:      "messages_received_total",
			Help:      "Total messages received by subject",
		}, []string{"subject"}),
	}

	if err := registry.RegisterGauge("natsclient", "connection_status", m.status); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("natsclient", "reconnects_total", m.reconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsclient", "messages_received_total", m.messages); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *connMetrics) setStatus(s ConnectionStatus) {
	if m == nil {
		return
	}
	m.status.Set(float64(s))
}

func (m *connMetrics) reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *connMetrics) received(subject string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(subject).Inc()
}
