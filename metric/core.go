package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ngsi_adapter"

// Metrics contains the request pipeline metrics
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	ParserResolutions  *prometheus.CounterVec
	DeliveriesTotal    *prometheus.CounterVec
	DeliveryAttempts   prometheus.Counter
	DeliveryDuration   *prometheus.HistogramVec
	DeliveriesInFlight prometheus.Gauge
	BrokerResponses    *prometheus.CounterVec
}

// NewMetrics creates the pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "requests_total",
				Help:      "Probe requests received, by origin and ingestion status",
			},
			[]string{"origin", "status"},
		),

		ParserResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "parser",
				Name:      "resolutions_total",
				Help:      "Parser lookups, by result (ok, not_found, invalid, missing)",
			},
			[]string{"result"},
		),

		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "total",
				Help:      "Completed deliveries, by outcome (success, broker_error, or the error kind)",
			},
			[]string{"outcome"},
		),

		DeliveryAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "attempts_total",
				Help:      "Outbound requests issued to the broker, retries included",
			},
		),

		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "duration_seconds",
				Help:      "Time from reception to delivery result",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"variant"},
		),

		DeliveriesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "in_flight",
				Help:      "Deliveries currently running",
			},
		),

		BrokerResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "responses_total",
				Help:      "Broker responses, by HTTP status code",
			},
			[]string{"code"},
		),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.RequestsTotal,
		m.ParserResolutions,
		m.DeliveriesTotal,
		m.DeliveryAttempts,
		m.DeliveryDuration,
		m.DeliveriesInFlight,
		m.BrokerResponses,
	)
}

// RecordRequest increments the ingestion counter
func (m *Metrics) RecordRequest(origin string, status int) {
	m.RequestsTotal.WithLabelValues(origin, statusLabel(status)).Inc()
}

// RecordResolution increments the parser lookup counter
func (m *Metrics) RecordResolution(result string) {
	m.ParserResolutions.WithLabelValues(result).Inc()
}

// RecordAttempt increments the outbound attempt counter
func (m *Metrics) RecordAttempt() {
	m.DeliveryAttempts.Inc()
}

// RecordBrokerResponse increments the broker response counter
func (m *Metrics) RecordBrokerResponse(status int) {
	m.BrokerResponses.WithLabelValues(statusLabel(status)).Inc()
}

// RecordDelivery records a completed delivery
func (m *Metrics) RecordDelivery(variant, outcome string, duration time.Duration) {
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
	m.DeliveryDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

// DeliveryStarted increments the in-flight gauge
func (m *Metrics) DeliveryStarted() {
	m.DeliveriesInFlight.Inc()
}

// DeliveryFinished decrements the in-flight gauge
func (m *Metrics) DeliveryFinished() {
	m.DeliveriesInFlight.Dec()
}

func statusLabel(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
