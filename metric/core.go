package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline-wide metrics every component may record into.
type Metrics struct {
	EventsDecoded    *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	SinkErrors       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates the core metrics. They are registered by
// NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "decoded_total",
			Help:      "Events decoded and handed to the dispatcher",
		}, []string{"stream", "source"}),

		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped after decoding, by reason",
		}, []string{"stream", "reason"}),

		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "rejected_total",
			Help:      "QIX performance events rejected by the filter",
		}, []string{"stream"}),

		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "decode_errors_total",
			Help:      "Datagrams that could not be decoded",
		}, []string{"stream"}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dispatch",
			Name:      "sink_errors_total",
			Help:      "Failed sink deliveries",
		}, []string{"sink", "stream"}),

		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent delivering one event to one sink",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"sink"}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),

		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),

		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "circuit_breaker",
			Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.EventsDecoded, c.EventsDropped, c.EventsRejected, c.DecodeErrors,
		c.SinkErrors, c.DispatchDuration,
		c.NATSConnected, c.NATSReconnects, c.NATSCircuitBreaker,
	}
}

// The Record helpers accept a nil receiver so components can run without a
// registry.

func (c *Metrics) RecordDecoded(stream, source string) {
	if c != nil {
		c.EventsDecoded.WithLabelValues(stream, source).Inc()
	}
}

func (c *Metrics) RecordDropped(stream, reason string) {
	if c != nil {
		c.EventsDropped.WithLabelValues(stream, reason).Inc()
	}
}

func (c *Metrics) RecordRejected(stream string) {
	if c != nil {
		c.EventsRejected.WithLabelValues(stream).Inc()
	}
}

func (c *Metrics) RecordDecodeError(stream string) {
	if c != nil {
		c.DecodeErrors.WithLabelValues(stream).Inc()
	}
}

func (c *Metrics) RecordSinkError(sink, stream string) {
	if c != nil {
		c.SinkErrors.WithLabelValues(sink, stream).Inc()
	}
}

func (c *Metrics) RecordDispatchDuration(sink string, d time.Duration) {
	if c != nil {
		c.DispatchDuration.WithLabelValues(sink).Observe(d.Seconds())
	}
}

func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Metrics) RecordNATSReconnect() {
	if c != nil {
		c.NATSReconnects.Inc()
	}
}

func (c *Metrics) RecordCircuitBreakerState(state int) {
	if c != nil {
		c.NATSCircuitBreaker.Set(float64(state))
	}
}
