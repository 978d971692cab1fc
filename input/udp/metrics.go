package udp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/metric"
)

// Metrics holds Prometheus metrics for one listener.
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsRefused  prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

// newMetrics returns nil without a registry.
func newMetrics(registry *metric.MetricsRegistry, stream event.Stream) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"stream": string(stream)}
	m := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "udp",
			Name:        "packets_received_total",
			Help:        "Total UDP packets received",
			ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "udp",
			Name:        "bytes_received_total",
			Help:        "Total bytes received from UDP",
			ConstLabels: labels,
		}),
		packetsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "udp",
			Name:        "packets_refused_total",
			Help:        "Packets the queue did not admit",
			ConstLabels: labels,
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "udp",
			Name:        "socket_errors_total",
			Help:        "Socket read errors encountered",
			ConstLabels: labels,
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "udp",
			Name:        "last_activity_timestamp",
			Help:        "Unix timestamp of last received packet",
			ConstLabels: labels,
		}),
	}

	serviceName := "udp_" + string(stream)
	for name, c := range map[string]prometheus.Counter{
		"packets_received": m.packetsReceived,
		"bytes_received":   m.bytesReceived,
		"packets_refused":  m.packetsRefused,
		"socket_errors":    m.socketErrors,
	} {
		if err := registry.RegisterCounter(serviceName, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(serviceName, "last_activity", m.lastActivity); err != nil {
		return nil, err
	}
	return m, nil
}
