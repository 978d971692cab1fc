package ingest

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/metric"
)

// queueMetrics are live Prometheus views of one queue. A nil value records
// nothing.
type queueMetrics struct {
	dropped      *prometheus.CounterVec
	size         prometheus.Gauge
	capacity     prometheus.Gauge
	utilization  prometheus.Gauge
	backpressure prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, stream event.Stream) (*queueMetrics, error) {
	labels := prometheus.Labels{"stream": string(stream)}
	m := &queueMetrics{
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "queue", Name: "dropped_total",
			Help: "Datagrams refused at admission", ConstLabels: labels,
		}, []string{"reason"}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "queue", Name: "size",
			Help: "Datagrams waiting in the queue", ConstLabels: labels,
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "queue", Name: "capacity",
			Help: "Queue capacity", ConstLabels: labels,
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "queue", Name: "utilization_percent",
			Help: "Queue fill level in percent", ConstLabels: labels,
		}),
		backpressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "queue", Name: "backpressure_active",
			Help: "1 while backpressure is active", ConstLabels: labels,
		}),
	}

	service := "queue_" + string(stream)
	if err := registry.RegisterCounterVec(service, "dropped_total", m.dropped); err != nil {
		return nil, err
	}
	for name, g := range map[string]prometheus.Gauge{
		"size":                m.size,
		"capacity":            m.capacity,
		"utilization_percent": m.utilization,
		"backpressure_active": m.backpressure,
	} {
		if err := registry.RegisterGauge(service, name, g); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *queueMetrics) recordDrop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *queueMetrics) setCapacity(n int) {
	if m == nil {
		return
	}
	m.capacity.Set(float64(n))
}

func (m *queueMetrics) setUtilization(size int, pct float64) {
	if m == nil {
		return
	}
	m.size.Set(float64(size))
	m.utilization.Set(pct)
}

func (m *queueMetrics) setBackpressure(active bool) {
	if m == nil {
		return
	}
	if active {
		m.backpressure.Set(1)
		return
	}
	m.backpressure.Set(0)
}
