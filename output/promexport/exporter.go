package promexport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/ingest"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/processor/counter"
)

// DefaultInterval is how often the exporter drains its sources.
const DefaultInterval = time.Minute

// QueueSource is a queue whose counters can be read and reset in one step.
type QueueSource interface {
	Stream() event.Stream
	Drain() ingest.Metrics
}

// ExporterConfig configures the StatsExporter.
type ExporterConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ExporterDeps are the sources drained on every export.
type ExporterDeps struct {
	Registry *metric.MetricsRegistry
	Queues   []QueueSource
	Accepted *counter.Accepted
	Rejected *counter.Rejected
	Logger   *slog.Logger
}

// StatsExporter periodically moves queue metrics and event counters into
// Prometheus collectors and resets the sources.
type StatsExporter struct {
	interval time.Duration
	queues   []QueueSource
	accepted *counter.Accepted
	rejected *counter.Rejected
	logger   *slog.Logger

	queueMessages *prometheus.CounterVec
	queueDropped  *prometheus.CounterVec
	queueState    *prometheus.GaugeVec
	latency       *prometheus.GaugeVec
	accepts       *prometheus.CounterVec
	unrecognized  *prometheus.CounterVec
	rejects       *prometheus.CounterVec
	rejectTime    *prometheus.CounterVec
	lastExport    prometheus.Gauge

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	exports int64
}

// NewStatsExporter registers the exporter's collectors.
func NewStatsExporter(cfg ExporterConfig, deps ExporterDeps) (*StatsExporter, error) {
	if deps.Registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "StatsExporter", "New", "check registry")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &StatsExporter{
		interval: cfg.Interval,
		queues:   deps.Queues,
		accepted: deps.Accepted,
		rejected: deps.Rejected,
		logger:   logger.With("component", "stats-exporter"),

		queueMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "ingest", Name: "messages_total",
			Help: "Datagrams by stream and queue stage",
		}, []string{"stream", "stage"}),
		queueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "ingest", Name: "messages_dropped_total",
			Help: "Datagrams dropped at admission by stream and reason",
		}, []string{"stream", "reason"}),
		queueState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "ingest", Name: "queue_state",
			Help: "Queue gauges as of the last export",
		}, []string{"stream", "gauge"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "ingest", Name: "processing_time_ms",
			Help: "Handler latency over the last export interval",
		}, []string{"stream", "stat"}),
		accepts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "events", Name: "accepted_total",
			Help: "Decoded events by stream, source, host and subsystem",
		}, []string{"stream", "source", "host", "subsystem"}),
		unrecognized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "events", Name: "unrecognized_total",
			Help: "Datagrams with an unknown source tag",
		}, []string{"stream"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "events", Name: "qix_rejected_total",
			Help: "QIX performance events rejected by the filter",
		}, []string{"app_id", "app_name", "method", "object_type"}),
		rejectTime: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "events", Name: "qix_rejected_process_time_ms_total",
			Help: "Summed process time of rejected QIX performance events",
		}, []string{"app_id", "app_name", "method", "object_type"}),
		lastExport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "exporter", Name: "last_export_timestamp_seconds",
			Help: "Unix time of the last export",
		}),
	}

	const service = "stats_exporter"
	for name, vec := range map[string]*prometheus.CounterVec{
		"messages_total":                     e.queueMessages,
		"messages_dropped_total":             e.queueDropped,
		"accepted_total":                     e.accepts,
		"unrecognized_total":                 e.unrecognized,
		"qix_rejected_total":                 e.rejects,
		"qix_rejected_process_time_ms_total": e.rejectTime,
	} {
		if err := deps.Registry.RegisterCounterVec(service, name, vec); err != nil {
			return nil, err
		}
	}
	for name, vec := range map[string]*prometheus.GaugeVec{
		"queue_state":        e.queueState,
		"processing_time_ms": e.latency,
	} {
		if err := deps.Registry.RegisterGaugeVec(service, name, vec); err != nil {
			return nil, err
		}
	}
	if err := deps.Registry.RegisterGauge(service, "last_export_timestamp_seconds", e.lastExport); err != nil {
		return nil, err
	}
	return e, nil
}

// Start exports every interval until Stop is called or ctx ends.
func (e *StatsExporter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "StatsExporter", "Start", "start exporter")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx, e.done)

	e.logger.Info("Stats exporter started", "interval", e.interval)
	return nil
}

func (e *StatsExporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Export()
		}
	}
}

// Stop ends the periodic loop and runs one final export.
func (e *StatsExporter) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.Export()
	e.logger.Info("Stats exporter stopped")
}

// Export drains every source once.
func (e *StatsExporter) Export() {
	for _, q := range e.queues {
		e.exportQueue(q.Stream(), q.Drain())
	}

	if e.accepted != nil {
		s := e.accepted.Drain()
		for _, c := range s.Log {
			e.accepts.WithLabelValues(string(event.StreamLog), string(c.Source), c.Host, c.Subsystem).
				Add(float64(c.Counter))
		}
		for _, c := range s.User {
			e.accepts.WithLabelValues(string(event.StreamUser), string(c.Source), c.Host, c.Subsystem).
				Add(float64(c.Counter))
		}
		for stream, n := range s.Unrecognized {
			e.unrecognized.WithLabelValues(string(stream)).Add(float64(n))
		}
	}

	if e.rejected != nil {
		for _, c := range e.rejected.Drain() {
			labels := []string{c.AppID, c.AppName, c.Method, c.ObjectType}
			e.rejects.WithLabelValues(labels...).Add(float64(c.Counter))
			e.rejectTime.WithLabelValues(labels...).Add(c.ProcessTime)
		}
	}

	e.lastExport.SetToCurrentTime()

	e.mu.Lock()
	e.exports++
	e.mu.Unlock()
}

func (e *StatsExporter) exportQueue(stream event.Stream, m ingest.Metrics) {
	s := string(stream)

	e.queueMessages.WithLabelValues(s, "received").Add(float64(m.MessagesReceived))
	e.queueMessages.WithLabelValues(s, "queued").Add(float64(m.MessagesQueued))
	e.queueMessages.WithLabelValues(s, "processed").Add(float64(m.MessagesProcessed))
	e.queueMessages.WithLabelValues(s, "failed").Add(float64(m.MessagesFailed))

	e.queueDropped.WithLabelValues(s, ingest.ReasonRateLimit).Add(float64(m.MessagesDroppedRateLimit))
	e.queueDropped.WithLabelValues(s, ingest.ReasonQueueFull).Add(float64(m.MessagesDroppedQueueFull))
	e.queueDropped.WithLabelValues(s, ingest.ReasonSize).Add(float64(m.MessagesDroppedSize))

	e.queueState.WithLabelValues(s, "size").Set(float64(m.QueueSize))
	e.queueState.WithLabelValues(s, "max_size").Set(float64(m.QueueMaxSize))
	e.queueState.WithLabelValues(s, "utilization_pct").Set(m.QueueUtilizationPct)
	e.queueState.WithLabelValues(s, "pending").Set(float64(m.QueuePending))
	e.queueState.WithLabelValues(s, "rate_limit_current").Set(float64(m.RateLimitCurrent))
	e.queueState.WithLabelValues(s, "backpressure_active").Set(boolFloat(m.BackpressureActive))

	e.latency.WithLabelValues(s, "avg").Set(m.ProcessingTimeAvgMs)
	e.latency.WithLabelValues(s, "p95").Set(m.ProcessingTimeP95Ms)
	e.latency.WithLabelValues(s, "max").Set(m.ProcessingTimeMaxMs)

	if m.MessagesDroppedTotal > 0 || m.MessagesFailed > 0 {
		e.logger.Warn("Queue lost messages during interval",
			"stream", s,
			"dropped", m.MessagesDroppedTotal,
			"failed", m.MessagesFailed,
			"backpressure", m.BackpressureActive)
	}
}

// Exports returns how many export cycles have run.
func (e *StatsExporter) Exports() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
