package promexport

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/metric"
)

// Sink counts forwarded events in Prometheus counters.
type Sink struct {
	logEvents  *prometheus.CounterVec
	userEvents *prometheus.CounterVec
	categories *prometheus.CounterVec
}

// NewSink registers the sink's counters with registry.
func NewSink(registry *metric.MetricsRegistry) (*Sink, error) {
	s := &Sink{
		logEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "sink", Name: "log_events_total",
			Help: "Log events forwarded, by source, level and host",
		}, []string{"source", "level", "host"}),
		userEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "sink", Name: "user_events_total",
			Help: "User events forwarded, by source and command",
		}, []string{"source", "command"}),
		categories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "sink", Name: "log_event_categories_total",
			Help: "Categories attached to forwarded log events",
		}, []string{"name", "value"}),
	}

	for name, vec := range map[string]*prometheus.CounterVec{
		"log_events_total":           s.logEvents,
		"user_events_total":          s.userEvents,
		"log_event_categories_total": s.categories,
	} {
		if err := registry.RegisterCounterVec("prometheus_sink", name, vec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Name identifies the sink.
func (s *Sink) Name() string {
	return "prometheus"
}

// SendLogEvent counts a log event and each of its categories.
func (s *Sink) SendLogEvent(_ context.Context, ev event.LogEvent) error {
	f := ev.Fields()
	s.logEvents.WithLabelValues(string(f.Source), f.Level, f.Host).Inc()
	for _, c := range f.Category {
		s.categories.WithLabelValues(c.Name, c.Value).Inc()
	}
	return nil
}

// SendUserEvent counts a user event.
func (s *Sink) SendUserEvent(_ context.Context, ev *event.UserEvent) error {
	s.userEvents.WithLabelValues(string(ev.MessageType), ev.Command).Inc()
	return nil
}

// Close is a no-op; the counters live as long as the registry.
func (s *Sink) Close(context.Context) error {
	return nil
}
