package promexport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/ingest"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/processor/counter"
)

type fakeQueue struct {
	mu      sync.Mutex
	stream  event.Stream
	metrics ingest.Metrics
	drains  int
}

func (q *fakeQueue) Stream() event.Stream { return q.stream }

func (q *fakeQueue) Drain() ingest.Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drains++
	m := q.metrics
	q.metrics = ingest.Metrics{QueueMaxSize: m.QueueMaxSize}
	return m
}

func TestSink_CountsEvents(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s, err := NewSink(registry)
	require.NoError(t, err)
	assert.Equal(t, "prometheus", s.Name())

	ctx := context.Background()
	ev := &event.ProxyEvent{LogFields: event.LogFields{
		Source: event.SourceProxy, Level: "ERROR", Host: "sense1",
		Category: []event.Category{{Name: "qs_proxy", Value: "auth"}, {Name: "severity", Value: "high"}},
	}}
	require.NoError(t, s.SendLogEvent(ctx, ev))
	require.NoError(t, s.SendLogEvent(ctx, ev))
	require.NoError(t, s.SendUserEvent(ctx, &event.UserEvent{MessageType: event.SourceProxySession, Command: "Start session"}))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.logEvents.WithLabelValues("qseow-proxy", "ERROR", "sense1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.categories.WithLabelValues("qs_proxy", "auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.userEvents.WithLabelValues("qseow-proxy-session", "Start session")))
	assert.NoError(t, s.Close(ctx))

	_, err = NewSink(registry)
	assert.Error(t, err, "second registration must conflict")
}

func TestStatsExporter_Export(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	q := &fakeQueue{stream: event.StreamLog, metrics: ingest.Metrics{
		MessagesReceived:         10,
		MessagesQueued:           7,
		MessagesProcessed:        6,
		MessagesFailed:           1,
		MessagesDroppedTotal:     3,
		MessagesDroppedRateLimit: 2,
		MessagesDroppedSize:      1,
		QueueMaxSize:             100,
		BackpressureActive:       true,
		ProcessingTimeP95Ms:      4.5,
	}}
	accepted := counter.NewAccepted()
	accepted.AddLogEvent(&event.EngineEvent{LogFields: event.LogFields{Source: event.SourceEngine, Host: "h1", Subsystem: "System.Engine"}})
	accepted.AddUnrecognized(event.StreamUser)
	rejected := counter.NewRejected()
	rejected.Add(&event.RejectedEvent{Source: event.SourceQixPerf, AppID: "a1", AppName: "Sales", Method: "GetLayout", ObjectType: "table", ProcessTime: 12})

	e, err := NewStatsExporter(ExporterConfig{Interval: time.Hour}, ExporterDeps{
		Registry: registry,
		Queues:   []QueueSource{q},
		Accepted: accepted,
		Rejected: rejected,
	})
	require.NoError(t, err)

	e.Export()
	e.Export()

	assert.Equal(t, 10.0, testutil.ToFloat64(e.queueMessages.WithLabelValues("log", "received")))
	assert.Equal(t, 6.0, testutil.ToFloat64(e.queueMessages.WithLabelValues("log", "processed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.queueDropped.WithLabelValues("log", ingest.ReasonRateLimit)))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.queueDropped.WithLabelValues("log", ingest.ReasonQueueFull)))
	assert.Equal(t, 100.0, testutil.ToFloat64(e.queueState.WithLabelValues("log", "max_size")))
	// Second export saw a cleared queue.
	assert.Equal(t, 0.0, testutil.ToFloat64(e.queueState.WithLabelValues("log", "backpressure_active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.latency.WithLabelValues("log", "p95")))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.accepts.WithLabelValues("log", "qseow-engine", "h1", "System.Engine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.unrecognized.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.rejects.WithLabelValues("a1", "Sales", "GetLayout", "table")))
	assert.Equal(t, 12.0, testutil.ToFloat64(e.rejectTime.WithLabelValues("a1", "Sales", "GetLayout", "table")))

	assert.Empty(t, accepted.LogEventCounts())
	assert.Empty(t, rejected.Counts())
	assert.Equal(t, 2, q.drains)
	assert.Equal(t, int64(2), e.Exports())
}

func TestStatsExporter_StartStop(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	q := &fakeQueue{stream: event.StreamUser}
	e, err := NewStatsExporter(ExporterConfig{Interval: 10 * time.Millisecond}, ExporterDeps{
		Registry: registry,
		Queues:   []QueueSource{q},
	})
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	assert.Error(t, e.Start(context.Background()))

	require.Eventually(t, func() bool { return e.Exports() >= 2 }, time.Second, 5*time.Millisecond)

	before := e.Exports()
	e.Stop()
	assert.Greater(t, e.Exports(), before, "stop runs a final export")
}

func TestStatsExporter_RequiresRegistry(t *testing.T) {
	_, err := NewStatsExporter(ExporterConfig{}, ExporterDeps{})
	assert.Error(t, err)
}
