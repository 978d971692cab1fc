package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/pkg/buffer"
	"github.com/c360/sensewatch/pkg/worker"
)

const rateWindow = time.Minute

// Handler processes one queued datagram.
type Handler func(ctx context.Context, entry Entry) error

// Manager admits datagrams for one stream and runs them through a bounded
// worker pool. Enqueue never blocks.
type Manager struct {
	stream  event.Stream
	cfg     Config
	handler Handler
	logger  *slog.Logger
	now     func() time.Time

	pool    *worker.Pool[Entry]
	limiter *rate.Limiter
	latency buffer.Buffer[float64]
	prom    *queueMetrics

	registry *metric.MetricsRegistry

	mu           sync.Mutex
	counts       Metrics
	pending      int64
	backpressure bool
	windowStart  time.Time
	windowCount  int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetricsRegistry exports queue and worker metrics.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.registry = registry
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager validates cfg and builds a stopped Manager.
func NewManager(stream event.Stream, cfg Config, handler Handler, opts ...Option) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.WrapFatal(fmt.Errorf("nil handler: %w", errors.ErrMissingConfig),
			"QueueManager", "NewManager", "check handler")
	}

	m := &Manager{
		stream:  stream,
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "queue-manager", "stream", string(stream))

	if cfg.RateLimit.Enable {
		perSecond := rate.Limit(float64(cfg.RateLimit.MaxMessagesPerMinute) / rateWindow.Seconds())
		m.limiter = rate.NewLimiter(perSecond, cfg.RateLimit.Burst)
	}

	latency, err := buffer.NewCircularBuffer[float64](cfg.LatencySamples,
		buffer.WithOverflowPolicy[float64](buffer.DropOldest))
	if err != nil {
		return nil, errors.WrapFatal(err, "QueueManager", "NewManager", "create latency reservoir")
	}
	m.latency = latency

	poolOpts := []worker.Option[Entry]{
		worker.WithResultHook[Entry](m.onResult),
		worker.WithDiscardHook[Entry](m.onDiscard),
	}
	if m.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[Entry](m.registry, string(stream)))
		prom, err := newQueueMetrics(m.registry, stream)
		if err != nil {
			return nil, errors.WrapFatal(err, "QueueManager", "NewManager", "register metrics")
		}
		m.prom = prom
	}

	pool, err := worker.NewPool[Entry](cfg.Workers, cfg.QueueMaxSize, m.process, poolOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "QueueManager", "NewManager", "create worker pool")
	}
	m.pool = pool
	m.prom.setCapacity(cfg.QueueMaxSize)
	return m, nil
}

// Stream returns the stream this manager serves.
func (m *Manager) Stream() event.Stream {
	return m.stream
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start launches the workers.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.pool.Start(ctx); err != nil {
		if stderrors.Is(err, worker.ErrPoolAlreadyStarted) {
			return errors.WrapInvalid(errors.ErrAlreadyStarted, "QueueManager", "Start", "start workers")
		}
		return errors.WrapFatal(err, "QueueManager", "Start", "start workers")
	}
	m.logger.Info("Queue manager started",
		"max_size", m.cfg.QueueMaxSize,
		"workers", m.cfg.Workers,
		"rate_limit", m.cfg.RateLimit.Enable)
	return nil
}

// Stop stops admitting datagrams and drains the queue for up to grace.
// Whatever is still queued afterwards is counted as failed.
func (m *Manager) Stop(grace time.Duration) error {
	err := m.pool.Stop(grace)
	snapshot := m.Metrics()
	m.logger.Info("Queue manager stopped",
		"processed", snapshot.MessagesProcessed,
		"failed", snapshot.MessagesFailed,
		"pending", snapshot.QueuePending)
	if err != nil {
		return errors.WrapTransient(err, "QueueManager", "Stop", "drain queue")
	}
	return nil
}

// Enqueue admits payload or reports why it was dropped. Checks run in
// order: size, rate limit, queue capacity.
func (m *Manager) Enqueue(payload []byte) Result {
	return m.EnqueueFrom(payload, "")
}

// EnqueueFrom is Enqueue with the sender address attached to the entry.
func (m *Manager) EnqueueFrom(payload []byte, remote string) Result {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts.MessagesReceived++

	if len(payload) > m.cfg.MaxMessageSize {
		m.counts.MessagesDroppedSize++
		return m.dropLocked(ReasonSize)
	}

	if m.limiter != nil {
		m.countWindowLocked(now)
		if !m.limiter.AllowN(now, 1) {
			m.counts.MessagesDroppedRateLimit++
			return m.dropLocked(ReasonRateLimit)
		}
	}

	entry := Entry{
		Datagram: Datagram{
			Payload:    payload,
			ReceivedAt: now,
			Stream:     m.stream,
			Remote:     remote,
		},
		EnqueuedAt: now,
	}
	// Submit runs under mu so the result hook cannot decrement pending
	// before it has been incremented here.
	if err := m.pool.Submit(entry); err != nil {
		m.counts.MessagesDroppedQueueFull++
		return m.dropLocked(ReasonQueueFull)
	}

	m.counts.MessagesQueued++
	m.pending++
	m.updateBackpressureLocked()
	return Result{Accepted: true}
}

func (m *Manager) dropLocked(reason string) Result {
	m.counts.MessagesDroppedTotal++
	m.prom.recordDrop(reason)
	m.updateBackpressureLocked()
	return Result{Accepted: false, Reason: reason}
}

func (m *Manager) countWindowLocked(now time.Time) {
	if m.windowStart.IsZero() || now.Sub(m.windowStart) >= rateWindow {
		m.windowStart = now
		m.windowCount = 0
	}
	m.windowCount++
}

func (m *Manager) utilizationLocked() float64 {
	return float64(m.pool.Depth()) / float64(m.cfg.QueueMaxSize) * 100
}

func (m *Manager) updateBackpressureLocked() {
	util := m.utilizationLocked()
	m.prom.setUtilization(m.pool.Depth(), util)

	switch {
	case !m.backpressure && util >= m.cfg.BackpressureHigh:
		m.backpressure = true
		m.prom.setBackpressure(true)
		m.logger.Warn("Queue backpressure active",
			"utilization_pct", util,
			"threshold_pct", m.cfg.BackpressureHigh)
	// An empty queue always releases, which is what a 0 release mark means.
	case m.backpressure && (util < m.cfg.BackpressureLow || util == 0):
		m.backpressure = false
		m.prom.setBackpressure(false)
		m.logger.Info("Queue backpressure released",
			"utilization_pct", util,
			"release_pct", m.cfg.BackpressureLow)
	}
}

func (m *Manager) process(ctx context.Context, entry Entry) error {
	return m.handler(ctx, entry)
}

func (m *Manager) onResult(entry Entry, err error, elapsed time.Duration) {
	m.mu.Lock()
	m.pending--
	if err != nil {
		m.counts.MessagesFailed++
	} else {
		m.counts.MessagesProcessed++
		_ = m.latency.Write(float64(elapsed) / float64(time.Millisecond))
	}
	m.updateBackpressureLocked()
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("Failed to process message",
			"error", err,
			"bytes", len(entry.Payload))
	}
}

func (m *Manager) onDiscard(Entry) {
	m.mu.Lock()
	m.pending--
	m.counts.MessagesFailed++
	m.mu.Unlock()
}

// Metrics returns a snapshot without resetting anything.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// ClearMetrics resets the counters and the latency reservoir. Gauges such
// as QueueSize and QueuePending are left alone.
func (m *Manager) ClearMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

// Drain returns a snapshot and clears the counters in one step.
func (m *Manager) Drain() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.snapshotLocked()
	m.clearLocked()
	return snapshot
}

func (m *Manager) snapshotLocked() Metrics {
	s := m.counts
	s.QueueSize = m.pool.Depth()
	s.QueueMaxSize = m.cfg.QueueMaxSize
	s.QueueUtilizationPct = m.utilizationLocked()
	s.QueuePending = m.pending
	s.BackpressureActive = m.backpressure
	if m.limiter != nil && !m.windowStart.IsZero() && m.now().Sub(m.windowStart) < rateWindow {
		s.RateLimitCurrent = m.windowCount
	}
	s.ProcessingTimeAvgMs, s.ProcessingTimeP95Ms, s.ProcessingTimeMaxMs = latencyStats(m.latency.Items())
	return s
}

func (m *Manager) clearLocked() {
	m.counts = Metrics{}
	m.latency.Clear()
}

// latencyStats returns average, 95th percentile and maximum. Percentile uses
// the nearest-rank method.
func latencyStats(samples []float64) (avg, p95, maxValue float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	rank := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sum / float64(len(sorted)), sorted[rank], sorted[len(sorted)-1]
}
