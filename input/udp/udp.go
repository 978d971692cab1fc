package udp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/ingest"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/pkg/retry"
)

const (
	socketBufferSize = 2 * 1024 * 1024
	readDeadline     = 100 * time.Millisecond
	maxDatagram      = 65536
)

// Enqueuer admits one datagram without blocking.
type Enqueuer interface {
	EnqueueFrom(payload []byte, remote string) ingest.Result
}

// Deps holds runtime dependencies for a Listener.
type Deps struct {
	Stream          event.Stream
	Queue           Enqueuer
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	// OnListening is called once the socket is bound.
	OnListening func(addr net.Addr)
	// Retry overrides the bind retry policy.
	Retry *retry.Config
}

// Stats are the listener's own counters.
type Stats struct {
	PacketsReceived int64
	BytesReceived   int64
	PacketsRefused  int64
	SocketErrors    int64
	LastActivity    time.Time
}

// Listener reads datagrams from one UDP socket.
type Listener struct {
	cfg         Config
	stream      event.Stream
	queue       Enqueuer
	logger      *slog.Logger
	onListening func(net.Addr)
	retryConfig retry.Config
	metrics     *Metrics

	mu      sync.RWMutex
	conn    *net.UDPConn
	running atomic.Bool
	done    chan struct{}

	packetsReceived atomic.Int64
	bytesReceived   atomic.Int64
	packetsRefused  atomic.Int64
	socketErrors    atomic.Int64
	lastActivity    atomic.Value // time.Time
}

// NewListener validates cfg and creates a stopped Listener.
func NewListener(cfg Config, deps Deps) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Queue == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil queue: %w", errors.ErrMissingConfig),
			"udp-listener", "NewListener", "queue validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "udp-listener", "stream", string(deps.Stream))

	metrics, err := newMetrics(deps.MetricsRegistry, deps.Stream)
	if err != nil {
		return nil, errors.WrapFatal(err, "udp-listener", "NewListener", "register metrics")
	}

	retryConfig := retry.Quick()
	if deps.Retry != nil {
		retryConfig = *deps.Retry
	}

	l := &Listener{
		cfg:         cfg,
		stream:      deps.Stream,
		queue:       deps.Queue,
		logger:      logger,
		onListening: deps.OnListening,
		retryConfig: retryConfig,
		metrics:     metrics,
	}
	l.lastActivity.Store(time.Time{})
	return l, nil
}

// Start binds the socket and starts the read loop. Calling Start on a
// running listener is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running.Load() {
		l.mu.Unlock()
		return nil
	}

	if err := retry.Do(ctx, l.retryConfig, l.bindSocket); err != nil {
		l.mu.Unlock()
		return errors.WrapTransient(err, "udp-listener", "Start", "socket binding")
	}

	l.running.Store(true)
	l.done = make(chan struct{})
	conn, done := l.conn, l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.readLoop(ctx, conn)
	}()

	addr := conn.LocalAddr()
	l.logger.Info("UDP server listening", "address", addr.String())
	if l.onListening != nil {
		l.onListening(addr)
	}
	return nil
}

func (l *Listener) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address())
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("failed to resolve UDP address %s: %w", l.cfg.Address(), err))
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", l.cfg.Address(), err)
	}

	// Some systems cap the buffer size; carry on with what we got.
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		l.logger.Warn("Could not set UDP buffer size",
			"buffer_size", socketBufferSize,
			"error", err)
	}

	l.conn = conn
	return nil
}

// Addr returns the bound address, or nil when not running.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stop closes the socket and waits up to timeout for the read loop to exit.
func (l *Listener) Stop(timeout time.Duration) error {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return nil
	}
	l.running.Store(false)
	if l.conn != nil {
		_ = l.conn.Close()
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp-listener", "Stop", "graceful shutdown")
	}

	l.mu.Lock()
	l.conn = nil
	l.mu.Unlock()
	l.logger.Info("UDP server stopped", "packets_received", l.packetsReceived.Load())
	return nil
}

// Stats returns the listener counters.
func (l *Listener) Stats() Stats {
	last, _ := l.lastActivity.Load().(time.Time)
	return Stats{
		PacketsReceived: l.packetsReceived.Load(),
		BytesReceived:   l.bytesReceived.Load(),
		PacketsRefused:  l.packetsRefused.Load(),
		SocketErrors:    l.socketErrors.Load(),
		LastActivity:    last,
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, maxDatagram)

	for l.running.Load() {
		if ctx.Err() != nil {
			return
		}

		// The deadline lets the loop notice cancellation.
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if stderrors.Is(err, net.ErrClosed) || !l.running.Load() {
				return
			}
			l.socketErrors.Add(1)
			if l.metrics != nil {
				l.metrics.socketErrors.Inc()
			}
			l.logger.Warn("UDP read failed", "error", err)
			continue
		}

		now := time.Now()
		l.packetsReceived.Add(1)
		l.bytesReceived.Add(int64(n))
		l.lastActivity.Store(now)
		if l.metrics != nil {
			l.metrics.packetsReceived.Inc()
			l.metrics.bytesReceived.Add(float64(n))
			l.metrics.lastActivity.Set(float64(now.Unix()))
		}

		// The read buffer is reused, the queue keeps its own copy.
		data := make([]byte, n)
		copy(data, buf[:n])

		var from string
		if remote != nil {
			from = remote.String()
		}
		if res := l.queue.EnqueueFrom(data, from); !res.Accepted {
			l.packetsRefused.Add(1)
			if l.metrics != nil {
				l.metrics.packetsRefused.Inc()
			}
		}
	}
}
