package udp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/ingest"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/pkg/retry"
)

type fakeQueue struct {
	mu      sync.Mutex
	got     [][]byte
	remotes []string
	refuse  bool
}

func (q *fakeQueue) EnqueueFrom(payload []byte, remote string) ingest.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.refuse {
		return ingest.Result{Reason: ingest.ReasonQueueFull}
	}
	q.got = append(q.got, payload)
	q.remotes = append(q.remotes, remote)
	return ingest.Result{Accepted: true}
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.got)
}

func startListener(t *testing.T, q Enqueuer, deps Deps) *Listener {
	t.Helper()
	deps.Queue = q
	if deps.Stream == "" {
		deps.Stream = event.StreamLog
	}
	l, err := NewListener(Config{Host: "127.0.0.1", Port: 0}, deps)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop(time.Second) })
	return l
}

func send(t *testing.T, addr net.Addr, payloads ...string) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	for _, p := range payloads {
		_, err := conn.Write([]byte(p))
		require.NoError(t, err)
	}
}

func TestConfig(t *testing.T) {
	assert.Equal(t, "0.0.0.0:9997", Config{Port: 9997}.Address())
	assert.Equal(t, "127.0.0.1:9998", Config{Host: "127.0.0.1", Port: 9998}.Address())
	assert.NoError(t, Config{Port: 0}.Validate())

	err := Config{Port: 70000}.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewListener_RequiresQueue(t *testing.T) {
	_, err := NewListener(Config{Port: 0}, Deps{Stream: event.StreamLog})
	require.Error(t, err)
}

func TestListener_ReceivesDatagrams(t *testing.T) {
	q := &fakeQueue{}
	var listening net.Addr
	l := startListener(t, q, Deps{OnListening: func(a net.Addr) { listening = a }})

	require.NotNil(t, l.Addr())
	assert.Equal(t, l.Addr().String(), listening.String())

	send(t, l.Addr(), "/qseow-engine/\tone", "/qseow-proxy/\ttwo")
	require.Eventually(t, func() bool { return q.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	q.mu.Lock()
	assert.Equal(t, "/qseow-engine/\tone", string(q.got[0]))
	assert.Contains(t, q.remotes[0], "127.0.0.1:")
	q.mu.Unlock()

	s := l.Stats()
	assert.Equal(t, int64(2), s.PacketsReceived)
	assert.Equal(t, int64(len("/qseow-engine/\tone")+len("/qseow-proxy/\ttwo")), s.BytesReceived)
	assert.False(t, s.LastActivity.IsZero())
}

func TestListener_CountsRefusedPackets(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	q := &fakeQueue{refuse: true}
	l := startListener(t, q, Deps{Stream: event.StreamUser, MetricsRegistry: registry})

	send(t, l.Addr(), "a", "b", "c")
	require.Eventually(t, func() bool { return l.Stats().PacketsRefused == 3 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(l.metrics.packetsReceived))
	assert.Equal(t, 3.0, testutil.ToFloat64(l.metrics.packetsRefused))
}

func TestListener_StartStop(t *testing.T) {
	q := &fakeQueue{}
	l := startListener(t, q, Deps{})

	// Second Start is a no-op.
	require.NoError(t, l.Start(context.Background()))

	require.NoError(t, l.Stop(time.Second))
	assert.Nil(t, l.Addr())
	require.NoError(t, l.Stop(time.Second))
}

func TestListener_BindConflict(t *testing.T) {
	first := startListener(t, &fakeQueue{}, Deps{})
	port := first.Addr().(*net.UDPAddr).Port

	once := retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	second, err := NewListener(Config{Host: "127.0.0.1", Port: port}, Deps{
		Stream: event.StreamLog,
		Queue:  &fakeQueue{},
		Retry:  &once,
	})
	require.NoError(t, err)

	err = second.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestListener_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, err := NewListener(Config{Host: "127.0.0.1"}, Deps{Stream: event.StreamLog, Queue: &fakeQueue{}})
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx))

	cancel()
	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after cancel")
	}
	require.NoError(t, l.Stop(time.Second))
}
