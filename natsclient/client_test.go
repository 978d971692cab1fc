package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/metric"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())

	_, err = NewClient("")
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(0))
	assert.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	c, err := NewClient("nats://invalid:4222")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		c.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, int32(5), c.Failures())
	assert.Equal(t, 2*time.Second, c.Backoff())
}

func TestCircuitBreaker_ResetAndBackoffCap(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithMaxBackoff(3*time.Second))
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		c.recordFailure()
	}
	assert.Equal(t, 3*time.Second, c.Backoff())

	c.resetCircuit()
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, time.Second, c.Backoff())
	assert.NotEqual(t, StatusCircuitOpen, c.Status())
}

func TestCircuitBreaker_HalfOpenAfterBackoff(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)
	c.backoff.Store(10 * time.Millisecond)

	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())
	require.Eventually(t, func() bool { return c.Status() == StatusDisconnected }, time.Second, 5*time.Millisecond)
}

func TestPublish_NotConnected(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(2),
		WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)

	err = c.Publish(context.Background(), "sensewatch.log", []byte("{}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.IsTransient(err))

	_ = c.Publish(context.Background(), "sensewatch.log", []byte("{}"))
	err = c.Publish(context.Background(), "sensewatch.log", []byte("{}"))
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().NATSCircuitBreaker))
}

func TestConnect_Unreachable(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1", WithTimeout(200*time.Millisecond), WithMaxReconnects(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, int32(1), c.GetStatus().FailureCount)
}

func TestConnect_CircuitOpenFailsFast(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)
	c.recordFailure()

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithCredentials("user", "secret"), WithToken("tok"))
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Empty(t, c.password)
	assert.Empty(t, c.token)
}
