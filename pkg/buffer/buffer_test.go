package buffer

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/metric"
)

func TestCircularBuffer_FIFO(t *testing.T) {
	buf, err := NewCircularBuffer[string](3)
	require.NoError(t, err)
	defer buf.Close()

	assert.True(t, buf.IsEmpty())
	require.NoError(t, buf.Write("a"))
	require.NoError(t, buf.Write("b"))
	require.NoError(t, buf.Write("c"))
	assert.True(t, buf.IsFull())

	v, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, []string{"b", "c"}, buf.ReadBatch(10))

	_, ok = buf.Read()
	assert.False(t, ok)
	assert.Nil(t, buf.ReadBatch(0))
}

func TestCircularBuffer_DropOldest(t *testing.T) {
	var dropped []int
	buf, err := NewCircularBuffer[int](3, WithDropCallback[int](func(i int) { dropped = append(dropped, i) }))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, buf.Write(i))
	}

	assert.Equal(t, []int{3, 4, 5}, buf.Items())
	assert.Equal(t, 3, buf.Size(), "Items must not consume")
	assert.Equal(t, []int{1, 2}, dropped)

	s := buf.Stats().Summary()
	assert.Equal(t, int64(5), s.Writes)
	assert.Equal(t, int64(2), s.Drops)
	assert.Equal(t, int64(3), s.MaxSize)
}

func TestCircularBuffer_DropNewest(t *testing.T) {
	buf, err := NewCircularBuffer[int](2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, buf.Write(i))
	}

	assert.Equal(t, []int{1, 2}, buf.Items())
	assert.InDelta(t, 0.5, buf.Stats().DropRate(), 0.0001)
}

func TestCircularBuffer_ClearAndClose(t *testing.T) {
	var dropped int
	buf, err := NewCircularBuffer[int](4, WithDropCallback[int](func(int) { dropped++ }))
	require.NoError(t, err)

	_ = buf.Write(1)
	_ = buf.Write(2)
	buf.Clear()
	assert.Equal(t, 2, dropped)
	assert.True(t, buf.IsEmpty())

	require.NoError(t, buf.Close())
	err = buf.Write(3)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
}

func TestCircularBuffer_MinimumCapacity(t *testing.T) {
	buf, err := NewCircularBuffer[int](0)
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Capacity())
}

func TestCircularBuffer_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	buf, err := NewCircularBuffer[int](2, WithMetrics[int](reg, "archive"))
	require.NoError(t, err)

	_ = buf.Write(1)
	_ = buf.Write(2)
	_ = buf.Write(3)

	cb := buf.(*circularBuffer[int])
	assert.Equal(t, 3.0, testutil.ToFloat64(cb.metrics.writes))
	assert.Equal(t, 1.0, testutil.ToFloat64(cb.metrics.drops))
	assert.Equal(t, 1.0, testutil.ToFloat64(cb.metrics.utilization))

	_, err = NewCircularBuffer[int](2, WithMetrics[int](reg, "archive"))
	assert.Error(t, err, "duplicate registration must fail")
}

func TestCircularBuffer_Concurrent(t *testing.T) {
	buf, err := NewCircularBuffer[int](100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = buf.Write(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, buf.Size())
	s := buf.Stats().Summary()
	assert.Equal(t, int64(2000), s.Writes)
	assert.Equal(t, int64(1900), s.Drops)
}
