package buffer

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/metric"
)

func newTestRing[T any](t *testing.T, capacity int, opts ...Option[T]) Buffer[T] {
	t.Helper()
	buf, err := NewRing[T](capacity, opts...)
	require.NoError(t, err)
	return buf
}

func TestRing_InitialState(t *testing.T) {
	buf := newTestRing[int](t, 5)

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 5, buf.Capacity())
	assert.True(t, buf.IsEmpty())
	assert.False(t, buf.IsFull())

	_, _, ok := buf.TakeLatest()
	assert.False(t, ok)
}

func TestRing_MinimumCapacity(t *testing.T) {
	buf := newTestRing[int](t, 0)
	assert.Equal(t, 1, buf.Capacity())
}

func TestRing_Full(t *testing.T) {
	buf := newTestRing[string](t, 3)

	buf.Write("a")
	buf.Write("b")
	assert.False(t, buf.IsFull())
	buf.Write("c")
	assert.True(t, buf.IsFull())
	assert.Equal(t, 3, buf.Size())
	assert.Zero(t, buf.Stats().Overflows())
}

func TestRing_DropOldest(t *testing.T) {
	var dropped []int
	buf := newTestRing[int](t, 2, WithDropCallback[int](func(item int) { dropped = append(dropped, item) }))

	for i := 1; i <= 4; i++ {
		buf.Write(i)
	}

	assert.Equal(t, []int{1, 2}, dropped)
	assert.Equal(t, 2, buf.Size())
	assert.Equal(t, int64(2), buf.Stats().Overflows())
	assert.Equal(t, int64(2), buf.Stats().Drops())

	v, discarded, ok := buf.TakeLatest()
	require.True(t, ok)
	assert.Equal(t, 4, v)
	assert.Equal(t, 1, discarded)
}

func TestRing_TakeLatest(t *testing.T) {
	buf := newTestRing[string](t, 8)

	for _, v := range []string{"u3", "u4", "u5"} {
		buf.Write(v)
	}

	v, discarded, ok := buf.TakeLatest()
	require.True(t, ok)
	assert.Equal(t, "u5", v)
	assert.Equal(t, 2, discarded)
	assert.True(t, buf.IsEmpty())

	// The ring is reusable after a wrap-around drain.
	buf.Write("u7")
	v, discarded, ok = buf.TakeLatest()
	require.True(t, ok)
	assert.Equal(t, "u7", v)
	assert.Equal(t, 0, discarded)
}

func TestRing_TakeLatestAfterOverflow(t *testing.T) {
	buf := newTestRing[int](t, 2)
	for i := 1; i <= 5; i++ {
		buf.Write(i)
	}

	v, discarded, ok := buf.TakeLatest()
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, 1, discarded)
	// three overflow drops plus one latest-wins discard
	assert.Equal(t, int64(4), buf.Stats().Drops())
}

func TestRing_Clear(t *testing.T) {
	buf := newTestRing[int](t, 4)
	buf.Write(1)
	buf.Write(2)

	assert.Equal(t, 2, buf.Clear())
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, buf.Clear())
	assert.Equal(t, int64(2), buf.Stats().MaxSize())
}

func TestRing_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	buf := newTestRing[int](t, 1, WithMetrics[int](registry, "slot_a"))

	buf.Write(1)
	buf.Write(2)

	r := buf.(*ring[int])
	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.writes))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.drops))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.fill))

	// Registering the same prefix twice fails.
	_, err := NewRing[int](1, WithMetrics[int](registry, "slot_a"))
	assert.Error(t, err)
}

func TestRing_ConcurrentWriters(t *testing.T) {
	buf := newTestRing[int](t, 16)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf.Write(i)
			}
		}()
	}
	wg.Wait()

	stats := buf.Stats().Summary()
	assert.Equal(t, int64(800), stats.Writes)
	assert.Equal(t, int64(800-16), stats.Drops)
	assert.Equal(t, 16, buf.Size())
}
