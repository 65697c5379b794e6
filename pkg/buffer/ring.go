package buffer

import (
	"sync"

	"github.com/c360/zipstage/errors"
)

type ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest item

	stats   *Statistics
	metrics *bufferMetrics
	opts    *bufferOptions[T]
}

func newRing[T any](capacity int, opts *bufferOptions[T]) (*ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewRing", "metrics registration")
		}
	}

	return &ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

func (r *ring[T]) Write(item T) {
	var dropped T
	overflow := false
	defer func() {
		if overflow && r.opts.dropCallback != nil {
			r.opts.dropCallback(dropped)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		r.stats.Overflow()
		r.stats.Drop(1)
		r.metrics.recordDrop(1)

		overflow = true
		dropped = r.pop()
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++

	r.stats.Write()
	r.stats.UpdateSize(int64(r.size))
	r.metrics.recordWrite(r.size, r.capacity)
}

// pop removes the oldest item; caller holds the lock and checked size.
func (r *ring[T]) pop() T {
	var zero T
	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	return item
}

func (r *ring[T]) TakeLatest() (T, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest T
	if r.size == 0 {
		return latest, 0, false
	}

	discarded := r.size - 1
	for r.size > 0 {
		latest = r.pop()
	}
	r.head, r.tail = 0, 0

	r.stats.Read(1)
	if discarded > 0 {
		r.stats.Drop(int64(discarded))
		r.metrics.recordDrop(discarded)
	}
	r.stats.UpdateSize(0)
	r.metrics.updateSize(0, r.capacity)
	return latest, discarded, true
}

func (r *ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *ring[T]) Capacity() int {
	return r.capacity
}

func (r *ring[T]) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size == r.capacity
}

func (r *ring[T]) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size == 0
}

func (r *ring[T]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.size
	clear(r.items)
	r.head, r.tail, r.size = 0, 0, 0

	if n > 0 {
		r.stats.Drop(int64(n))
		r.metrics.recordDrop(n)
	}
	r.stats.UpdateSize(0)
	r.metrics.updateSize(0, r.capacity)
	return n
}

func (r *ring[T]) Stats() *Statistics {
	return r.stats
}
