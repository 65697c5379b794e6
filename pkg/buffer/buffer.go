// Package buffer provides a bounded, thread-safe ring buffer that drops its
// oldest item on overflow. The synchronizer uses one ring per input slot.
package buffer

// Buffer is a bounded FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. It never blocks; when full the oldest item is
	// dropped to make room.
	Write(item T)

	// TakeLatest removes every item and returns the newest one together with the
	// number of older items that were discarded.
	TakeLatest() (item T, discarded int, ok bool)

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear removes all items and returns how many were removed.
	Clear() int

	Stats() *Statistics
}

// DropCallback is called, outside the buffer lock, with each item dropped on overflow.
type DropCallback[T any] func(item T)

// NewRing creates a ring buffer. A capacity below 1 is raised to 1.
func NewRing[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	return newRing(capacity, applyOptions(options...))
}
