// Package zipper aligns independently arriving units from N slots into
// tuples. A tuple is produced only when every slot holds at least one unit;
// each slot then contributes its most recent unit and its older units are
// discarded.
package zipper

import (
	"fmt"
	"sync/atomic"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/metric"
	"github.com/c360/zipstage/pkg/buffer"
)

// DefaultDepth bounds how many pending units one slot keeps. Only the newest
// is ever used, so the depth only limits memory held by a fast producer.
const DefaultDepth = 8

// DropReason says why units left a slot without being zipped.
type DropReason string

const (
	// DropStale means newer units arrived in the same slot before completion.
	DropStale DropReason = "stale"
	// DropReset means the slots were cleared by Reset.
	DropReset DropReason = "reset"
)

// DropFunc observes discarded units per slot.
type DropFunc func(slot int, n int, reason DropReason)

// Option configures a Zipper.
type Option func(*options)

type options struct {
	depth       int
	onDrop      DropFunc
	metricsReg  *metric.MetricsRegistry
	metricsName string
}

// WithDepth sets the per-slot bound. Values below 1 are raised to 1.
func WithDepth(depth int) Option {
	return func(o *options) { o.depth = depth }
}

// WithDropFunc registers an observer for discarded units.
func WithDropFunc(fn DropFunc) Option {
	return func(o *options) { o.onDrop = fn }
}

// WithSlotMetrics exports per-slot ring statistics under name_<slot>.
func WithSlotMetrics(registry *metric.MetricsRegistry, name string) Option {
	return func(o *options) {
		o.metricsReg = registry
		o.metricsName = name
	}
}

// Zipper is a fixed-width barrier. It is not safe for concurrent use: callers
// serialize Push, TryZip and Reset, typically with one mutex held across a
// push and the completion check that follows it.
type Zipper[T any] struct {
	slots  []buffer.Buffer[T]
	onDrop DropFunc

	pushes  atomic.Int64
	tuples  atomic.Int64
	dropped atomic.Int64
}

// New creates a zipper with size slots.
func New[T any](size int, opts ...Option) (*Zipper[T], error) {
	if size < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("negative slot count %d", size), "Zipper", "New", "size check")
	}

	o := options{depth: DefaultDepth}
	for _, opt := range opts {
		opt(&o)
	}

	z := &Zipper[T]{slots: make([]buffer.Buffer[T], size), onDrop: o.onDrop}
	for i := range z.slots {
		slot := i
		bufOpts := []buffer.Option[T]{buffer.WithDropCallback[T](func(T) { z.drop(slot, 1, DropStale) })}
		if o.metricsReg != nil && o.metricsName != "" {
			bufOpts = append(bufOpts, buffer.WithMetrics[T](o.metricsReg, fmt.Sprintf("%s_%d", o.metricsName, i)))
		}

		ring, err := buffer.NewRing[T](o.depth, bufOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "Zipper", "New", fmt.Sprintf("slot %d", i))
		}
		z.slots[i] = ring
	}
	return z, nil
}

// Size returns the number of slots.
func (z *Zipper[T]) Size() int {
	return len(z.slots)
}

// Push appends unit to a slot. It never blocks. An out-of-range slot is a
// contract violation and panics.
func (z *Zipper[T]) Push(unit T, slot int) {
	if slot < 0 || slot >= len(z.slots) {
		errors.Violate(errors.ErrUnknownEndpoint, "slot %d outside [0,%d)", slot, len(z.slots))
	}
	z.slots[slot].Write(unit)
	z.pushes.Add(1)
}

// TryZip returns one unit per slot when every slot is non-empty, and clears
// all slots. Otherwise it returns false and leaves every slot untouched.
func (z *Zipper[T]) TryZip() ([]T, bool) {
	for _, s := range z.slots {
		if s.IsEmpty() {
			return nil, false
		}
	}

	tuple := make([]T, len(z.slots))
	for i, s := range z.slots {
		latest, discarded, _ := s.TakeLatest()
		tuple[i] = latest
		if discarded > 0 {
			z.drop(i, discarded, DropStale)
		}
	}
	z.tuples.Add(1)
	return tuple, true
}

// Reset empties every slot.
func (z *Zipper[T]) Reset() {
	for i, s := range z.slots {
		if n := s.Clear(); n > 0 {
			z.drop(i, n, DropReset)
		}
	}
}

// Pending returns the number of units waiting in a slot.
func (z *Zipper[T]) Pending(slot int) int {
	if slot < 0 || slot >= len(z.slots) {
		return 0
	}
	return z.slots[slot].Size()
}

// IsEmpty reports whether no slot holds a unit.
func (z *Zipper[T]) IsEmpty() bool {
	for _, s := range z.slots {
		if !s.IsEmpty() {
			return false
		}
	}
	return true
}

func (z *Zipper[T]) drop(slot, n int, reason DropReason) {
	z.dropped.Add(int64(n))
	if z.onDrop != nil {
		z.onDrop(slot, n, reason)
	}
}

// Stats is a snapshot of zipper activity.
type Stats struct {
	Pushes  int64 `json:"pushes"`
	Tuples  int64 `json:"tuples"`
	Dropped int64 `json:"dropped"`
}

// Stats returns counters since construction.
func (z *Zipper[T]) Stats() Stats {
	return Stats{
		Pushes:  z.pushes.Load(),
		Tuples:  z.tuples.Load(),
		Dropped: z.dropped.Load(),
	}
}
