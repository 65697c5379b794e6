// Package media defines the data unit that flows through a stage and its
// msgpack wire encoding.
package media

import (
	"maps"
	"time"
)

// ClockTime is a stream time in nanoseconds. ClockTimeNone marks an unset value.
type ClockTime int64

// ClockTimeNone is the unset clock time.
const ClockTimeNone ClockTime = -1

// Valid reports whether t is set.
func (t ClockTime) Valid() bool { return t >= 0 }

// Duration converts a valid clock time to a time.Duration.
func (t ClockTime) Duration() time.Duration { return time.Duration(t) }

// FromDuration converts a time.Duration to a clock time.
func FromDuration(d time.Duration) ClockTime { return ClockTime(d) }

// Flags annotate a buffer.
type Flags uint32

const (
	// FlagDiscont marks the first buffer after a discontinuity.
	FlagDiscont Flags = 1 << iota
	// FlagGap marks a buffer that carries no meaningful data.
	FlagGap
	// FlagDeltaUnit marks a buffer that cannot be decoded on its own.
	FlagDeltaUnit
)

// Has reports whether all bits of f are set.
func (fl Flags) Has(f Flags) bool { return fl&f == f }

// Buffer is one data unit. A zero Data slice is valid; processing units
// decide what an empty payload means.
type Buffer struct {
	Data     []byte            `msgpack:"data" json:"data"`
	PTS      ClockTime         `msgpack:"pts" json:"pts"`
	Duration ClockTime         `msgpack:"duration" json:"duration"`
	Offset   uint64            `msgpack:"offset" json:"offset"`
	Flags    Flags             `msgpack:"flags" json:"flags"`
	Meta     map[string]string `msgpack:"meta,omitempty" json:"meta,omitempty"`
}

// New returns an empty buffer with unset timestamps.
func New() *Buffer {
	return &Buffer{PTS: ClockTimeNone, Duration: ClockTimeNone}
}

// FromBytes wraps data in a buffer with unset timestamps.
func FromBytes(data []byte) *Buffer {
	b := New()
	b.Data = data
	return b
}

// Size returns the payload length.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// IsEmpty reports whether the buffer carries no payload.
func (b *Buffer) IsEmpty() bool {
	return b.Size() == 0
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	out := *b
	if b.Data != nil {
		out.Data = append([]byte(nil), b.Data...)
	}
	out.Meta = maps.Clone(b.Meta)
	return &out
}

// CopyMetadata copies timestamps, offset, flags and metadata from src.
func (b *Buffer) CopyMetadata(src *Buffer) {
	if src == nil {
		return
	}
	b.PTS = src.PTS
	b.Duration = src.Duration
	b.Offset = src.Offset
	b.Flags = src.Flags
	b.Meta = maps.Clone(src.Meta)
}
