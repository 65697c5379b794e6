package protocol

import (
	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/media"
)

// EventType identifies an event.
type EventType string

const (
	EventFlushStart      EventType = "flush-start"
	EventFlushStop       EventType = "flush-stop"
	EventEOS             EventType = "eos"
	EventReconfigure     EventType = "reconfigure"
	EventLatency         EventType = "latency"
	EventStreamStart     EventType = "stream-start"
	EventCaps            EventType = "caps"
	EventTag             EventType = "tag"
	EventSegment         EventType = "segment"
	EventQoS             EventType = "qos"
	EventStreamGroupDone EventType = "stream-group-done"
	EventGap             EventType = "gap"
	EventSeek            EventType = "seek"
	EventStep            EventType = "step"
	EventCustom          EventType = "custom"
)

// Format is the unit of segment and seeking positions.
type Format string

const (
	FormatTime  Format = "time"
	FormatBytes Format = "bytes"
)

// Segment describes the playback region that following buffers belong to.
type Segment struct {
	Format Format          `json:"format"`
	Rate   float64         `json:"rate"`
	Start  media.ClockTime `json:"start"`
	Stop   media.ClockTime `json:"stop"`
	Time   media.ClockTime `json:"time"`
}

// DefaultTimeSegment is an open-ended time segment starting at zero.
func DefaultTimeSegment() Segment {
	return Segment{Format: FormatTime, Rate: 1.0, Start: 0, Stop: media.ClockTimeNone, Time: 0}
}

// Event is a protocol event delivered to or produced by an endpoint. Only the
// fields relevant to its Type are set.
type Event struct {
	Type      EventType      `json:"type"`
	Caps      *caps.Caps     `json:"caps,omitempty"`
	Segment   *Segment       `json:"segment,omitempty"`
	ResetTime bool           `json:"reset_time,omitempty"`
	StreamID  string         `json:"stream_id,omitempty"`
	Tags      map[string]any `json:"tags,omitempty"`
	Name      string         `json:"name,omitempty"`
}

// NewFlushStart creates a flush-start event.
func NewFlushStart() Event { return Event{Type: EventFlushStart} }

// NewFlushStop creates a flush-stop event.
func NewFlushStop(resetTime bool) Event { return Event{Type: EventFlushStop, ResetTime: resetTime} }

// NewEOS creates an end-of-stream event.
func NewEOS() Event { return Event{Type: EventEOS} }

// NewCaps creates a caps event announcing a fixed format.
func NewCaps(c caps.Caps) Event { return Event{Type: EventCaps, Caps: &c} }

// NewSegment creates a segment event.
func NewSegment(s Segment) Event { return Event{Type: EventSegment, Segment: &s} }
