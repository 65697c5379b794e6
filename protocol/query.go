package protocol

import (
	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/media"
)

// QueryType identifies a query.
type QueryType string

const (
	QueryLatency    QueryType = "latency"
	QueryScheduling QueryType = "scheduling"
	QueryAcceptCaps QueryType = "accept-caps"
	QueryCaps       QueryType = "caps"
	QuerySeeking    QueryType = "seeking"
	QueryPosition   QueryType = "position"
	QueryDuration   QueryType = "duration"
	QueryCustom     QueryType = "custom"
)

// Query is a question delivered to an endpoint. Handlers answer by filling in
// the result fields of the concrete type.
type Query interface {
	Type() QueryType
}

// LatencyQuery asks for the latency an endpoint introduces.
type LatencyQuery struct {
	Live bool            `json:"live"`
	Min  media.ClockTime `json:"min"`
	Max  media.ClockTime `json:"max"`
}

// SchedulingFlags describe how data may be scheduled on an endpoint.
type SchedulingFlags uint32

const (
	SchedulingSeekable SchedulingFlags = 1 << iota
	SchedulingSequential
	SchedulingBandwidthLimited
)

// PadMode is a data scheduling mode.
type PadMode string

const (
	PadModePush PadMode = "push"
	PadModePull PadMode = "pull"
)

// SchedulingQuery asks how data may be scheduled.
type SchedulingQuery struct {
	Flags   SchedulingFlags `json:"flags"`
	MinSize int             `json:"min_size"`
	MaxSize int             `json:"max_size"`
	Align   int             `json:"align"`
	Modes   []PadMode       `json:"modes"`
}

// AcceptCapsQuery asks whether a format is acceptable.
type AcceptCapsQuery struct {
	Caps   caps.Caps `json:"caps"`
	Result bool      `json:"result"`
}

// CapsQuery asks for the formats an endpoint can handle, optionally narrowed by a filter.
type CapsQuery struct {
	Filter *caps.Caps `json:"filter,omitempty"`
	Result caps.Caps  `json:"result"`
}

// SeekingQuery asks whether an endpoint supports seeking in a format.
type SeekingQuery struct {
	Format   Format `json:"format"`
	Seekable bool   `json:"seekable"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// PositionQuery asks for the current position.
type PositionQuery struct {
	Format   Format `json:"format"`
	Position int64  `json:"position"`
}

// DurationQuery asks for the stream duration.
type DurationQuery struct {
	Format   Format `json:"format"`
	Duration int64  `json:"duration"`
}

// CustomQuery is an application-defined query.
type CustomQuery struct {
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (*LatencyQuery) Type() QueryType    { return QueryLatency }
func (*SchedulingQuery) Type() QueryType { return QueryScheduling }
func (*AcceptCapsQuery) Type() QueryType { return QueryAcceptCaps }
func (*CapsQuery) Type() QueryType       { return QueryCaps }
func (*SeekingQuery) Type() QueryType    { return QuerySeeking }
func (*PositionQuery) Type() QueryType   { return QueryPosition }
func (*DurationQuery) Type() QueryType   { return QueryDuration }
func (*CustomQuery) Type() QueryType     { return QueryCustom }
