// Package protocol defines what a host delivers to a stage besides data:
// lifecycle states and transitions, events, queries, and flow results.
package protocol

// FlowReturn is the result of delivering a data unit.
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowNotLinked
	FlowFlushing
	FlowEOS
	FlowNotNegotiated
	FlowError
)

func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowNotNegotiated:
		return "not-negotiated"
	case FlowError:
		return "error"
	default:
		return "unknown"
	}
}

// IsFatal reports whether the flow result should stop upstream.
func (f FlowReturn) IsFatal() bool {
	return f == FlowError || f == FlowNotNegotiated
}
