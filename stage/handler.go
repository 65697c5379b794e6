package stage

import (
	"context"

	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/protocol"
)

// Fixed answers to the latency query.
const (
	MinLatency media.ClockTime = 1_000_000   // 1ms
	MaxLatency media.ClockTime = 100_000_000 // 100ms
)

// HandleEvent processes an event delivered to ep and reports whether it was
// handled. Unhandled events are left to the host's default handling. A panic
// while handling is recovered and reported as unhandled.
func (s *Stage) HandleEvent(ctx context.Context, ep endpoint.Endpoint, ev protocol.Event) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			s.contractFailure("HandleEvent", r)
			handled = false
		}
		s.metrics.RecordEvent(s.name, string(ev.Type), handled)
	}()

	s.logger.Debug("Handling event", "endpoint", ep.Name, "event", ev.Type)

	switch ev.Type {
	case protocol.EventFlushStart:
		s.flushing.Store(true)
		s.stop(ctx)
		handled = true
	case protocol.EventFlushStop:
		s.flushing.Store(false)
		if s.playingOrPending() {
			if err := s.start(ctx); err != nil {
				s.logger.Warn("Start after flush failed", "error", err)
			}
		}
		handled = true
	case protocol.EventEOS:
		s.stop(ctx)
		handled = true
	case protocol.EventReconfigure,
		protocol.EventLatency,
		protocol.EventStreamStart,
		protocol.EventCaps,
		protocol.EventTag,
		protocol.EventSegment,
		protocol.EventQoS,
		protocol.EventStreamGroupDone:
		handled = true
	default:
		handled = false
	}

	if handled {
		s.logger.Debug("Handled event", "endpoint", ep.Name, "event", ev.Type)
	} else {
		s.logger.Debug("Didn't handle event", "endpoint", ep.Name, "event", ev.Type)
	}
	return handled
}

// HandleQuery answers a query delivered to ep by filling in q and reports
// whether it was handled. A caps query on an endpoint with no direction is a
// contract violation: it is recovered, posted as a fatal stage error and
// reported as unhandled.
func (s *Stage) HandleQuery(_ context.Context, ep endpoint.Endpoint, q protocol.Query) (handled bool) {
	qType := protocol.QueryType("nil")
	if q != nil {
		qType = q.Type()
	}
	defer func() {
		if r := recover(); r != nil {
			s.contractFailure("HandleQuery", r)
			handled = false
		}
		s.metrics.RecordQuery(s.name, string(qType), handled)
	}()

	s.logger.Debug("Handling query", "endpoint", ep.Name, "query", qType)

	switch tq := q.(type) {
	case *protocol.LatencyQuery:
		tq.Live = false
		tq.Min = MinLatency
		tq.Max = MaxLatency
		handled = true
	case *protocol.SchedulingQuery:
		tq.Flags = protocol.SchedulingSequential
		tq.MinSize = 1
		tq.MaxSize = -1
		tq.Align = 0
		tq.Modes = []protocol.PadMode{protocol.PadModePush}
		handled = true
	case *protocol.AcceptCapsQuery:
		// Every format is accepted; negotiation happens through caps queries.
		tq.Result = true
		handled = true
	case *protocol.CapsQuery:
		tq.Result = s.endpoints.ResolveFormat(ep, tq.Filter)
		handled = true
	case *protocol.SeekingQuery:
		tq.Format = protocol.FormatTime
		tq.Seekable = false
		tq.Start = 0
		tq.End = 0
		handled = true
	default:
		handled = false
	}

	if handled {
		s.logger.Debug("Handled query", "endpoint", ep.Name, "query", qType)
	} else {
		s.logger.Debug("Didn't handle query", "endpoint", ep.Name, "query", qType)
	}
	return handled
}

// contractFailure converts a recovered panic into a fatal stage error.
func (s *Stage) contractFailure(entry string, r any) error {
	err := errors.WrapFatal(errors.FromPanic(r), "Stage", entry, "contract check")
	s.logger.Error("Contract violation", "entry", entry, "error", err)
	s.fail(err)
	return err
}
