package stage

import (
	"time"

	"github.com/c360/zipstage/protocol"
)

// Stats is a point-in-time snapshot of stage counters.
type Stats struct {
	Arrivals           int64     `json:"arrivals"`
	Tuples             int64     `json:"tuples"`
	UnitsDropped       int64     `json:"units_dropped"`
	Pending            int       `json:"pending"`
	ProcessingFailures int64     `json:"processing_failures"`
	DeliveryFailures   int64     `json:"delivery_failures"`
	LastActivity       time.Time `json:"last_activity,omitempty"`
}

// Stats returns current counters.
func (s *Stage) Stats() Stats {
	s.zipMu.Lock()
	zs := s.zip.Stats()
	pending := 0
	for i := 0; i < s.zip.Size(); i++ {
		pending += s.zip.Pending(i)
	}
	s.zipMu.Unlock()

	st := Stats{
		Arrivals:           s.arrivals.Load(),
		Tuples:             s.tuples.Load(),
		UnitsDropped:       zs.Dropped,
		Pending:            pending,
		ProcessingFailures: s.procFailures.Load(),
		DeliveryFailures:   s.delivFails.Load(),
	}
	if ns := s.lastActivity.Load(); ns != 0 {
		st.LastActivity = time.Unix(0, ns)
	}
	return st
}

// HealthReport summarizes whether the stage can do work.
type HealthReport struct {
	Healthy   bool           `json:"healthy"`
	State     protocol.State `json:"state"`
	Flushing  bool           `json:"flushing"`
	LastError string         `json:"last_error,omitempty"`
	Uptime    time.Duration  `json:"uptime"`
	Stats     Stats          `json:"stats"`
}

// Health reports stage health. A failed stage is unhealthy until it is taken
// back through Null.
func (s *Stage) Health() HealthReport {
	h := HealthReport{
		Healthy:  !s.failed.Load(),
		State:    s.State(),
		Flushing: s.flushing.Load(),
		Uptime:   time.Since(s.created),
		Stats:    s.Stats(),
	}
	if v, ok := s.lastErr.Load().(string); ok {
		h.LastError = v
	}
	return h
}
