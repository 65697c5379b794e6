package health

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/stage"
)

// Pre-compiled regexes for error message sanitization
var (
	urlRegex         = regexp.MustCompile(`(?i)(https?|nats|tls|mqtts?|tcp|ssl|wss?)://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Level is a health level.
type Level string

const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelUnhealthy Level = "unhealthy"
)

// Status is the health of one stage, the transport, or the whole system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      Level     `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics are the stage counters attached to a status.
type Metrics struct {
	State              string        `json:"state"`
	Uptime             time.Duration `json:"uptime"`
	Arrivals           int64         `json:"arrivals"`
	Tuples             int64         `json:"tuples"`
	UnitsDropped       int64         `json:"units_dropped"`
	Pending            int           `json:"pending"`
	ProcessingFailures int64         `json:"processing_failures"`
	DeliveryFailures   int64         `json:"delivery_failures"`
	LastActivity       time.Time     `json:"last_activity,omitempty"`
}

func newStatus(component string, level Level, message string) Status {
	return Status{
		Component: component,
		Healthy:   level == LevelHealthy,
		Status:    level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, LevelHealthy, message)
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, LevelDegraded, message)
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, LevelUnhealthy, message)
}

func (s Status) IsHealthy() bool   { return s.Status == LevelHealthy }
func (s Status) IsDegraded() bool  { return s.Status == LevelDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == LevelUnhealthy }

// FromStage derives a status from a stage health report.
//
// A failed stage is unhealthy and carries its sanitized last error. A
// flushing stage, or one that has counted processing or delivery failures,
// is degraded. Units discarded by the freshness policy are normal operation
// and do not degrade the status.
func FromStage(name string, h stage.HealthReport) Status {
	var st Status
	switch {
	case !h.Healthy:
		msg := "Stage failed"
		if h.LastError != "" {
			msg = SanitizeErrorMessage(h.LastError)
		}
		st = NewUnhealthy(name, msg)
	case h.Flushing:
		st = NewDegraded(name, "Stage is flushing")
	case h.Stats.ProcessingFailures > 0 || h.Stats.DeliveryFailures > 0:
		st = NewDegraded(name, fmt.Sprintf("%d processing and %d delivery failures",
			h.Stats.ProcessingFailures, h.Stats.DeliveryFailures))
	case h.State != protocol.StatePlaying:
		st = NewHealthy(name, "Stage "+h.State.String())
	default:
		st = NewHealthy(name, "Stage playing")
	}

	st.Metrics = &Metrics{
		State:              h.State.String(),
		Uptime:             h.Uptime,
		Arrivals:           h.Stats.Arrivals,
		Tuples:             h.Stats.Tuples,
		UnitsDropped:       h.Stats.UnitsDropped,
		Pending:            h.Stats.Pending,
		ProcessingFailures: h.Stats.ProcessingFailures,
		DeliveryFailures:   h.Stats.DeliveryFailures,
		LastActivity:       h.Stats.LastActivity,
	}
	return st
}

// Aggregate combines statuses. Any unhealthy member makes the result
// unhealthy; otherwise any degraded member makes it degraded.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "Nothing to report")
	}

	level := LevelHealthy
	for _, sub := range subs {
		if sub.IsUnhealthy() {
			level = LevelUnhealthy
			break
		}
		if sub.IsDegraded() {
			level = LevelDegraded
		}
	}

	var st Status
	switch level {
	case LevelUnhealthy:
		st = NewUnhealthy(component, "One or more components are unhealthy")
	case LevelDegraded:
		st = NewDegraded(component, "One or more components are degraded")
	default:
		st = NewHealthy(component, "All components are healthy")
	}
	st.SubStatuses = make([]Status, len(subs))
	copy(st.SubStatuses, subs)
	return st
}

// SanitizeErrorMessage strips URLs, file paths, addresses, ports and
// credentials from an error message.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// URLs go first since they contain paths.
	out := urlRegex.ReplaceAllString(msg, "[URL]")
	out = unixPathRegex.ReplaceAllString(out, "[PATH]")
	out = windowsPathRegex.ReplaceAllString(out, "[PATH]")
	out = ipAddrRegex.ReplaceAllString(out, "[IP]")
	out = portRegex.ReplaceAllString(out, "[PORT]")

	lower := strings.ToLower(out)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			out = credentialRegex.ReplaceAllString(out, "[REDACTED]")
			break
		}
	}
	return out
}
