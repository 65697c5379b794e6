package health

import (
	"sync"
	"time"
)

// Transport tracks broker connectivity pushed by a client's connection
// callback. SetConnected has the func(bool) shape both transports accept.
type Transport struct {
	name   string
	detail func() string

	mu        sync.RWMutex
	connected bool
	known     bool
	changed   time.Time
}

// NewTransport creates a tracker. detail, when set, is appended to the
// status message.
func NewTransport(name string, detail func() string) *Transport {
	return &Transport{name: name, detail: detail}
}

// SetConnected records a connectivity change.
func (t *Transport) SetConnected(up bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.known && t.connected == up {
		return
	}
	t.connected, t.known = up, true
	t.changed = time.Now()
}

// Status is healthy while connected. A transport that has not reported yet
// is degraded, a lost connection unhealthy.
func (t *Transport) Status() Status {
	t.mu.RLock()
	connected, known, changed := t.connected, t.known, t.changed
	t.mu.RUnlock()

	component := "transport/" + t.name
	var st Status
	switch {
	case !known:
		st = NewDegraded(component, "Transport not connected yet")
	case connected:
		st = NewHealthy(component, "Transport connected")
	default:
		st = NewUnhealthy(component, "Transport disconnected since "+changed.Format(time.RFC3339))
	}
	if t.detail != nil {
		if d := t.detail(); d != "" {
			st.Message += " (" + SanitizeErrorMessage(d) + ")"
		}
	}
	return st
}
