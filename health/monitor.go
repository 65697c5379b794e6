package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/c360/zipstage/stage"
)

// Source reports the health of one stage. *stage.Stage implements it.
type Source interface {
	Health() stage.HealthReport
}

// Monitor tracks the health of a set of stages and of the transport they
// share. It is safe for concurrent use and serves the aggregate as JSON.
type Monitor struct {
	system string

	mu        sync.RWMutex
	sources   map[string]Source
	transport *Transport
}

// NewMonitor creates a monitor reporting under the system name.
func NewMonitor(system string) *Monitor {
	return &Monitor{system: system, sources: make(map[string]Source)}
}

// Watch starts tracking src under name, replacing any previous source.
func (m *Monitor) Watch(name string, src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[name] = src
}

// SetTransport reports t alongside the stages. Nil stops reporting it.
func (m *Monitor) SetTransport(t *Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transport = t
}

// Remove stops tracking name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, name)
}

// Get returns the current status of name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	src, ok := m.sources[name]
	m.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return FromStage(name, src.Health()), true
}

// Names returns the tracked names in sorted order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aggregate returns the combined status, with one sub-status per stage in
// name order followed by the transport, if set.
func (m *Monitor) Aggregate() Status {
	subs := make([]Status, 0)
	for _, name := range m.Names() {
		if st, ok := m.Get(name); ok {
			subs = append(subs, st)
		}
	}
	m.mu.RLock()
	t := m.transport
	m.mu.RUnlock()
	if t != nil {
		subs = append(subs, t.Status())
	}
	return Aggregate(m.system, subs)
}

// ServeHTTP writes the aggregate status. Unhealthy systems answer 503.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	st := m.Aggregate()
	code := http.StatusOK
	if st.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}
