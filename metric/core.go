package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zipstage"

// Metrics holds the engine-level collectors shared by every stage. All record
// methods are safe on a nil receiver.
type Metrics struct {
	StageState         *prometheus.GaugeVec
	Arrivals           *prometheus.CounterVec
	UnitsDropped       *prometheus.CounterVec
	TuplesDispatched   *prometheus.CounterVec
	ProcessDuration    *prometheus.HistogramVec
	ProcessingFailures *prometheus.CounterVec
	DeliveryFailures   *prometheus.CounterVec
	EventsTotal        *prometheus.CounterVec
	QueriesTotal       *prometheus.CounterVec
	PropertyUpdates    *prometheus.CounterVec

	TransportConnected  *prometheus.GaugeVec
	TransportReconnects *prometheus.CounterVec
}

// NewMetrics creates the engine collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		StageState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "state",
			Help:      "Stage lifecycle state (0=null, 1=ready, 2=paused, 3=playing)",
		}, []string{"stage"}),

		Arrivals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "arrivals_total",
			Help:      "Data units received per input endpoint",
		}, []string{"stage", "endpoint"}),

		UnitsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "zipper",
			Name:      "dropped_total",
			Help:      "Data units discarded by the latest-wins alignment policy or a flush",
		}, []string{"stage", "endpoint"}),

		TuplesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "tuples_total",
			Help:      "Tuples handed to the processing unit",
		}, []string{"stage", "status"}),

		ProcessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "process_duration_seconds",
			Help:      "Duration of processing unit calls",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"stage"}),

		ProcessingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "processing_failures_total",
			Help:      "Processing unit failures by policy outcome",
		}, []string{"stage", "policy"}),

		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "delivery_failures_total",
			Help:      "Output units the host refused",
		}, []string{"stage", "endpoint"}),

		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "events_total",
			Help:      "Events delivered to stages",
		}, []string{"stage", "type", "handled"}),

		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "queries_total",
			Help:      "Queries delivered to stages",
		}, []string{"stage", "type", "handled"}),

		PropertyUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "property_updates_total",
			Help:      "Property updates applied from the config bucket",
		}, []string{"stage", "property", "status"}),

		TransportConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connected",
			Help:      "Transport connection status (0=disconnected, 1=connected)",
		}, []string{"transport"}),

		TransportReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "reconnects_total",
			Help:      "Transport reconnections",
		}, []string{"transport"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.StageState, m.Arrivals, m.UnitsDropped, m.TuplesDispatched,
		m.ProcessDuration, m.ProcessingFailures, m.DeliveryFailures,
		m.EventsTotal, m.QueriesTotal, m.PropertyUpdates,
		m.TransportConnected, m.TransportReconnects,
	}
}

// RecordState sets the stage lifecycle gauge.
func (m *Metrics) RecordState(stage string, state int) {
	if m == nil {
		return
	}
	m.StageState.WithLabelValues(stage).Set(float64(state))
}

// RecordArrival counts one data unit arriving at an input endpoint.
func (m *Metrics) RecordArrival(stage, endpoint string) {
	if m == nil {
		return
	}
	m.Arrivals.WithLabelValues(stage, endpoint).Inc()
}

// RecordDropped counts units discarded from an input endpoint's slot.
func (m *Metrics) RecordDropped(stage, endpoint string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnitsDropped.WithLabelValues(stage, endpoint).Add(float64(n))
}

// RecordTuple counts a dispatched tuple and observes the processing time.
func (m *Metrics) RecordTuple(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TuplesDispatched.WithLabelValues(stage, status).Inc()
	m.ProcessDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordProcessingFailure counts a failed processing call.
func (m *Metrics) RecordProcessingFailure(stage, policy string) {
	if m == nil {
		return
	}
	m.ProcessingFailures.WithLabelValues(stage, policy).Inc()
}

// RecordDeliveryFailure counts an output unit the host refused.
func (m *Metrics) RecordDeliveryFailure(stage, endpoint string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(stage, endpoint).Inc()
}

// RecordEvent counts a delivered event.
func (m *Metrics) RecordEvent(stage, eventType string, handled bool) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(stage, eventType, boolLabel(handled)).Inc()
}

// RecordQuery counts a delivered query.
func (m *Metrics) RecordQuery(stage, queryType string, handled bool) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(stage, queryType, boolLabel(handled)).Inc()
}

// RecordPropertyUpdate counts a property change applied from configuration.
func (m *Metrics) RecordPropertyUpdate(stage, property string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PropertyUpdates.WithLabelValues(stage, property, status).Inc()
}

// RecordTransportStatus sets the connection gauge for a transport.
func (m *Metrics) RecordTransportStatus(transport string, connected bool) {
	if m == nil {
		return
	}
	m.TransportConnected.WithLabelValues(transport).Set(float64(btoi(connected)))
}

// RecordTransportReconnect counts a reconnection.
func (m *Metrics) RecordTransportReconnect(transport string) {
	if m == nil {
		return
	}
	m.TransportReconnects.WithLabelValues(transport).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
