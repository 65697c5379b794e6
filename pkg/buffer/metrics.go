package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/zipstage/metric"
)

type bufferMetrics struct {
	writes prometheus.Counter
	drops  prometheus.Counter
	size   prometheus.Gauge
	fill   prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"buffer": prefix}
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zipstage", Subsystem: "buffer", Name: "writes_total",
			ConstLabels: labels, Help: "Items written to the buffer",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zipstage", Subsystem: "buffer", Name: "drops_total",
			ConstLabels: labels, Help: "Items discarded by overflow, latest-wins reads, or clears",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zipstage", Subsystem: "buffer", Name: "size",
			ConstLabels: labels, Help: "Items currently held",
		}),
		fill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zipstage", Subsystem: "buffer", Name: "utilization",
			ConstLabels: labels, Help: "Fill ratio (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_utilization", m.fill); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	if m == nil {
		return
	}
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordDrop(n int) {
	if m == nil {
		return
	}
	m.drops.Add(float64(n))
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	if m == nil {
		return
	}
	m.size.Set(float64(size))
	m.fill.Set(float64(size) / float64(capacity))
}
