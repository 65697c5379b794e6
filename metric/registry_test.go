package metric

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	var nilRegistry *MetricsRegistry
	assert.Nil(t, nilRegistry.CoreMetrics())
}

func TestMetricsRegistry_RegisterAndDuplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "test"})
	require.NoError(t, registry.RegisterCounter("svc", "test_counter", counter))

	err := registry.RegisterCounter("svc", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector under a different key conflicts inside Prometheus.
	err = registry.RegisterCounter("other", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "test"})
	require.NoError(t, registry.RegisterGauge("svc", "test_gauge", gauge))

	assert.True(t, registry.Unregister("svc", "test_gauge"))
	assert.False(t, registry.Unregister("svc", "test_gauge"))
	require.NoError(t, registry.RegisterGauge("svc", "test_gauge", gauge))
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordArrival("zip", "a")
	m.RecordArrival("zip", "a")
	m.RecordDropped("zip", "a", 2)
	m.RecordDropped("zip", "a", 0)
	m.RecordTuple("zip", "ok", time.Millisecond)
	m.RecordEvent("zip", "flush-start", true)
	m.RecordPropertyUpdate("zip", "alpha", nil)
	m.RecordState("zip", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Arrivals.WithLabelValues("zip", "a")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UnitsDropped.WithLabelValues("zip", "a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TuplesDispatched.WithLabelValues("zip", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("zip", "flush-start", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PropertyUpdates.WithLabelValues("zip", "alpha", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StageState.WithLabelValues("zip")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordArrival("s", "e")
		m.RecordDropped("s", "e", 1)
		m.RecordTuple("s", "ok", time.Second)
		m.RecordProcessingFailure("s", "fatal")
		m.RecordDeliveryFailure("s", "e")
		m.RecordEvent("s", "eos", true)
		m.RecordQuery("s", "caps", true)
		m.RecordPropertyUpdate("s", "p", nil)
		m.RecordTransportStatus("nats", true)
		m.RecordTransportReconnect("nats")
		m.RecordState("s", 1)
	})
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordArrival("zip", "a")

	health := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := NewServer("127.0.0.1:0", "", registry, health)
	require.NoError(t, server.Start())
	defer func() { _ = server.Stop() }()

	assert.Error(t, server.Start())

	resp, err := http.Get("http://" + server.Address() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "zipstage_stage_arrivals_total")

	resp, err = http.Get("http://" + server.Address() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
}
