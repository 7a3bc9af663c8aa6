package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/honeycombio/queuerouter/config"
)

func TestGetMetricsImplementation(t *testing.T) {
	enabled := &config.MockConfig{GetPrometheusMetricsConfigVal: config.PrometheusMetricsConfig{Enabled: true}}
	assert.IsType(t, &PromMetrics{}, GetMetricsImplementation(enabled))
	assert.IsType(t, &NullMetrics{}, GetMetricsImplementation(&config.MockConfig{}))
}

func TestMockMetricsAccumulates(t *testing.T) {
	m := &MockMetrics{}
	m.Start()
	m.Register(Metadata{Name: "catalog_lookups", Type: Counter})
	m.Register(Metadata{Name: "driver_registry_size", Type: Gauge})

	m.Increment("catalog_lookups")
	m.Count("catalog_lookups", int64(2))
	m.Gauge("driver_registry_size", 3)
	m.Gauge("driver_registry_size", uint8(4))
	m.Histogram("driver_build_duration_ms", float32(1.5))
	m.Histogram("driver_build_duration_ms", 2)
	m.Up("inflight")
	m.Down("inflight")
	m.Down("inflight")
	m.Store("CLAIM_LIMIT", 10)

	assert.Equal(t, Gauge, m.Registrations["driver_registry_size"])
	assert.Equal(t, 3, m.CounterIncrements["catalog_lookups"])
	assert.Equal(t, []float64{1.5, 2}, m.Histograms["driver_build_duration_ms"])

	v, ok := m.Get("driver_registry_size")
	assert.True(t, ok)
	assert.Equal(t, float64(4), v)
	v, _ = m.Get("inflight")
	assert.Equal(t, float64(-1), v)
	v, _ = m.Get("CLAIM_LIMIT")
	assert.Equal(t, float64(10), v)
	_, ok = m.Get("catalog_registrations")
	assert.False(t, ok)

	// Start resets everything
	m.Start()
	assert.Empty(t, m.CounterIncrements)
}

func TestGaugeFromBool(t *testing.T) {
	m := &MockMetrics{}
	m.Start()
	m.Gauge("is_ready", true)
	assert.Equal(t, float64(1), m.GaugeRecords["is_ready"])
	m.Gauge("is_ready", false)
	assert.Equal(t, float64(0), m.GaugeRecords["is_ready"])
	m.Gauge("is_ready", "yes")
	assert.Equal(t, float64(0), m.GaugeRecords["is_ready"])
}

func TestMetricTypeString(t *testing.T) {
	assert.Equal(t, "histogram", Histogram.String())
	assert.Equal(t, "metrictype(9)", MetricType(9).String())
}
