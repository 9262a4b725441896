package observe

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Requests.Add(ctx, 3)
	m.Crossings.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", "down"), attribute.String("class", "car")))
	m.Crossings.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", "down"), attribute.String("class", "car")))

	rm := collect(t, reader)

	requests := findMetric(rm, "linecount.requests")
	require.NotNil(t, requests)
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	crossings := findMetric(rm, "linecount.crossings")
	require.NotNil(t, crossings)
	sum, ok = crossings.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestRoundTripHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RoundTrip.Record(ctx, 0.04)
	m.RoundTrip.Record(ctx, 0.06)

	rm := collect(t, reader)
	rt := findMetric(rm, "linecount.roundtrip.duration")
	require.NotNil(t, rt)
	hist, ok := rt.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestThroughputGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.Throughput.Record(context.Background(), 12)

	rm := collect(t, reader)
	tp := findMetric(rm, "linecount.throughput")
	require.NotNil(t, tp)
	gauge, ok := tp.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(12), gauge.DataPoints[0].Value)
}

func TestNoop(t *testing.T) {
	m := Noop()
	require.NotNil(t, m)
	m.Requests.Add(context.Background(), 1)
}

func TestProviderHandler(t *testing.T) {
	p, err := InitProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.MeterProvider)
	require.NoError(t, err)
	m.Requests.Add(context.Background(), 1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "linecount"), body)
	assert.True(t, strings.Contains(body, "requests"), body)
}
