package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

var testAccount = marketplace.MustAccountID("9f1c3e2a-7b4d-4e8f-a6c5-2d1b0e9f8a77")

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *SyncMetrics) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return reader, m
}

// sumOf adds the data points of counter name whose attributes include want
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, want) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(context.Background()))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestNewMeterProvider_CustomReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{
		Enabled:     true,
		ServiceName: "manufacture-test",
		Reader:      reader,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	assert.True(t, mp.IsEnabled())

	m, err := NewSyncMetrics(mp.Meter("test"))
	require.NoError(t, err)
	m.RateLimitWait(context.Background(), testAccount, "stocks")

	assert.Equal(t, int64(1), sumOf(t, reader, "wb_rate_limit_waits_total", AttrStream.String("stocks")))
	assert.NoError(t, mp.ForceFlush(context.Background()))
}

func TestNewSyncMetrics_NoopMeter(t *testing.T) {
	m, err := NewSyncMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.PageFetched(context.Background(), testAccount, "orders", 10)
		m.JobFinished(context.Background(), "orders", "SUCCESS", time.Second)
	})
}

func TestSyncMetrics_Feed(t *testing.T) {
	reader, m := newTestMeter(t)
	ctx := context.Background()

	m.PageFetched(ctx, testAccount, "orders", 100)
	m.PageFetched(ctx, testAccount, "orders", 20)
	m.PageFetched(ctx, testAccount, "stocks", 7)
	m.RateLimitWait(ctx, testAccount, "orders")
	m.RowsProcessed(ctx, testAccount, "orders", "ingested", 110)
	m.RowsProcessed(ctx, testAccount, "orders", "duplicate", 9)
	m.RowsProcessed(ctx, testAccount, "orders", "unresolved", 1)

	orders := AttrStream.String("orders")
	assert.Equal(t, int64(2), sumOf(t, reader, "wb_pages_fetched_total", orders))
	assert.Equal(t, int64(3), sumOf(t, reader, "wb_pages_fetched_total", AttrAccount.String(testAccount.String())))
	assert.Equal(t, int64(120), sumOf(t, reader, "wb_records_fetched_total", orders))
	assert.Equal(t, int64(1), sumOf(t, reader, "wb_rate_limit_waits_total"))
	assert.Equal(t, int64(9), sumOf(t, reader, "wb_records_processed_total", AttrOutcome.String("duplicate")))
	assert.Equal(t, int64(120), sumOf(t, reader, "wb_records_processed_total", orders))
}

func TestSyncMetrics_PackingAndJobs(t *testing.T) {
	reader, m := newTestMeter(t)
	ctx := context.Background()

	m.OrdersPacked(ctx, testAccount, 2, 5)
	m.JobFinished(ctx, "stocks", "SUCCESS", 3*time.Second)
	m.JobFinished(ctx, "stocks", "FAILED", time.Second)

	assert.Equal(t, int64(2), sumOf(t, reader, "manufacture_packages_created_total"))
	assert.Equal(t, int64(5), sumOf(t, reader, "manufacture_orders_packed_total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "sync_jobs_finished_total", AttrStatus.String("FAILED")))
	assert.Equal(t, int64(2), sumOf(t, reader, "sync_jobs_finished_total", AttrJobKind.String("stocks")))
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracingConfig{Enabled: false}, nil)
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_CustomExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
	})

	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(), TracingConfig{
		Enabled:       true,
		SamplingRatio: 1,
		ServiceName:   "manufacture-test",
		Exporter:      exporter,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	_, span := tp.Tracer("test").Start(context.Background(), "job orders")
	span.End()
	require.NoError(t, tp.provider.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "job orders", spans[0].Name)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
