package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewSyncMetrics_NilProvider(t *testing.T) {
	m, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// nil metrics are no-ops
	ctx := context.Background()
	m.RecordAttempt(ctx, "intake", "accepted")
	m.RecordQueueDepth(ctx, 3)
	m.RecordDrain(ctx, "manual", "drained", time.Second)
}

func TestSyncMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewSyncMetrics(provider)
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.RecordAttempt(ctx, "drain", "accepted")
	m.RecordAttempt(ctx, "drain", "accepted")
	m.RecordQueueDepth(ctx, 4)
	m.RecordDrain(ctx, "connectivity", "drained", 250*time.Millisecond)
	m.RecordDrain(ctx, "manual", "skipped", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		byName[md.Name] = md
	}

	attempts, ok := byName["scansync_submission_attempts_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, attempts.DataPoints, 1)
	assert.Equal(t, int64(2), attempts.DataPoints[0].Value)

	depth, ok := byName["scansync_pending_records"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, depth.DataPoints, 1)
	assert.Equal(t, int64(4), depth.DataPoints[0].Value)

	drains, ok := byName["scansync_drains_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, drains.DataPoints, 2)

	hist, ok := byName["scansync_drain_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}
