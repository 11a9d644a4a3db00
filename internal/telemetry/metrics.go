// Package telemetry provides OpenTelemetry instruments for the sync core.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/roach88/scansync/sync"

// SyncMetrics holds the instruments recorded by intake and the coordinator.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	attempts      metric.Int64Counter
	queueDepth    metric.Int64Gauge
	drainDuration metric.Float64Histogram
	drains        metric.Int64Counter
}

// NewSyncMetrics creates SyncMetrics from provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	attempts, err := meter.Int64Counter(
		"scansync_submission_attempts_total",
		metric.WithDescription("Submission attempts by source and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge(
		"scansync_pending_records",
		metric.WithDescription("Records waiting in the pending queue"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	drainDuration, err := meter.Float64Histogram(
		"scansync_drain_duration_seconds",
		metric.WithDescription("Duration of drain passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, err
	}

	drains, err := meter.Int64Counter(
		"scansync_drains_total",
		metric.WithDescription("Drain triggers by trigger and result"),
		metric.WithUnit("{drain}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		attempts:      attempts,
		queueDepth:    queueDepth,
		drainDuration: drainDuration,
		drains:        drains,
	}, nil
}

// RecordAttempt counts one submission attempt. source is "intake" or "drain".
func (m *SyncMetrics) RecordAttempt(ctx context.Context, source, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

// RecordQueueDepth records the current pending queue length.
func (m *SyncMetrics) RecordQueueDepth(ctx context.Context, depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Record(ctx, int64(depth))
}

// RecordDrain records a finished drain pass, or a dropped trigger when
// result is "skipped".
func (m *SyncMetrics) RecordDrain(ctx context.Context, trigger, result string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("result", result),
	)
	if m.drains != nil {
		m.drains.Add(ctx, 1, attrs)
	}
	if m.drainDuration != nil && result != "skipped" {
		m.drainDuration.Record(ctx, duration.Seconds(), attrs)
	}
}
