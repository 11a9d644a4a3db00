package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// ServiceName is reported as service.name on exported metrics.
	ServiceName = "scansync"

	// DefaultMetricsInterval is the default interval for metric collection
	DefaultMetricsInterval = 60 * time.Second
)

// MeterProviderOption is a function that configures the meter provider setup
type MeterProviderOption func(*meterProviderConfig)

type meterProviderConfig struct {
	serviceVersion string
	endpoint       string
	insecure       bool
	interval       time.Duration
}

// WithMeterEndpoint sets the OTLP/HTTP collector endpoint (host:port).
func WithMeterEndpoint(endpoint string) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.endpoint = endpoint
	}
}

// WithMeterInsecure exports over plain HTTP.
func WithMeterInsecure(insecure bool) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.insecure = insecure
	}
}

// WithMeterInterval sets how often metrics are exported.
func WithMeterInterval(d time.Duration) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// WithMeterServiceVersion sets the service version for the meter provider
func WithMeterServiceVersion(version string) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.serviceVersion = version
	}
}

// NewMeterProvider creates an SDK MeterProvider exporting to an OTLP/HTTP
// collector and installs it as the global provider.
// Returns nil when no endpoint is configured; the global provider is then
// left untouched. The caller must Shutdown a non-nil provider.
func NewMeterProvider(ctx context.Context, opts ...MeterProviderOption) (*sdkmetric.MeterProvider, error) {
	cfg := &meterProviderConfig{
		serviceVersion: "unknown",
		interval:       DefaultMetricsInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.endpoint == "" {
		slog.Debug("metrics export disabled")
		return nil, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.endpoint)}
	if cfg.insecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.interval)),
		),
	)
	otel.SetMeterProvider(mp)

	slog.Info("metrics export enabled",
		"endpoint", cfg.endpoint,
		"insecure", cfg.insecure,
		"interval", cfg.interval,
	)
	return mp, nil
}
