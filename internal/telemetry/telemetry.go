// Package telemetry provides OpenTelemetry instrumentation for the coordinator.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is used when no service name is configured
const DefaultServiceName = "datashare-coordinator"

// Telemetry encapsulates the OpenTelemetry meter provider and the Prometheus
// registry its metrics are exported through.
type Telemetry struct {
	meterProvider metric.MeterProvider
	registry      *prometheus.Registry
	shutdown      func(context.Context) error
}

// Option is a function that configures the telemetry setup
type Option func(*telemetryConfig)

type telemetryConfig struct {
	enabled        bool
	serviceName    string
	serviceVersion string
}

// WithEnabled toggles metric collection
func WithEnabled(enabled bool) Option {
	return func(tc *telemetryConfig) {
		tc.enabled = enabled
	}
}

// WithServiceName sets the service name attached to all exported metrics
func WithServiceName(name string) Option {
	return func(tc *telemetryConfig) {
		tc.serviceName = name
	}
}

// WithServiceVersion sets the service version attached to all exported metrics
func WithServiceVersion(version string) Option {
	return func(tc *telemetryConfig) {
		tc.serviceVersion = version
	}
}

// New creates and initializes a new Telemetry instance. When disabled it
// returns a Telemetry backed by no-op providers, so callers never need to
// branch on the configuration themselves. The caller is responsible for
// calling Shutdown when the application exits.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	cfg := &telemetryConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.enabled {
		slog.Debug("Telemetry disabled, using no-op meter provider")
		return &Telemetry{
			meterProvider: noop.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
		}, nil
	}

	slog.Info("Initializing telemetry",
		"service_name", cfg.serviceName,
		"service_version", cfg.serviceVersion,
	)

	// resource.New avoids schema URL conflicts with resource.Default()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.serviceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	return &Telemetry{
		meterProvider: mp,
		registry:      registry,
		shutdown:      mp.Shutdown,
	}, nil
}

// MeterProvider returns the meter provider for creating instruments
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint,
// or nil when telemetry is disabled.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down meter provider: %w", err)
	}
	return nil
}
