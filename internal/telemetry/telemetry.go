// Package telemetry initializes OpenTelemetry metric and log export.
//
// Metrics are always collected into a Prometheus registry that the daemon
// serves on /metrics. Push export over OTLP HTTP is opt-in by setting:
//
//	TASKMUX_OTEL_METRICS_URL  (OTLP metrics endpoint)
//	TASKMUX_OTEL_LOGS_URL     (OTLP logs endpoint)
//
// Telemetry is best-effort: initialization errors are returned but callers
// should log and continue. Init is idempotent.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// EnvMetricsURL enables OTLP metric push when set.
	EnvMetricsURL = "TASKMUX_OTEL_METRICS_URL"

	// EnvLogsURL enables OTLP log export when set.
	EnvLogsURL = "TASKMUX_OTEL_LOGS_URL"

	// ExportInterval is how often metrics are pushed over OTLP.
	ExportInterval = 30 * time.Second
)

var (
	initMu         sync.Mutex
	initDone       bool
	globalProvider *Provider
)

// Provider wraps the OTel SDK providers and their shutdown functions.
type Provider struct {
	registry     *prometheus.Registry
	shutdowns    []func(context.Context) error
	shutdownMu   sync.Mutex
	shutdownDone bool
}

// Handler serves the Prometheus registry backing this provider.
func (p *Provider) Handler() http.Handler {
	if p == nil || p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes pending data and stops the providers. Safe to call twice.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()
	if p.shutdownDone {
		return nil
	}
	p.shutdownDone = true

	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}
	return nil
}

// Init sets up the global meter provider with a Prometheus reader and, when
// configured, an OTLP periodic reader and OTLP log exporter.
// The first caller wins; later calls return the same provider.
func Init(ctx context.Context, serviceName, serviceVersion string) (*Provider, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if initDone {
		return globalProvider, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTel resource: %w", err)
	}

	p := &Provider{registry: prometheus.NewRegistry()}

	promExp, err := promexporter.New(promexporter.WithRegisterer(p.registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	}

	if metricsURL := os.Getenv(EnvMetricsURL); metricsURL != "" {
		metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(metricsURL))
		if err != nil {
			return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(ExportInterval)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	p.shutdowns = append(p.shutdowns, mp.Shutdown)
	initInstruments()

	if logsURL := os.Getenv(EnvLogsURL); logsURL != "" {
		logExp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(logsURL))
		if err != nil {
			return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
		}
		lp := sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		)
		global.SetLoggerProvider(lp)
		p.shutdowns = append(p.shutdowns, lp.Shutdown)
	}

	initDone = true
	globalProvider = p
	return p, nil
}
