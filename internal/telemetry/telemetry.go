// Package telemetry sets up OpenTelemetry tracing and metrics for the
// generation backends. Traces and metrics are exported to rotated files.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"mediachat/internal/logger"
)

const instrumentationName = "mediachat"

// Options configures Setup.
type Options struct {
	Enabled        bool
	Dir            string
	ServiceVersion string
	MetricInterval time.Duration
}

// Provider bundles the tracer and meter used by instrumented backends.
type Provider struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	shutdown func(ctx context.Context) error
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	return &Provider{
		Tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		Meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
		shutdown: func(context.Context) error { return nil },
	}
}

// NewProvider wraps existing tracer and meter providers.
func NewProvider(tp trace.TracerProvider, mp metric.MeterProvider) *Provider {
	return &Provider{
		Tracer:   tp.Tracer(instrumentationName),
		Meter:    mp.Meter(instrumentationName),
		shutdown: func(context.Context) error { return nil },
	}
}

// Setup creates file-exporting tracer and meter providers. It returns a
// no-op provider when telemetry is disabled.
func Setup(ctx context.Context, opts Options) (*Provider, error) {
	if !opts.Enabled {
		return Noop(), nil
	}

	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if opts.MetricInterval <= 0 {
		opts.MetricInterval = 10 * time.Second
	}
	if opts.ServiceVersion == "" {
		opts.ServiceVersion = "dev"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(instrumentationName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	traceFile := rotatingFile(filepath.Join(opts.Dir, "mediachat_traces.log"))
	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricsFile := rotatingFile(filepath.Join(opts.Dir, "mediachat_metrics.log"))
	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(opts.MetricInterval),
			),
		),
		sdkmetric.WithResource(res),
	)

	logger.ServiceOperation("telemetry", "setup", "dir", opts.Dir)

	return &Provider{
		Tracer: tp.Tracer(instrumentationName),
		Meter:  mp.Meter(instrumentationName),
		shutdown: func(ctx context.Context) error {
			return errors.Join(
				tp.Shutdown(ctx),
				mp.Shutdown(ctx),
				traceFile.Close(),
				metricsFile.Close(),
			)
		},
	}, nil
}

// Shutdown flushes and closes exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.shutdown(ctx); err != nil {
		logger.Error("Failed to shut down telemetry", "error", err)
		return err
	}
	return nil
}

func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}
