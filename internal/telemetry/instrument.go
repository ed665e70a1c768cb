package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mediachat/internal/conversation"
	"mediachat/internal/generation"
	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// Metric names.
const (
	MetricGenerations = "mediachat.generations"
	MetricDuration    = "mediachat.generation.duration"
)

type instrumentedBackend struct {
	kind      mediatypes.GenerationType
	next      generation.Backend
	tracer    trace.Tracer
	counter   metric.Int64Counter
	histogram metric.Float64Histogram
}

// Instrument wraps backend with a span, a counter and a duration histogram.
func (p *Provider) Instrument(kind mediatypes.GenerationType, backend generation.Backend) generation.Backend {
	counter, err := p.Meter.Int64Counter(MetricGenerations,
		metric.WithDescription("Completed generation requests"))
	if err != nil {
		logger.Warn("Failed to create counter", "metric", MetricGenerations, "error", err)
	}
	histogram, err := p.Meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Generation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		logger.Warn("Failed to create histogram", "metric", MetricDuration, "error", err)
	}

	return &instrumentedBackend{
		kind:      kind,
		next:      backend,
		tracer:    p.Tracer,
		counter:   counter,
		histogram: histogram,
	}
}

// InstrumentAll wraps every backend of backends.
func (p *Provider) InstrumentAll(backends conversation.Backends) conversation.Backends {
	wrapped := make(conversation.Backends, len(backends))
	for kind, backend := range backends {
		wrapped[kind] = p.Instrument(kind, backend)
	}
	return wrapped
}

// Generate implements generation.Backend.
func (b *instrumentedBackend) Generate(ctx context.Context, req generation.Request) ([]mediatypes.MessagePart, error) {
	ctx, span := b.tracer.Start(ctx, "generate_"+string(b.kind),
		trace.WithAttributes(
			attribute.String("generation.type", string(b.kind)),
			attribute.Int("generation.prompt_length", len(req.Prompt)),
			attribute.Int("generation.history_length", len(req.History)),
		))
	defer span.End()

	progress := req.OnProgress
	req.OnProgress = func(status string) {
		span.AddEvent("progress", trace.WithAttributes(attribute.String("status", status)))
		if progress != nil {
			progress(status)
		}
	}

	start := time.Now()
	parts, err := b.next.Generate(ctx, req)
	duration := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = string(generation.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("generation.parts", len(parts)))
		span.SetStatus(codes.Ok, "")
	}

	attrs := metric.WithAttributes(
		attribute.String("type", string(b.kind)),
		attribute.String("outcome", outcome),
	)
	if b.counter != nil {
		b.counter.Add(ctx, 1, attrs)
	}
	if b.histogram != nil {
		b.histogram.Record(ctx, float64(duration.Milliseconds()), attrs)
	}

	return parts, err
}
