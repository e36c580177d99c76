package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/flow/internal/logging"
)

// Config holds telemetry configuration for one engine run. Unlike a
// long-lived server, a run has no remote collector to talk to by
// default: spans are either dropped (Enabled=false) or summarised to
// the operational logger at debug level, which is enough to see per-job span timing without
// requiring an OTLP collector to be reachable from the CLI.
type Config struct {
	Enabled     bool
	ServiceName string
	SampleRate  float64
}

// Provider wraps the OpenTelemetry TracerProvider.
type Provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var globalProvider = &Provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}

// Init initialises the global telemetry provider for this run.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		globalProvider = &Provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}
		return nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "flowr"
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 && cfg.SampleRate >= 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&logExporter{}),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalProvider = &Provider{tp: tp, tracer: tp.Tracer(name), enabled: true}
	return nil
}

// Shutdown flushes and stops the telemetry provider.
func Shutdown(ctx context.Context) error {
	if globalProvider.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return globalProvider.tp.Shutdown(ctx)
}

// Tracer returns the run's tracer.
func Tracer() trace.Tracer {
	return globalProvider.tracer
}

// Enabled reports whether tracing is active.
func Enabled() bool {
	return globalProvider.enabled
}

// logExporter writes finished spans through the operational logger
// (logging.OpWithTrace) rather than
// a network collector -- a run's spans are a debugging aid for a single
// engine invocation, not a fleet-wide observability pipeline.
type logExporter struct{}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		sc := s.SpanContext()
		logger := logging.OpWithTrace(sc.TraceID().String(), sc.SpanID().String())
		logger.Debug("span", "name", s.Name(), "duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(), "status", s.Status().Code.String())
	}
	return nil
}

func (e *logExporter) Shutdown(ctx context.Context) error {
	return nil
}
