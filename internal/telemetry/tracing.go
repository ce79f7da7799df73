package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"djeworker/internal/config"
)

// Tracing owns the tracer provider of the process.
type Tracing struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NoopTracing returns tracing that records nothing.
func NoopTracing() *Tracing {
	return &Tracing{tracer: noop.NewTracerProvider().Tracer("djeworker")}
}

// SetupTracing exports spans over OTLP/HTTP when an endpoint is configured,
// and returns no-op tracing otherwise.
func SetupTracing(ctx context.Context, cfg *config.TelemetryConfig) (*Tracing, error) {
	if cfg.OTLPEndpoint == "" {
		return NoopTracing(), nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "dje-worker"
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", name),
			attribute.String("service.namespace", "djeworker"),
		)),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{tp: tp, tracer: tp.Tracer(name)}, nil
}

// Tracer returns the tracer for pipeline spans.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}

	if err := t.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace shutdown: %w", err)
	}

	return nil
}
