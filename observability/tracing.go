// OpenTelemetry tracing setup for the pipeline.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Version is stamped at build time via
// -ldflags "-X .../observability.Version=v1.2.3" and reported on every
// trace resource.
var Version = "dev"

// TracerConfig selects the collector and sampling for trace export.
type TracerConfig struct {
	// ServiceName identifies this process in the trace backend.
	ServiceName string

	// Endpoint is the OTLP gRPC collector address, host:port. Required.
	Endpoint string

	// SampleRatio is the fraction of root traces kept. Values outside
	// (0, 1) keep everything; child spans follow their parent's decision
	// either way.
	SampleRatio float64
}

func (c TracerConfig) sampler() trace.Sampler {
	if c.SampleRatio > 0 && c.SampleRatio < 1 {
		return trace.ParentBased(trace.TraceIDRatioBased(c.SampleRatio))
	}
	return trace.AlwaysSample()
}

// InitTracer installs the global tracer provider, exporting spans to the
// configured OTLP collector. Returns a shutdown function that flushes
// pending spans; call it on service termination.
func InitTracer(ctx context.Context, cfg TracerConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tracing requires a collector endpoint")
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(Version),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
