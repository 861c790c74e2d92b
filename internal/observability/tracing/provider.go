package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	pkgconfig "chatguard/pkg/config"
)

// Setup installs the global tracer provider and W3C trace context
// propagator. Without it the global tracer is a no-op and every
// X-Trace-Id header is all zeroes.
//
// The sample ratio comes from TRACE_SAMPLE_RATIO (default 1.0; parent
// decisions are always honored). The returned shutdown function
// flushes and stops the provider.
func Setup(ctx context.Context, serviceVersion string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("chatguard"),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	ratio := pkgconfig.GetEnvFloat("TRACE_SAMPLE_RATIO", 1.0)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}
