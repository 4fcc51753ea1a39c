// Package observability wires the process-wide OpenTelemetry tracer. The
// HTTP layer (otelgin) and the repository spans both resolve their tracer
// through the global provider installed here.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/ePaysa-ind/milo-sub005/internal/config"
)

// Constructor seams; tests swap these to simulate setup failures without a
// collector.
var (
	newTraceExporter = func(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
		client := otlptracegrpc.NewClient(clientOptions(cfg)...)
		// Creation does not dial; the first export does, so boot succeeds
		// even when the collector is down.
		return otlptrace.New(ctx, client)
	}

	newServiceResource = func(ctx context.Context, service, version string) (*resource.Resource, error) {
		return resource.New(ctx, resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		))
	}
)

// Init installs a batching OTLP/gRPC tracer provider and the W3C trace
// context and baggage propagators as process globals, and returns the
// provider's shutdown function. Disabled tracing returns a no-op shutdown.
// On any setup error the globals are left untouched, so a failed boot never
// half-installs tracing.
func Init(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	res, err := newServiceResource(ctx, cfg.ServiceName, version)
	if err != nil {
		return nil, fmt.Errorf("describe service resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// clientOptions renders the collector connection options: endpoint plus
// either plaintext or ambient-CA TLS.
func clientOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}
