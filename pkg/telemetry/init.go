// Package telemetry wires OpenTelemetry tracing for the policy server.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrSkyle/fsgroup-psp/pkg/config"
	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

const (
	attrRule       = attribute.Key("fsgroup.rule")
	attrRangeCount = attribute.Key("fsgroup.range_count")
	attrRanges     = attribute.Key("fsgroup.ranges")
)

// RuleAttributes describes the load-time rule and its ranges.
func RuleAttributes(st settings.Settings) []attribute.KeyValue {
	ranges := st.Ranges()
	formatted := make([]string, 0, len(ranges))
	for _, r := range ranges {
		formatted = append(formatted, fmt.Sprintf("%d-%d", r.Min, r.Max))
	}
	return []attribute.KeyValue{
		attrRule.String(st.Active().String()),
		attrRangeCount.Int(len(ranges)),
		attrRanges.StringSlice(formatted),
	}
}

// Init configures OpenTelemetry tracing. Spans go to the OTLP endpoint when one is
// configured and are discarded otherwise. The resource carries the active rule from st.
// The returned func flushes and stops the provider.
func Init(ctx context.Context, serviceName, serviceVersion string, st settings.Settings, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if cfg.Disabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(serviceName, serviceVersion, st)
	if err != nil {
		return nil, err
	}

	var exporter sdktrace.SpanExporter
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	if endpoint != "" {
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(io.Discard))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}

func newResource(serviceName, serviceVersion string, st settings.Settings) (*resource.Resource, error) {
	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	}, RuleAttributes(st)...)

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
