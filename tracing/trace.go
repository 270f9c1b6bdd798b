// Package tracing wires OpenTelemetry for progress aggregation runs.
//
// Spans are always created through the global tracer provider, so a process
// that never calls InitTracerProvider pays only the cost of no-op spans.
package tracing

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "github.com/konveyor/progress-aggregator"
	defaultServiceName = "progress-aggregator"
)

type Options struct {
	EnableJaeger   bool
	JaegerEndpoint string
	// ServiceName defaults to progress-aggregator. Worker processes use a
	// distinct name so their spans can be told apart from the coordinator's.
	ServiceName string
}

func newJaegerExporter(endpoint string) (tracesdk.SpanExporter, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)),
	)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func InitTracerProvider(log logr.Logger, o Options) (*tracesdk.TracerProvider, error) {
	serviceName := o.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	tracerOptions := []tracesdk.TracerProviderOption{
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	}
	if o.EnableJaeger {
		exp, err := newJaegerExporter(o.JaegerEndpoint)
		if err != nil {
			log.Error(err, "failed to create jaeger exporter")
			return nil, err
		}
		tracerOptions = append(tracerOptions,
			tracesdk.WithBatcher(exp))
		log.V(1).Info("exporting traces to jaeger", "endpoint", o.JaegerEndpoint)
	}

	tp := tracesdk.NewTracerProvider(tracerOptions...)
	otel.SetTracerProvider(tp)

	return tp, nil
}

func Shutdown(ctx context.Context, log logr.Logger, tp *tracesdk.TracerProvider) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error(err, "error shutting down tracer provider")
	}
}

func StartNewSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}
