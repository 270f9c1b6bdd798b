package tracing

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderWithoutJaeger(t *testing.T) {
	log := testr.New(t)
	tp, err := InitTracerProvider(log, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Shutdown(context.Background(), log, tp)
}

func TestStartNewSpanRecordsAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartNewSpan(context.Background(), "progress.event", attribute.Int("completed", 3))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != "progress.event" {
		t.Errorf("expected span name progress.event, got %s", ended[0].Name())
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "completed" && kv.Value.AsInt64() == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected completed=3 attribute, got %v", ended[0].Attributes())
	}
}
