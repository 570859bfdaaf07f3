package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"kafka:9092", 1},
		{"kafka-1:9092, kafka-2:9092", 2},
		{" , kafka:9092 ,", 1},
	}
	for _, tc := range cases {
		if got := SplitBrokers(tc.raw); len(got) != tc.want {
			t.Errorf("SplitBrokers(%q): got %v, want %d brokers", tc.raw, got, tc.want)
		}
	}
}

func TestHeaderValue(t *testing.T) {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte("evt-1")},
		{Key: "event_type", Value: []byte("booking.appointment.booked.v1")},
	}
	if got := HeaderValue(headers, "event_id"); got != "evt-1" {
		t.Fatalf("got %q", got)
	}
	if got := HeaderValue(headers, "missing"); got != "" {
		t.Fatalf("missing key: got %q", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("traceparent header not injected")
	}
	if HeaderValue(headers, "event_id") != "evt-1" {
		t.Fatal("existing headers must be preserved")
	}

	extracted := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	got := trace.SpanContextFromContext(extracted)
	want := span.SpanContext()
	if got.TraceID() != want.TraceID() {
		t.Fatalf("trace id: got %s, want %s", got.TraceID(), want.TraceID())
	}
}
