package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartToolSpan(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartToolSpan(context.Background(), "create_appointment", attribute.String(SpanAttrCallID, "call_1"))
	EndSpan(span, nil)

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	s := ended[0]
	if s.Name() != "tool.create_appointment" {
		t.Errorf("name = %q", s.Name())
	}
	attrs := spanAttrs(s)
	if attrs[SpanAttrTool].AsString() != "create_appointment" {
		t.Errorf("tool attribute = %v", attrs[SpanAttrTool])
	}
	if attrs[SpanAttrCallID].AsString() != "call_1" {
		t.Errorf("call id attribute = %v", attrs[SpanAttrCallID])
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestStartGoogleAPISpan(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartGoogleAPISpan(context.Background(), ServiceCalendar, "insert")
	EndSpan(span, errors.New("quota exceeded"))

	s := sr.Ended()[0]
	if s.Name() != "google.calendar.insert" {
		t.Errorf("name = %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindClient {
		t.Errorf("kind = %v, want client", s.SpanKind())
	}
	if s.Status().Code != codes.Error || s.Status().Description != "quota exceeded" {
		t.Errorf("status = %+v", s.Status())
	}
	if len(s.Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestTraceIDs(t *testing.T) {
	if GetTraceID(context.Background()) != "" || GetSpanID(context.Background()) != "" {
		t.Error("expected empty ids without a span")
	}

	recordSpans(t)
	ctx, span := StartSpan(context.Background(), SpanReminderSweep)
	defer span.End()

	if len(GetTraceID(ctx)) != 32 {
		t.Errorf("trace id = %q", GetTraceID(ctx))
	}
	if len(GetSpanID(ctx)) != 16 {
		t.Errorf("span id = %q", GetSpanID(ctx))
	}
}

func TestSetSpanError_Nil(t *testing.T) {
	sr := recordSpans(t)
	_, span := StartSpan(context.Background(), "noop")
	SetSpanError(span, nil)
	span.End()

	if sr.Ended()[0].Status().Code != codes.Unset {
		t.Error("nil error must leave the status unset")
	}
}
