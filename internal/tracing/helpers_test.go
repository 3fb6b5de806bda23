package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value.AsString(), true
		}
	}
	return "", false
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		operation DBOperation
		wantName  string
	}{
		{"insert with table", "audit_logs", DBOperationInsert, "insert audit_logs"},
		{"query with table", "security_alerts", DBOperationQuery, "query security_alerts"},
		{"update with table", "security_alerts", DBOperationUpdate, "update security_alerts"},
		{"exec without table", "", DBOperationExec, "exec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := installRecorder(t)

			_, done := StartDBSpan(context.Background(), tt.table, tt.operation)
			done(nil)

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			span := spans[0]

			if span.Name() != tt.wantName {
				t.Errorf("span name = %q, want %q", span.Name(), tt.wantName)
			}
			if got, _ := attrValue(span, "db.system"); got != "postgresql" {
				t.Errorf("db.system = %q, want postgresql", got)
			}
			if got, _ := attrValue(span, "db.operation"); got != string(tt.operation) {
				t.Errorf("db.operation = %q, want %q", got, tt.operation)
			}
			got, present := attrValue(span, "db.sql.table")
			if tt.table == "" && present {
				t.Error("db.sql.table set for a call without a table")
			}
			if tt.table != "" && got != tt.table {
				t.Errorf("db.sql.table = %q, want %q", got, tt.table)
			}
		})
	}
}

func TestStartDBSpan_RecordsError(t *testing.T) {
	rec := installRecorder(t)
	callErr := errors.New("connection reset")

	_, done := StartDBSpan(context.Background(), "audit_logs", DBOperationQuery)
	done(callErr)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	status := spans[0].Status()
	if status.Code.String() != "Error" {
		t.Errorf("status code = %s, want Error", status.Code)
	}
	if status.Description != callErr.Error() {
		t.Errorf("status description = %q, want %q", status.Description, callErr)
	}
}

func TestStartSpan(t *testing.T) {
	rec := installRecorder(t)

	_, done := StartSpan(context.Background(), "analyze_entry")
	done(nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "analyze_entry" {
		t.Errorf("span name = %q, want analyze_entry", spans[0].Name())
	}
	if code := spans[0].Status().Code.String(); code == "Error" {
		t.Errorf("status code = Error for a successful stage")
	}
}

func TestStartSpan_RecordsError(t *testing.T) {
	rec := installRecorder(t)

	_, done := StartSpan(context.Background(), "analyze_entry")
	done(errors.New("detector failed"))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Status().Code.String() != "Error" {
		t.Errorf("status code = %s, want Error", spans[0].Status().Code)
	}
}

func TestAddEvent(t *testing.T) {
	rec := installRecorder(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "record_entry")
	AddEvent(ctx, "geo_cache_hit", attribute.String("ip", "203.0.113.10"))
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "geo_cache_hit" {
		t.Fatalf("events = %+v, want one geo_cache_hit event", events)
	}
	if len(events[0].Attributes) != 1 {
		t.Errorf("event attributes = %d, want 1", len(events[0].Attributes))
	}
}

func TestSetAttributes(t *testing.T) {
	rec := installRecorder(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "record_entry")
	SetAttributes(ctx,
		attribute.String("actor_id", "user-123"),
		attribute.String("endpoint", "/v1/events"),
	)
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if got, _ := attrValue(spans[0], "actor_id"); got != "user-123" {
		t.Errorf("actor_id = %q, want user-123", got)
	}
	if got, _ := attrValue(spans[0], "endpoint"); got != "/v1/events" {
		t.Errorf("endpoint = %q, want /v1/events", got)
	}
}
