package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracer_ParentChild(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter("allocpacer-test", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}

	ctx, cycle := tr.Start(context.Background(), "cycle", attribute.Int64("cycle", 1))
	_, phase := tr.Start(ctx, "phase.mark")
	phase.SetAttributes(attribute.Float64("tax_rate", 33))
	phase.End(nil)
	cycle.End(errors.New("degenerated"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("exported %d spans, want 2", len(spans))
	}

	mark, root := spans[0], spans[1]
	if mark.Name != "phase.mark" || root.Name != "cycle" {
		t.Fatalf("span names = %q, %q, want phase.mark, cycle", mark.Name, root.Name)
	}
	if mark.Parent.SpanID() != root.SpanContext.SpanID() {
		t.Error("phase span is not a child of the cycle span")
	}
	if mark.Status.Code != codes.Ok {
		t.Errorf("phase status = %v, want Ok", mark.Status.Code)
	}
	if root.Status.Code != codes.Error || root.Status.Description != "degenerated" {
		t.Errorf("cycle status = %+v, want Error(degenerated)", root.Status)
	}
}

func TestInit_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")

	tr, err := Init("allocpacer-test", path)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := tr.Start(context.Background(), "cycle")
	span.End(nil)

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("no data written to trace file")
	}
}

func TestNop(t *testing.T) {
	tr := Nop()
	ctx, span := tr.Start(context.Background(), "cycle")
	if ctx == nil {
		t.Fatal("Start() returned nil context")
	}
	span.SetAttributes(attribute.String("k", "v"))
	span.End(nil)

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	var nilSpan *Span
	nilSpan.End(errors.New("ignored"))
}
