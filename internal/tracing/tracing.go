// Package tracing wraps OpenTelemetry so the collector can open a span per
// cycle and per phase without importing otel directly.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/Iron-Ham/allocpacer"

// Tracer starts spans. The zero value is not usable; use Init,
// NewWithExporter or Nop.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	out      io.Closer
}

// Init builds a Tracer exporting spans as JSON to outputFile, or to stdout
// when outputFile is empty.
func Init(serviceName, outputFile string) (*Tracer, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	t, err := NewWithExporter(serviceName, exporter)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	t.out = closer
	return t, nil
}

// NewWithExporter builds a Tracer on any SDK exporter. Spans are exported
// synchronously as they end.
func NewWithExporter(serviceName string, exporter sdktrace.SpanExporter) (*Tracer, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return &Tracer{
		tracer:   tp.Tracer(instrumentationName),
		provider: tp,
	}, nil
}

// Nop returns a Tracer whose spans record nothing.
func Nop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// Start opens a span named name as a child of any span in ctx.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// Shutdown flushes pending spans and closes the output file, if any.
func (t *Tracer) Shutdown(ctx context.Context) error {
	var err error
	if t.provider != nil {
		err = t.provider.Shutdown(ctx)
	}
	if t.out != nil {
		if cerr := t.out.Close(); err == nil {
			err = cerr
		}
		t.out = nil
	}
	return err
}

// Span is an open span. A nil *Span is a valid no-op.
type Span struct {
	span trace.Span
}

// SetAttributes attaches attrs to the span.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	if s == nil || len(attrs) == 0 {
		return
	}
	s.span.SetAttributes(attrs...)
}

// End records err as the span status, or OK when err is nil, and ends the span.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
