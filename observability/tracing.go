// Package observability wires the real go.opentelemetry.io/otel SDK into
// the core's request path: one span per inbound request, reported
// through a zerolog-backed exporter rather than a network collector,
// since this deployment has no OTLP endpoint of its own.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// logExporter satisfies sdktrace.SpanExporter by writing one log line per
// finished span; it never drops a span and never blocks on I/O beyond the
// logger's own buffering.
type logExporter struct {
	log zerolog.Logger
}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		e.log.Debug().
			Str("span", s.Name()).
			Str("trace_id", s.SpanContext().TraceID().String()).
			Str("span_id", s.SpanContext().SpanID().String()).
			Dur("duration", s.EndTime().Sub(s.StartTime())).
			Str("status", s.Status().Code.String()).
			Msg("span finished")
	}
	return nil
}

func (e *logExporter) Shutdown(ctx context.Context) error { return nil }

// NewTracerProvider returns an SDK TracerProvider that batches finished
// spans through logExporter. Callers should defer Shutdown at process
// exit so the final batch flushes.
func NewTracerProvider(log zerolog.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&logExporter{log: log}, sdktrace.WithBatchTimeout(2*time.Second)),
	)
}

// Middleware starts one span per inbound request named "<method> <path>",
// records the resulting status code, and ends the span on completion.
func Middleware(tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			defer span.End()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", sw.status))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Tracer returns the global otel tracer named for this core.
func Tracer() trace.Tracer {
	return otel.Tracer("ridgeway-transit/opscore")
}
