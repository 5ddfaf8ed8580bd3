// Package tracing owns the process tracer and the W3C trace-context plumbing
// used to continue traces across Kafka hops.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer every StartSpan call uses. Init calls it
// during startup; until then spans are no-ops.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a child span on the context's current trace. Before Init
// runs it hands the context back untouched.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetActiveSpan returns the active span from the context, or nil when no
// recording span is installed.
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	// An invalid span context means the no-op span, not a real one.
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// GetTraceID returns the hex trace ID of the active trace, or "".
func GetTraceID(ctx context.Context) string {
	if span := GetActiveSpan(ctx); span != nil {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

func carrierValue(ctx context.Context, key string) string {
	if GetActiveSpan(ctx) == nil {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get(key)
}

// GetTraceParent returns the W3C traceparent header value for the active trace.
func GetTraceParent(ctx context.Context) string {
	return carrierValue(ctx, "traceparent")
}

// GetTraceState returns the W3C tracestate header value for the active trace.
func GetTraceState(ctx context.Context) string {
	return carrierValue(ctx, "tracestate")
}

// WithRemoteTrace resumes the trace carried by W3C traceparent and tracestate
// values, typically read off a Kafka message, so spans started afterwards
// attach to the producer's trace. An empty or malformed traceparent returns
// the context unchanged.
func WithRemoteTrace(ctx context.Context, traceParent, traceState string) context.Context {
	if traceParent == "" {
		return ctx
	}

	carrier := propagation.MapCarrier{"traceparent": traceParent}
	if traceState != "" {
		carrier.Set("tracestate", traceState)
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}
