package trace

import (
	"context"

	"github.com/ServiceWeaver/weaver"
	"go.opentelemetry.io/otel/trace"
)

// SpanContext is the wire form of an otel span context carried inside
// reaction messages
type SpanContext struct {
	weaver.AutoMarshal `json:"-"`
	TraceID            [16]byte `json:"trace_id"`
	SpanID             [8]byte  `json:"span_id"`
	TraceFlags         byte     `json:"trace_flags"`
	TraceState         string   `json:"trace_state"`
	Remote             bool     `json:"remote"`
}

func ParseSpanContext(sc SpanContext) (trace.SpanContext, error) {
	traceState, err := trace.ParseTraceState(sc.TraceState)
	if err != nil {
		return trace.SpanContext{}, err
	}
	config := trace.SpanContextConfig{
		TraceID:    sc.TraceID,
		SpanID:     sc.SpanID,
		TraceFlags: trace.TraceFlags(sc.TraceFlags),
		TraceState: traceState,
		Remote:     true,
	}
	return trace.NewSpanContext(config), nil
}

func BuildSpanContext(sc trace.SpanContext) SpanContext {
	return SpanContext{
		TraceID:    sc.TraceID(),
		SpanID:     sc.SpanID(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
		Remote:     sc.IsRemote(),
	}
}

// FromContext captures the span of ctx so it can be sent to another process
func FromContext(ctx context.Context) SpanContext {
	return BuildSpanContext(trace.SpanContextFromContext(ctx))
}

// RemoteContext returns ctx carrying sc as its remote parent. An invalid or
// unparsable span context leaves ctx untouched.
func RemoteContext(ctx context.Context, sc SpanContext) context.Context {
	spanContext, err := ParseSpanContext(sc)
	if err != nil || !spanContext.IsValid() {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, spanContext)
}
