package veltrace

import "context"

type contextKey struct{}

var activeSpanKey contextKey

// ContextWithSpan returns a context carrying the span. This is the
// cross-goroutine companion to the scope stack: a context travels with
// the work, a scope stays on the stack that pushed it.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, activeSpanKey, span)
}

// SpanFromContext returns the span carried by the context, nil if none.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(activeSpanKey).(*Span)
	return span
}

// StartSpanFromContext starts a span that is a child of the context's
// span when one is present, and returns a derived context carrying the
// new span.
func StartSpanFromContext(ctx context.Context, tracer *Tracer, operationName string) (*Span, context.Context) {
	builder := tracer.BuildSpan(operationName)
	if parent := SpanFromContext(ctx); parent != nil {
		builder.AsChildOf(parent.Context())
	}
	span := builder.Start()
	return span, ContextWithSpan(ctx, span)
}
