// Package gintrace instruments gin handlers: it extracts inbound trace
// context from request headers, wraps each request in a server span,
// and injects the span context into the response headers.
package gintrace

import (
	"github.com/gin-gonic/gin"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/propagation"
)

// Middleware creates gin middleware tracing every request through the
// given tracer. The span is available to handlers via
// veltrace.SpanFromContext on the request context.
func Middleware(tracer *veltrace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		operation := c.FullPath()
		if operation == "" {
			operation = c.Request.Method
		}

		builder := tracer.BuildSpan(operation).
			WithTag(veltrace.TagSpanKind, veltrace.SpanKindServer).
			WithTag("http.method", c.Request.Method).
			WithTag("http.url", c.Request.URL.String())

		carrier := propagation.HTTPHeadersCarrier(c.Request.Header)
		if parent, err := tracer.Extract(propagation.HTTPHeaders, carrier); err == nil {
			builder.AsChildOf(parent)
		}

		span := builder.Start()
		c.Request = c.Request.WithContext(veltrace.ContextWithSpan(c.Request.Context(), span))

		// Echo the identity so clients can correlate their logs.
		responseCarrier := propagation.HTTPHeadersCarrier(c.Writer.Header())
		_ = tracer.Inject(span.Context(), propagation.HTTPHeaders, responseCarrier)

		c.Next()

		span.SetTag("http.status_code", c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetTag("error", true)
			span.LogKV("event", "error", "message", c.Errors.String())
		}
		span.Finish()
	}
}
