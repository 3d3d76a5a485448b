package veltrace

import "errors"

// Sampler decides whether a new trace is reported. It is consulted at
// most once per trace, for the root span only, and never again for
// descendants. Implementations must be safe for concurrent use and must
// not derive trace identity from their decision.
type Sampler interface {
	// IsSampled returns the decision for a new trace plus tags
	// describing how it was made; the tags are merged into the root
	// span.
	IsSampled(id TraceID, operation string) (sampled bool, tags []Tag)

	// Close releases sampler resources (e.g. a remote refresh loop).
	// Called exactly once when the tracer closes.
	Close() error
}

// Reporter receives every finished sampled span. Report must not block
// the finishing span indefinitely; buffering and transport belong to
// the implementation. Close flushes pending spans synchronously and is
// called exactly once when the tracer closes.
type Reporter interface {
	Report(span *Span)
	Close() error
}

// Injector serializes a span context into a carrier.
type Injector interface {
	Inject(ctx SpanContext, carrier interface{}) error
}

// Extractor deserializes a span context from a carrier. When the
// carrier holds no context it returns ErrSpanContextNotFound.
type Extractor interface {
	Extract(carrier interface{}) (SpanContext, error)
}

// ErrSpanContextNotFound signals that a carrier held no span context.
// It also comes back from Tracer.Extract for formats with no registered
// extractor, keeping propagation failures non-fatal.
var ErrSpanContextNotFound = errors.New("veltrace: span context not found in carrier")
