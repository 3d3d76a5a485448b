package veltrace

// Version of the client library, reported as a process tag on the
// tracer.
const Version = "go-1.0.0"

// Tag is one typed key/value annotation on a span. Values may be
// strings, booleans, numerics, or arbitrary values the reporter knows
// how to serialize.
type Tag struct {
	Key   string
	Value interface{}
}

// Well-known tag keys consulted by the tracer core.
const (
	// TagSpanKind distinguishes client/server/producer/consumer spans.
	// The value "server" flags a builder as an inbound RPC boundary.
	TagSpanKind = "span.kind"

	// TagSamplingPriority forces the sampling decision on a live span:
	// zero clears the sampled bit, a positive value sets sampled+debug
	// when the debug throttler permits it.
	TagSamplingPriority = "sampling.priority"

	// TagSamplerType and TagSamplerParam describe the sampler that made
	// the decision for a new trace.
	TagSamplerType  = "sampler.type"
	TagSamplerParam = "sampler.param"
)

// SpanKindServer is the TagSpanKind value marking an inbound RPC span.
const SpanKindServer = "server"

// Process-level tag keys attached to the tracer itself.
const (
	TagTracerVersion = "client.version"
	TagHostname      = "hostname"
	TagTracerIP      = "ip"
	TagClientUUID    = "client-uuid"
)

// TagDebugID carries the inbound debug correlation id on a forced debug
// root span.
const TagDebugID = "debug-id"
