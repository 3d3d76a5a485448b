package veltrace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Flag bits carried by a span context. The sampling decision is made
// once per trace and copied verbatim to every descendant span.
const (
	// FlagSampled marks the trace as selected for reporting.
	FlagSampled = byte(1)
	// FlagDebug marks the trace as a forced debug trace; always set
	// together with FlagSampled.
	FlagDebug = byte(2)
	// FlagFirehose marks the trace as high-volume firehose traffic that
	// downstream collectors may handle with relaxed guarantees.
	FlagFirehose = byte(8)
)

// ErrMalformedSpanContext is returned when a serialized context cannot
// be parsed.
var ErrMalformedSpanContext = errors.New("veltrace: malformed span context")

// SpanContext is the immutable identity of a span: trace id, span id,
// parent id, flags, and a baggage snapshot. The zero value is an empty
// context with no trace.
//
// A context whose trace id is zero but whose flags are set is a
// sampling-only context: it carries a forced sampling decision (and
// possibly baggage) without denoting any real span. Such a context is
// never reported and never becomes a parent id; it only influences the
// decision taken when a new trace starts.
type SpanContext struct {
	traceID  TraceID
	spanID   SpanID
	parentID SpanID
	flags    byte

	// baggage is treated as immutable: every write produces a fresh map.
	baggage map[string]string

	// debugID is a correlation id extracted from an inbound debug
	// header. It only exists on contexts that carry no trace; it forces
	// a debug trace when the root span starts.
	debugID string
}

// NewSpanContext creates a context with the given identity and flags.
func NewSpanContext(traceID TraceID, spanID, parentID SpanID, sampled bool, baggage map[string]string) SpanContext {
	var flags byte
	if sampled {
		flags = FlagSampled
	}
	return SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		flags:    flags,
		baggage:  baggage,
	}
}

// TraceID returns the trace identifier.
func (c SpanContext) TraceID() TraceID { return c.traceID }

// SpanID returns the span identifier.
func (c SpanContext) SpanID() SpanID { return c.spanID }

// ParentID returns the parent span identifier, zero for root spans.
func (c SpanContext) ParentID() SpanID { return c.parentID }

// Flags returns the raw flag bits.
func (c SpanContext) Flags() byte { return c.flags }

// HasTrace reports whether the context denotes a real position in a
// trace graph.
func (c SpanContext) HasTrace() bool { return c.traceID.IsValid() }

// IsSampled reports whether the sampled bit is set, independent of
// HasTrace.
func (c SpanContext) IsSampled() bool { return c.flags&FlagSampled == FlagSampled }

// IsDebug reports whether the debug bit is set.
func (c SpanContext) IsDebug() bool { return c.flags&FlagDebug == FlagDebug }

// IsFirehose reports whether the firehose bit is set.
func (c SpanContext) IsFirehose() bool { return c.flags&FlagFirehose == FlagFirehose }

// IsValid reports whether the context identifies an actual span.
func (c SpanContext) IsValid() bool { return c.HasTrace() && c.spanID != 0 }

// isDebugIDContainerOnly reports whether the context exists purely to
// carry a debug correlation id extracted from a carrier.
func (c SpanContext) isDebugIDContainerOnly() bool {
	return !c.HasTrace() && c.debugID != ""
}

// WithFlags returns a copy with the flags replaced, not merged. Used to
// synthesize sampling-only contexts.
func (c SpanContext) WithFlags(flags byte) SpanContext {
	c.flags = flags
	return c
}

// WithBaggageItem returns a copy whose baggage contains the given entry,
// overwriting any previous value for the key. The receiver's baggage is
// never mutated.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	baggage := make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		baggage[k] = v
	}
	baggage[key] = value
	c.baggage = baggage
	return c
}

// BaggageItem returns the value for a baggage key, empty if unset.
func (c SpanContext) BaggageItem(key string) string {
	return c.baggage[key]
}

// ForeachBaggageItem visits every baggage entry until the handler
// returns false.
func (c SpanContext) ForeachBaggageItem(handler func(key, value string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			break
		}
	}
}

// String renders the context in the canonical
// {trace-id}:{span-id}:{parent-id}:{flags} form used on the wire.
func (c SpanContext) String() string {
	return fmt.Sprintf("%s:%s:%s:%x", c.traceID, c.spanID, c.parentID, c.flags)
}

// ContextFromString parses the canonical wire form produced by String.
func ContextFromString(value string) (SpanContext, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return SpanContext{}, ErrMalformedSpanContext
	}
	traceID, err := TraceIDFromString(parts[0])
	if err != nil {
		return SpanContext{}, ErrMalformedSpanContext
	}
	spanID, err := SpanIDFromString(parts[1])
	if err != nil {
		return SpanContext{}, ErrMalformedSpanContext
	}
	parentID, err := SpanIDFromString(parts[2])
	if err != nil {
		return SpanContext{}, ErrMalformedSpanContext
	}
	flags, err := strconv.ParseUint(parts[3], 16, 8)
	if err != nil {
		return SpanContext{}, ErrMalformedSpanContext
	}
	return SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		flags:    byte(flags),
	}, nil
}
