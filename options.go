package veltrace

import (
	"go.uber.org/zap"

	"github.com/veltrace/veltrace-go/baggage"
	"github.com/veltrace/veltrace-go/internal/throttler"
	"github.com/veltrace/veltrace-go/metrics"
	"github.com/veltrace/veltrace-go/propagation"
)

// TracerOption configures a Tracer at construction time.
type TracerOption func(*Tracer)

// WithLogger sets the tracer's internal logger; defaults to a no-op
// logger.
func WithLogger(logger *zap.Logger) TracerOption {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetricsFactory wires the tracer's counters and gauges into the
// given sink; defaults to discarding them.
func WithMetricsFactory(factory metrics.Factory) TracerOption {
	return func(t *Tracer) { t.metrics = metrics.NewTracerMetrics(factory) }
}

// WithBaggageRestrictionManager sets the policy for baggage writes;
// defaults to allowing every key.
func WithBaggageRestrictionManager(manager baggage.RestrictionManager) TracerOption {
	return func(t *Tracer) {
		if manager != nil {
			t.baggageManager = manager
		}
	}
}

// WithTraceID128Bit makes new traces carry 128-bit trace ids.
func WithTraceID128Bit() TracerOption {
	return func(t *Tracer) { t.traceID128Bit = true }
}

// WithTag attaches a process-level tag to the tracer.
func WithTag(key string, value interface{}) TracerOption {
	return func(t *Tracer) { t.tags = append(t.tags, Tag{Key: key, Value: value}) }
}

// WithInjector registers an injector for a format, overriding any
// built-in codec for that format.
func WithInjector(format propagation.Format, injector Injector) TracerOption {
	return func(t *Tracer) { t.injectors[format] = injector }
}

// WithExtractor registers an extractor for a format, overriding any
// built-in codec for that format.
func WithExtractor(format propagation.Format, extractor Extractor) TracerOption {
	return func(t *Tracer) { t.extractors[format] = extractor }
}

// WithHeadersConfig overrides the header names used by the built-in
// text codecs. Zero fields keep their defaults.
func WithHeadersConfig(headers HeadersConfig) TracerOption {
	return func(t *Tracer) { t.headers = headers }
}

// WithDebugThrottler bounds how often inbound debug headers may force a
// debug trace; defaults to unlimited.
func WithDebugThrottler(th throttler.Throttler) TracerOption {
	return func(t *Tracer) {
		if th != nil {
			t.debugThrottler = th
		}
	}
}
