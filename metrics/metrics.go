package metrics

// Counter is a monotonically increasing value.
type Counter interface {
	Inc(delta int64)
}

// Gauge tracks the current value of some quantity.
type Gauge interface {
	Update(value int64)
}

// Factory creates named counters and gauges. Implementations must treat
// (name, tags) pairs as identifying: asking twice for the same pair must
// yield instruments backed by the same series.
type Factory interface {
	Counter(name string, tags map[string]string) Counter
	Gauge(name string, tags map[string]string) Gauge
}

// NullFactory discards all metrics.
var NullFactory Factory = nullFactory{}

type nullFactory struct{}

type nullCounter struct{}

type nullGauge struct{}

func (nullFactory) Counter(string, map[string]string) Counter { return nullCounter{} }
func (nullFactory) Gauge(string, map[string]string) Gauge     { return nullGauge{} }
func (nullCounter) Inc(int64)                                 {}
func (nullGauge) Update(int64)                                {}

// TracerMetrics bundles every instrument the tracer core increments.
// All fields are non-nil after NewTracerMetrics.
type TracerMetrics struct {
	// Span and trace volume
	SpansStartedSampled     Counter
	SpansStartedNotSampled  Counter
	SpansFinishedSampled    Counter
	SpansFinishedNotSampled Counter
	TracesStartedSampled    Counter
	TracesStartedNotSampled Counter

	// Baggage writes mediated by the restriction manager
	BaggageUpdateSuccess Counter
	BaggageUpdateFailure Counter
	BaggageTruncate      Counter

	// Remote reporter
	ReporterSuccess     Counter
	ReporterFailure     Counter
	ReporterDropped     Counter
	ReporterQueueLength Gauge

	// Remote sampler polling
	SamplerQuerySuccess  Counter
	SamplerQueryFailure  Counter
	SamplerUpdateSuccess Counter
	SamplerUpdateFailure Counter

	// Remote baggage restriction polling
	BaggageRestrictionsUpdateSuccess Counter
	BaggageRestrictionsUpdateFailure Counter
}

// NewTracerMetrics creates the full instrument bundle from a factory.
func NewTracerMetrics(factory Factory) *TracerMetrics {
	if factory == nil {
		factory = NullFactory
	}
	return &TracerMetrics{
		SpansStartedSampled:     factory.Counter("started_spans", map[string]string{"sampled": "y"}),
		SpansStartedNotSampled:  factory.Counter("started_spans", map[string]string{"sampled": "n"}),
		SpansFinishedSampled:    factory.Counter("finished_spans", map[string]string{"sampled": "y"}),
		SpansFinishedNotSampled: factory.Counter("finished_spans", map[string]string{"sampled": "n"}),
		TracesStartedSampled:    factory.Counter("traces", map[string]string{"sampled": "y", "state": "started"}),
		TracesStartedNotSampled: factory.Counter("traces", map[string]string{"sampled": "n", "state": "started"}),

		BaggageUpdateSuccess: factory.Counter("baggage_updates", map[string]string{"result": "ok"}),
		BaggageUpdateFailure: factory.Counter("baggage_updates", map[string]string{"result": "denied"}),
		BaggageTruncate:      factory.Counter("baggage_updates", map[string]string{"result": "truncated"}),

		ReporterSuccess:     factory.Counter("reporter_spans", map[string]string{"result": "ok"}),
		ReporterFailure:     factory.Counter("reporter_spans", map[string]string{"result": "err"}),
		ReporterDropped:     factory.Counter("reporter_spans", map[string]string{"result": "dropped"}),
		ReporterQueueLength: factory.Gauge("reporter_queue_length", nil),

		SamplerQuerySuccess:  factory.Counter("sampler_queries", map[string]string{"result": "ok"}),
		SamplerQueryFailure:  factory.Counter("sampler_queries", map[string]string{"result": "err"}),
		SamplerUpdateSuccess: factory.Counter("sampler_updates", map[string]string{"result": "ok"}),
		SamplerUpdateFailure: factory.Counter("sampler_updates", map[string]string{"result": "err"}),

		BaggageRestrictionsUpdateSuccess: factory.Counter("baggage_restrictions_updates", map[string]string{"result": "ok"}),
		BaggageRestrictionsUpdateFailure: factory.Counter("baggage_restrictions_updates", map[string]string{"result": "err"}),
	}
}
