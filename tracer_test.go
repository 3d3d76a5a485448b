package veltrace_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/metrics/metricstest"
	"github.com/veltrace/veltrace-go/propagation"
	"github.com/veltrace/veltrace-go/reporters"
	"github.com/veltrace/veltrace-go/samplers"
)

// countingSampler wraps a fixed decision and records how often it is
// consulted, so tests can prove child spans never reach the sampler.
// Counters are atomic: samplers are invoked concurrently.
type countingSampler struct {
	decision bool
	closeErr error
	calls    atomic.Int64
	closes   atomic.Int64
}

func (s *countingSampler) IsSampled(id veltrace.TraceID, operation string) (bool, []veltrace.Tag) {
	s.calls.Add(1)
	return s.decision, nil
}

func (s *countingSampler) Close() error {
	s.closes.Add(1)
	return s.closeErr
}

type countingReporter struct {
	reporters.InMemory
	closeErr error
	closes   atomic.Int64
}

func (r *countingReporter) Close() error {
	r.closes.Add(1)
	return r.closeErr
}

type testHarness struct {
	tracer   *veltrace.Tracer
	metrics  *metricstest.Factory
	reporter *reporters.InMemory
	sampler  *countingSampler
}

func newHarness(t *testing.T, sampled bool, opts ...veltrace.TracerOption) *testHarness {
	t.Helper()
	h := &testHarness{
		metrics:  metricstest.NewFactory(),
		reporter: reporters.NewInMemory(),
		sampler:  &countingSampler{decision: sampled},
	}
	opts = append([]veltrace.TracerOption{veltrace.WithMetricsFactory(h.metrics)}, opts...)
	tracer, err := veltrace.NewTracer("test-service", h.sampler, h.reporter, opts...)
	require.NoError(t, err)
	h.tracer = tracer
	return h
}

func (h *testHarness) startedSpans(sampled string) int64 {
	return h.metrics.GetCounter("started_spans", map[string]string{"sampled": sampled})
}

func (h *testHarness) startedTraces(sampled string) int64 {
	return h.metrics.GetCounter("traces", map[string]string{"sampled": sampled, "state": "started"})
}

func TestNewTracerRejectsBlankServiceName(t *testing.T) {
	for _, name := range []string{"", "  ", "\t"} {
		_, err := veltrace.NewTracer(name, samplers.NewConst(true), reporters.NewInMemory())
		assert.ErrorIs(t, err, veltrace.ErrInvalidServiceName, "name %q", name)
	}
}

func TestNewTracerRequiresSamplerAndReporter(t *testing.T) {
	_, err := veltrace.NewTracer("svc", nil, reporters.NewInMemory())
	assert.ErrorIs(t, err, veltrace.ErrNilSampler)

	_, err = veltrace.NewTracer("svc", samplers.NewConst(true), nil)
	assert.ErrorIs(t, err, veltrace.ErrNilReporter)
}

func TestNewTraceMetrics(t *testing.T) {
	h := newHarness(t, true)

	span := h.tracer.BuildSpan("op").Start()
	assert.True(t, span.Context().IsSampled())
	assert.True(t, span.Context().HasTrace())
	assert.EqualValues(t, 0, span.Context().ParentID())

	assert.EqualValues(t, 1, h.startedSpans("y"))
	assert.EqualValues(t, 0, h.startedSpans("n"))
	assert.EqualValues(t, 1, h.startedTraces("y"))
	assert.EqualValues(t, 0, h.startedTraces("n"))
}

func TestChildSpanInheritsDecisionWithoutSampler(t *testing.T) {
	h := newHarness(t, true)

	parent := h.tracer.BuildSpan("parent").Start()
	require.EqualValues(t, 1, h.sampler.calls.Load())

	child := h.tracer.BuildSpan("child").AsChildOf(parent.Context()).Start()
	assert.EqualValues(t, 1, h.sampler.calls.Load(), "child must not consult the sampler")

	assert.Equal(t, parent.Context().TraceID(), child.Context().TraceID())
	assert.Equal(t, parent.Context().SpanID(), child.Context().ParentID())
	assert.Equal(t, parent.Context().Flags(), child.Context().Flags())
	assert.NotEqual(t, parent.Context().SpanID(), child.Context().SpanID())

	// Child spans count as spans but never as traces.
	assert.EqualValues(t, 2, h.startedSpans("y"))
	assert.EqualValues(t, 1, h.startedTraces("y"))
}

func TestChildOfUnsampledParentStaysUnsampled(t *testing.T) {
	h := newHarness(t, true)

	parent := veltrace.NewSpanContext(veltrace.TraceID{Low: 42}, 7, 0, false, nil)
	child := h.tracer.BuildSpan("child").AsChildOf(parent).Start()

	assert.EqualValues(t, 0, h.sampler.calls.Load())
	assert.False(t, child.Context().IsSampled())
	assert.EqualValues(t, 1, h.startedSpans("n"))
	assert.EqualValues(t, 0, h.startedTraces("n"))
}

func TestOnlySamplingDecision(t *testing.T) {
	h := newHarness(t, false)

	forced := veltrace.SpanContext{}.
		WithFlags(veltrace.FlagSampled).
		WithBaggageItem("foo", "bar")
	require.False(t, forced.HasTrace())

	span := h.tracer.BuildSpan("root").AsChildOf(forced).Start()

	assert.True(t, span.Context().HasTrace())
	assert.EqualValues(t, 0, span.Context().ParentID())
	assert.True(t, span.Context().IsSampled())
	assert.Equal(t, "bar", span.BaggageItem("foo"))
	assert.EqualValues(t, 0, h.sampler.calls.Load(), "forced decision bypasses the sampler")
	assert.Empty(t, span.References(), "sampling-only contexts leave no structure")
	assert.EqualValues(t, 1, h.startedTraces("y"))
}

func TestFalseSamplingDecision(t *testing.T) {
	h := newHarness(t, true)

	forced := veltrace.SpanContext{}.WithFlags(veltrace.FlagFirehose) // non-zero, not sampled
	span := h.tracer.BuildSpan("root").AsChildOf(forced).Start()

	assert.True(t, span.Context().HasTrace())
	assert.False(t, span.Context().IsSampled())
	assert.EqualValues(t, 0, h.sampler.calls.Load())
}

func TestOnlySamplingDecisionWithActiveParent(t *testing.T) {
	h := newHarness(t, true)

	parent := h.tracer.BuildSpan("parent").Start()
	parent.SetBaggageItem("parentFoo", "parentBar")
	scope := h.tracer.ActivateSpan(parent)
	defer scope.Close()

	forced := veltrace.SpanContext{}.
		WithFlags(veltrace.FlagSampled | veltrace.FlagDebug).
		WithBaggageItem("foo", "bar")

	span := h.tracer.BuildSpan("child").AsChildOf(forced).Start()

	// The active span, treated as declared first, defines the identity.
	assert.Equal(t, parent.Context().TraceID(), span.Context().TraceID())
	assert.Equal(t, parent.Context().SpanID(), span.Context().ParentID())
	assert.Equal(t, parent.Context().Flags(), span.Context().Flags())

	// Baggage from every reference rides along, later wins.
	assert.Equal(t, "parentBar", span.BaggageItem("parentFoo"))
	assert.Equal(t, "bar", span.BaggageItem("foo"))
}

func TestIgnoreActiveSpan(t *testing.T) {
	h := newHarness(t, true)

	parent := h.tracer.BuildSpan("parent").Start()
	scope := h.tracer.ActivateSpan(parent)
	defer scope.Close()

	span := h.tracer.BuildSpan("detached").IgnoreActiveSpan().Start()
	assert.NotEqual(t, parent.Context().TraceID(), span.Context().TraceID())
	assert.EqualValues(t, 0, span.Context().ParentID())
}

func TestExplicitReferenceBeatsActiveSpan(t *testing.T) {
	h := newHarness(t, true)

	active := h.tracer.BuildSpan("active").Start()
	scope := h.tracer.ActivateSpan(active)
	defer scope.Close()

	explicit := veltrace.NewSpanContext(veltrace.TraceID{Low: 99}, 5, 0, true, nil)
	span := h.tracer.BuildSpan("child").AsChildOf(explicit).Start()

	assert.Equal(t, explicit.TraceID(), span.Context().TraceID())
	assert.Equal(t, explicit.SpanID(), span.Context().ParentID())
}

func TestFirstTraceReferenceDefinesIdentity(t *testing.T) {
	h := newHarness(t, true)

	first := veltrace.NewSpanContext(veltrace.TraceID{Low: 1}, 10, 0, true, map[string]string{"k": "first"})
	second := veltrace.NewSpanContext(veltrace.TraceID{Low: 2}, 20, 0, false, map[string]string{"k": "second"})

	span := h.tracer.BuildSpan("op").
		AsChildOf(first).
		AddReference(veltrace.FollowsFrom, second).
		Start()

	assert.Equal(t, first.TraceID(), span.Context().TraceID())
	assert.Equal(t, first.SpanID(), span.Context().ParentID())
	assert.True(t, span.Context().IsSampled())
	assert.Equal(t, "second", span.BaggageItem("k"), "later reference wins baggage collisions")
	assert.Len(t, span.References(), 2)
}

func TestSamplerTagsOnlyWhenSampled(t *testing.T) {
	reporter := reporters.NewInMemory()
	tracer, err := veltrace.NewTracer("svc", samplers.NewConst(true), reporter)
	require.NoError(t, err)

	span := tracer.BuildSpan("op").Start()
	tags := span.Tags()
	assert.Equal(t, samplers.TypeConst, tags[veltrace.TagSamplerType])
	assert.Equal(t, true, tags[veltrace.TagSamplerParam])

	tracerOff, err := veltrace.NewTracer("svc", samplers.NewConst(false), reporter)
	require.NoError(t, err)
	span = tracerOff.BuildSpan("op").Start()
	tags = span.Tags()
	assert.NotContains(t, tags, veltrace.TagSamplerType)
	assert.NotContains(t, tags, veltrace.TagSamplerParam)
}

func TestFinishMetricsAndReporting(t *testing.T) {
	h := newHarness(t, true)

	span := h.tracer.BuildSpan("op").Start()
	span.Finish()
	span.Finish() // second call is a no-op

	assert.EqualValues(t, 1, h.metrics.GetCounter("finished_spans", map[string]string{"sampled": "y"}))
	assert.Len(t, h.reporter.GetSpans(), 1)
	assert.NotZero(t, span.Duration())
}

func TestUnsampledSpanNeverReported(t *testing.T) {
	h := newHarness(t, false)

	span := h.tracer.BuildSpan("op").Start()
	assert.EqualValues(t, 0, span.Context().ParentID())
	assert.EqualValues(t, 1, h.startedSpans("n"))
	assert.EqualValues(t, 1, h.startedTraces("n"))

	span.Finish()

	assert.EqualValues(t, 1, h.metrics.GetCounter("finished_spans", map[string]string{"sampled": "n"}))
	assert.Empty(t, h.reporter.GetSpans())
}

func TestTraceID128Bit(t *testing.T) {
	h := newHarness(t, true)
	span := h.tracer.BuildSpan("op").Start()
	assert.Zero(t, span.Context().TraceID().High)
	assert.False(t, h.tracer.UsesTraceID128Bit())

	h = newHarness(t, true, veltrace.WithTraceID128Bit())
	span = h.tracer.BuildSpan("op").Start()
	assert.NotZero(t, span.Context().TraceID().High)
	assert.True(t, h.tracer.UsesTraceID128Bit())
}

func TestIsRPCServer(t *testing.T) {
	h := newHarness(t, true)

	builder := h.tracer.BuildSpan("handler").WithTag(veltrace.TagSpanKind, veltrace.SpanKindServer)
	assert.True(t, builder.IsRPCServer())

	builder = h.tracer.BuildSpan("call").WithTag(veltrace.TagSpanKind, "client")
	assert.False(t, builder.IsRPCServer())

	builder = h.tracer.BuildSpan("plain")
	assert.False(t, builder.IsRPCServer())
}

func TestProcessTags(t *testing.T) {
	h := newHarness(t, true, veltrace.WithTag("deployment", "canary"))

	tags := map[string]interface{}{}
	for _, tag := range h.tracer.Tags() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, veltrace.Version, tags[veltrace.TagTracerVersion])
	assert.Equal(t, "canary", tags["deployment"])
	assert.NotEmpty(t, tags[veltrace.TagClientUUID])
}

func TestCloseClosesComponentsOnce(t *testing.T) {
	sampler := &countingSampler{decision: true}
	reporter := &countingReporter{}
	tracer, err := veltrace.NewTracer("svc", sampler, reporter)
	require.NoError(t, err)

	require.NoError(t, tracer.Close())
	require.NoError(t, tracer.Close())

	assert.EqualValues(t, 1, sampler.closes.Load())
	assert.EqualValues(t, 1, reporter.closes.Load())
}

func TestCloseAggregatesFailures(t *testing.T) {
	sampler := &countingSampler{decision: true, closeErr: errors.New("sampler shutdown failed")}
	reporter := &countingReporter{closeErr: errors.New("reporter flush failed")}
	tracer, err := veltrace.NewTracer("svc", sampler, reporter)
	require.NoError(t, err)

	err = tracer.Close()
	assert.ErrorContains(t, err, "reporter flush failed")
	assert.ErrorContains(t, err, "sampler shutdown failed")

	// The reporter failure must not stop the sampler from closing.
	assert.EqualValues(t, 1, reporter.closes.Load())
	assert.EqualValues(t, 1, sampler.closes.Load())

	assert.Equal(t, err, tracer.Close())
}

func TestConcurrentSpanCreation(t *testing.T) {
	h := newHarness(t, true)

	const goroutines = 16
	const tracesPerGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < tracesPerGoroutine; i++ {
				root := h.tracer.BuildSpan("root").Start()
				child := h.tracer.BuildSpan("child").AsChildOf(root.Context()).Start()
				child.Finish()
				root.Finish()
			}
		}()
	}
	wg.Wait()

	// Identifier assignment, sampling, and metric increments are atomic
	// per span creation: totals must be exact, never over- or
	// under-counted, and only roots may touch the traces counter.
	traces := int64(goroutines * tracesPerGoroutine)
	assert.EqualValues(t, 2*traces, h.startedSpans("y"))
	assert.EqualValues(t, 0, h.startedSpans("n"))
	assert.EqualValues(t, traces, h.startedTraces("y"))
	assert.EqualValues(t, 0, h.startedTraces("n"))
	assert.EqualValues(t, traces, h.sampler.calls.Load(), "sampler consulted once per trace")
	assert.EqualValues(t, 2*traces, h.metrics.GetCounter("finished_spans", map[string]string{"sampled": "y"}))
	assert.Len(t, h.reporter.GetSpans(), int(2*traces))
}

func TestClosedTracerHandsOutInertSpans(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.tracer.Close())

	span := h.tracer.BuildSpan("late").Start()
	assert.False(t, span.Context().IsSampled())
	assert.False(t, span.Context().HasTrace())
	span.Finish()

	assert.Empty(t, h.reporter.GetSpans())
	assert.EqualValues(t, 0, h.startedSpans("y"))
	assert.EqualValues(t, 0, h.startedSpans("n"))
}

func TestInjectUnknownFormatIsNoop(t *testing.T) {
	h := newHarness(t, true)
	span := h.tracer.BuildSpan("op").Start()

	err := h.tracer.Inject(span.Context(), propagation.Format("custom"), map[string]string{})
	assert.NoError(t, err)
}

func TestExtractUnknownFormat(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.tracer.Extract(propagation.Format("custom"), map[string]string{})
	assert.ErrorIs(t, err, veltrace.ErrSpanContextNotFound)
}

type recordingInjector struct {
	calls int
}

func (i *recordingInjector) Inject(ctx veltrace.SpanContext, carrier interface{}) error {
	i.calls++
	return nil
}

func TestRegisterInjectorLastWins(t *testing.T) {
	h := newHarness(t, true)

	first := &recordingInjector{}
	second := &recordingInjector{}
	h.tracer.RegisterInjector(propagation.TextMap, first)
	h.tracer.RegisterInjector(propagation.TextMap, second)

	span := h.tracer.BuildSpan("op").Start()
	require.NoError(t, h.tracer.Inject(span.Context(), propagation.TextMap, propagation.TextMapCarrier{}))

	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestBaggageUpdateMetrics(t *testing.T) {
	h := newHarness(t, true)

	span := h.tracer.BuildSpan("op").Start()
	span.SetBaggageItem("key", "value")

	assert.Equal(t, "value", span.BaggageItem("key"))
	assert.EqualValues(t, 1, h.metrics.GetCounter("baggage_updates", map[string]string{"result": "ok"}))
}

func TestSamplingPriorityTag(t *testing.T) {
	h := newHarness(t, true)

	span := h.tracer.BuildSpan("op").Start()
	require.True(t, span.Context().IsSampled())

	span.SetTag(veltrace.TagSamplingPriority, 0)
	assert.False(t, span.Context().IsSampled())

	span.SetTag(veltrace.TagSamplingPriority, 1)
	assert.True(t, span.Context().IsSampled())
	assert.True(t, span.Context().IsDebug())
}
