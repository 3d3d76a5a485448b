package veltrace

import "time"

// SpanBuilder accumulates references, tags, and a start timestamp for
// one span, then resolves them into a started Span in a single Start
// call. A builder is not safe for concurrent use; it belongs to the
// goroutine that created it.
type SpanBuilder struct {
	tracer           *Tracer
	operationName    string
	references       []Reference
	tags             map[string]interface{}
	startTime        time.Time
	ignoreActiveSpan bool
}

// AsChildOf adds a child-of reference to the given context.
func (b *SpanBuilder) AsChildOf(ctx SpanContext) *SpanBuilder {
	return b.AddReference(ChildOf, ctx)
}

// AddReference appends a reference; declaration order is significant
// for identity selection and baggage merging.
func (b *SpanBuilder) AddReference(refType ReferenceType, ctx SpanContext) *SpanBuilder {
	b.references = append(b.references, Reference{Type: refType, Context: ctx})
	return b
}

// WithTag pre-declares a tag on the span.
func (b *SpanBuilder) WithTag(key string, value interface{}) *SpanBuilder {
	b.tags[key] = value
	return b
}

// WithStartTime sets an explicit start timestamp instead of the clock.
func (b *SpanBuilder) WithStartTime(startTime time.Time) *SpanBuilder {
	b.startTime = startTime
	return b
}

// IgnoreActiveSpan prevents the active-span scope from being consulted
// as an implicit parent.
func (b *SpanBuilder) IgnoreActiveSpan() *SpanBuilder {
	b.ignoreActiveSpan = true
	return b
}

// IsRPCServer reports whether the builder represents an inbound RPC
// boundary, i.e. carries span.kind=server.
func (b *SpanBuilder) IsRPCServer() bool {
	return b.tags[TagSpanKind] == SpanKindServer
}

// Start resolves identity, parentage, sampling, and baggage, emits the
// span/trace counters, and returns the started span.
//
// Resolution order:
//  1. If no declared reference carries a trace and a span is active in
//     scope, that span joins as an implicit child-of reference, treated
//     as if it had been declared first.
//  2. The first reference (in declaration order) whose context has a
//     trace defines the identity: trace id and flags are copied from
//     it and it becomes the parent.
//  3. With no identity-defining reference a new trace starts. A debug
//     correlation id or a sampling-only reference forces the decision;
//     otherwise the sampler is consulted, once, for this trace.
//  4. Baggage from all references is merged in declaration order, later
//     entries overwriting earlier ones.
func (b *SpanBuilder) Start() *Span {
	t := b.tracer

	startTime := b.startTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	// After Close the tracer hands out inert spans: never sampled,
	// never counted, never reported.
	if t.closed.Load() {
		return &Span{
			tracer:        t,
			operationName: b.operationName,
			startTime:     startTime,
			tags:          make(map[string]interface{}),
		}
	}

	references := b.references
	if !hasIdentityReference(references) && !b.ignoreActiveSpan {
		if active := t.scopes.Active(); active != nil {
			// Declared-first position: the active span wins identity
			// selection over explicit sampling-only references, and its
			// baggage yields to theirs on key collisions.
			references = prepend(references, Reference{Type: ChildOf, Context: active.Context()})
		}
	}

	ctx, newTrace := b.resolveContext(references)
	ctx.baggage = mergeBaggage(references)

	span := &Span{
		tracer:        t,
		context:       ctx,
		operationName: b.operationName,
		startTime:     startTime,
		tags:          make(map[string]interface{}, len(b.tags)),
		references:    realReferences(references),
	}
	for k, v := range b.tags {
		span.setTagLocked(k, v)
	}

	t.emitStartMetrics(span.context, newTrace)
	return span
}

// resolveContext runs identity assignment and sampling inheritance.
func (b *SpanBuilder) resolveContext(references []Reference) (SpanContext, bool) {
	t := b.tracer

	if identity, ok := identityReference(references); ok {
		// Child span in an existing trace: flags are copied verbatim,
		// the sampler is never consulted.
		return SpanContext{
			traceID:  identity.Context.traceID,
			spanID:   SpanID(t.randomID()),
			parentID: identity.Context.spanID,
			flags:    identity.Context.flags,
		}, false
	}

	ctx := SpanContext{}
	ctx.traceID.Low = t.randomID()
	if t.traceID128Bit {
		ctx.traceID.High = t.randomID()
	}
	ctx.spanID = SpanID(t.randomID())

	switch {
	case b.applyDebugID(references):
		ctx.flags = FlagSampled | FlagDebug
	default:
		if flags, forced := forcedDecision(references); forced {
			ctx.flags = flags
		} else if sampled, samplerTags := t.sampler.IsSampled(ctx.traceID, b.operationName); sampled {
			ctx.flags = FlagSampled
			for _, tag := range samplerTags {
				b.tags[tag.Key] = tag.Value
			}
		}
	}
	return ctx, true
}

// applyDebugID looks for a debug correlation id among the references
// and, if the throttler permits it, tags the span with it.
func (b *SpanBuilder) applyDebugID(references []Reference) bool {
	for _, ref := range references {
		if ref.Context.isDebugIDContainerOnly() && b.tracer.isDebugAllowed(b.operationName) {
			b.tags[TagDebugID] = ref.Context.debugID
			return true
		}
	}
	return false
}

// emitStartMetrics counts the started span and, for the new-trace
// branch only, the started trace. Child spans never touch the traces
// counter, keeping trace volume distinct from span volume.
func (t *Tracer) emitStartMetrics(ctx SpanContext, newTrace bool) {
	if ctx.IsSampled() {
		t.metrics.SpansStartedSampled.Inc(1)
		if newTrace {
			t.metrics.TracesStartedSampled.Inc(1)
		}
		return
	}
	t.metrics.SpansStartedNotSampled.Inc(1)
	if newTrace {
		t.metrics.TracesStartedNotSampled.Inc(1)
	}
}

// identityReference selects the first reference, in declaration order,
// whose context denotes a real trace.
func identityReference(references []Reference) (Reference, bool) {
	for _, ref := range references {
		if ref.Context.HasTrace() {
			return ref, true
		}
	}
	return Reference{}, false
}

func hasIdentityReference(references []Reference) bool {
	_, ok := identityReference(references)
	return ok
}

// forcedDecision returns the flags of the first sampling-only reference
// that carries any decision bits. The forced flags are adopted wholesale
// so debug and firehose bits survive.
func forcedDecision(references []Reference) (byte, bool) {
	for _, ref := range references {
		if !ref.Context.HasTrace() && !ref.Context.isDebugIDContainerOnly() && ref.Context.flags != 0 {
			return ref.Context.flags, true
		}
	}
	return 0, false
}

// mergeBaggage folds the baggage of every reference in declaration
// order, later entries overwriting earlier ones. This is how a
// sampling-only context's baggage rides along with an unrelated real
// trace it does not define the identity of.
func mergeBaggage(references []Reference) map[string]string {
	var merged map[string]string
	for _, ref := range references {
		ref.Context.ForeachBaggageItem(func(k, v string) bool {
			if merged == nil {
				merged = make(map[string]string)
			}
			merged[k] = v
			return true
		})
	}
	return merged
}

// realReferences keeps only references to actual spans; sampling-only
// contexts influence the decision but are never recorded as structure.
func realReferences(references []Reference) []Reference {
	kept := references[:0:0]
	for _, ref := range references {
		if ref.Context.IsValid() {
			kept = append(kept, ref)
		}
	}
	return kept
}

func prepend(references []Reference, ref Reference) []Reference {
	out := make([]Reference, 0, len(references)+1)
	out = append(out, ref)
	return append(out, references...)
}
