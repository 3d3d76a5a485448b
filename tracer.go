package veltrace

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/veltrace/veltrace-go/baggage"
	"github.com/veltrace/veltrace-go/internal/idgen"
	"github.com/veltrace/veltrace-go/internal/throttler"
	"github.com/veltrace/veltrace-go/metrics"
	"github.com/veltrace/veltrace-go/propagation"
)

// Construction-time configuration errors. These are fatal: a tracer is
// never silently defaulted into existence.
var (
	ErrInvalidServiceName = errors.New("veltrace: service name must be non-empty")
	ErrNilSampler         = errors.New("veltrace: sampler must not be nil")
	ErrNilReporter        = errors.New("veltrace: reporter must not be nil")
)

// Tracer creates spans and decides their trace identity, parentage,
// sampling flags, and baggage. One instance is shared by the whole
// process and is safe for concurrent use without external locking.
type Tracer struct {
	serviceName    string
	sampler        Sampler
	reporter       Reporter
	metrics        *metrics.TracerMetrics
	logger         *zap.Logger
	baggageManager baggage.RestrictionManager
	debugThrottler throttler.Throttler
	scopes         *ScopeManager
	ids            *idgen.Generator
	headers        HeadersConfig
	traceID128Bit  bool
	tags           []Tag

	registryMu sync.RWMutex
	injectors  map[propagation.Format]Injector
	extractors map[propagation.Format]Extractor

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewTracer creates a tracer for the given service. The sampler and
// reporter are required; everything else has working defaults and is
// tuned through options.
func NewTracer(serviceName string, sampler Sampler, reporter Reporter, opts ...TracerOption) (*Tracer, error) {
	if strings.TrimSpace(serviceName) == "" {
		return nil, ErrInvalidServiceName
	}
	if sampler == nil {
		return nil, ErrNilSampler
	}
	if reporter == nil {
		return nil, ErrNilReporter
	}

	t := &Tracer{
		serviceName:    serviceName,
		sampler:        sampler,
		reporter:       reporter,
		logger:         zap.NewNop(),
		baggageManager: baggage.NewDefaultRestrictionManager(0),
		debugThrottler: throttler.Default{},
		scopes:         NewScopeManager(),
		ids:            idgen.New(),
		headers:        defaultHeadersConfig,
		injectors:      make(map[propagation.Format]Injector),
		extractors:     make(map[propagation.Format]Extractor),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.metrics == nil {
		t.metrics = metrics.NewTracerMetrics(metrics.NullFactory)
	}
	t.headers = t.headers.applyDefaults()

	// Built-in codecs fill whatever the options did not register.
	text := &textMapPropagator{headers: t.headers}
	httpText := &textMapPropagator{headers: t.headers, urlEncode: true}
	binary := &binaryPropagator{}
	if _, ok := t.injectors[propagation.TextMap]; !ok {
		t.injectors[propagation.TextMap] = text
	}
	if _, ok := t.extractors[propagation.TextMap]; !ok {
		t.extractors[propagation.TextMap] = text
	}
	if _, ok := t.injectors[propagation.HTTPHeaders]; !ok {
		t.injectors[propagation.HTTPHeaders] = httpText
	}
	if _, ok := t.extractors[propagation.HTTPHeaders]; !ok {
		t.extractors[propagation.HTTPHeaders] = httpText
	}
	if _, ok := t.injectors[propagation.Binary]; !ok {
		t.injectors[propagation.Binary] = binary
	}
	if _, ok := t.extractors[propagation.Binary]; !ok {
		t.extractors[propagation.Binary] = binary
	}

	t.tags = append(t.tags, processTags()...)

	return t, nil
}

// ServiceName returns the service this tracer instruments.
func (t *Tracer) ServiceName() string { return t.serviceName }

// Sampler returns the sampler in use.
func (t *Tracer) Sampler() Sampler { return t.sampler }

// Reporter returns the reporter in use.
func (t *Tracer) Reporter() Reporter { return t.reporter }

// Tags returns the process-level tags attached to every exported batch.
func (t *Tracer) Tags() []Tag { return t.tags }

// UsesTraceID128Bit reports whether new traces get 128-bit ids.
func (t *Tracer) UsesTraceID128Bit() bool { return t.traceID128Bit }

// BuildSpan starts accumulating a new span for the given operation.
func (t *Tracer) BuildSpan(operationName string) *SpanBuilder {
	return &SpanBuilder{
		tracer:        t,
		operationName: operationName,
		tags:          make(map[string]interface{}),
	}
}

// ActivateSpan pushes the span onto the active-span stack and returns a
// scope whose Close pops exactly that span.
func (t *Tracer) ActivateSpan(span *Span) *Scope {
	return t.scopes.Activate(span)
}

// ActiveSpan returns the top of the active-span stack, nil when empty.
func (t *Tracer) ActiveSpan() *Span {
	return t.scopes.Active()
}

// RegisterInjector binds an injector to a format; the last registration
// for a format wins.
func (t *Tracer) RegisterInjector(format propagation.Format, injector Injector) {
	t.registryMu.Lock()
	t.injectors[format] = injector
	t.registryMu.Unlock()
}

// RegisterExtractor binds an extractor to a format; the last
// registration for a format wins.
func (t *Tracer) RegisterExtractor(format propagation.Format, extractor Extractor) {
	t.registryMu.Lock()
	t.extractors[format] = extractor
	t.registryMu.Unlock()
}

// Inject serializes the context into the carrier using the codec
// registered for the format. An unregistered format is a no-op, never
// an error: propagation failures must not break request processing.
func (t *Tracer) Inject(ctx SpanContext, format propagation.Format, carrier interface{}) error {
	t.registryMu.RLock()
	injector := t.injectors[format]
	t.registryMu.RUnlock()
	if injector == nil {
		return nil
	}
	return injector.Inject(ctx, carrier)
}

// Extract deserializes a context from the carrier. An unregistered
// format, like an empty carrier, yields ErrSpanContextNotFound.
func (t *Tracer) Extract(format propagation.Format, carrier interface{}) (SpanContext, error) {
	t.registryMu.RLock()
	extractor := t.extractors[format]
	t.registryMu.RUnlock()
	if extractor == nil {
		return SpanContext{}, ErrSpanContextNotFound
	}
	return extractor.Extract(carrier)
}

// Close shuts the tracer down: the reporter is flushed and closed, then
// the sampler, then any closeable baggage manager and throttler. Each
// close is attempted even if an earlier one fails; failures are
// aggregated. Safe to call more than once; spans created afterwards are
// unsampled no-ops.
func (t *Tracer) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err := t.reporter.Close()
		err = multierr.Append(err, t.sampler.Close())
		if closer, ok := t.baggageManager.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
		err = multierr.Append(err, t.debugThrottler.Close())
		t.closeErr = err
	})
	return t.closeErr
}

// reportSpan hands a finished span to the reporter and counts it.
// Only sampled spans reach the reporter.
func (t *Tracer) reportSpan(span *Span) {
	if span.context.IsSampled() {
		t.metrics.SpansFinishedSampled.Inc(1)
		if !t.closed.Load() {
			t.reporter.Report(span)
		}
		return
	}
	t.metrics.SpansFinishedNotSampled.Inc(1)
}

// isDebugAllowed asks the throttler whether a forced debug trace may
// start for this operation.
func (t *Tracer) isDebugAllowed(operation string) bool {
	return t.debugThrottler.IsAllowed(operation)
}

// randomID draws the next identifier from the process-wide source.
func (t *Tracer) randomID() uint64 {
	return t.ids.Uint64()
}

// processTags identifies this tracer instance in exported data.
func processTags() []Tag {
	tags := []Tag{
		{Key: TagTracerVersion, Value: Version},
		{Key: TagClientUUID, Value: uuid.NewString()},
	}
	if hostname, err := os.Hostname(); err == nil {
		tags = append(tags, Tag{Key: TagHostname, Value: hostname})
	}
	if ip := localIP(); ip != "" {
		tags = append(tags, Tag{Key: TagTracerIP, Value: ip})
	}
	return tags
}

// localIP returns the first non-loopback unicast address, empty if none
// can be determined.
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip := ipNet.IP.To4(); ip != nil {
			return ip.String()
		}
	}
	return ""
}
