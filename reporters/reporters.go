// Package reporters provides the built-in destinations for finished
// spans.
//
// The tracer hands every finished sampled span to exactly one Reporter.
// Logging and InMemory are for development and tests; Remote buffers
// spans and ships them to a collector through a Sender; Composite fans
// out to several reporters at once.
package reporters

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	veltrace "github.com/veltrace/veltrace-go"
)

// Logging writes one structured log record per finished span.
type Logging struct {
	logger *zap.Logger
}

// NewLogging creates a reporter logging spans at info level.
func NewLogging(logger *zap.Logger) *Logging {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logging{logger: logger}
}

// Report implements veltrace.Reporter.
func (r *Logging) Report(span *veltrace.Span) {
	ctx := span.Context()
	fields := []zap.Field{
		zap.Stringer("trace_id", ctx.TraceID()),
		zap.Stringer("span_id", ctx.SpanID()),
		zap.String("operation", span.OperationName()),
		zap.Duration("duration", span.Duration()),
	}
	if ctx.ParentID() != 0 {
		fields = append(fields, zap.Stringer("parent_id", ctx.ParentID()))
	}
	r.logger.Info("span finished", fields...)
}

// Close implements veltrace.Reporter.
func (r *Logging) Close() error { return nil }

// InMemory retains finished spans for inspection in tests.
type InMemory struct {
	mu    sync.Mutex
	spans []*veltrace.Span
}

// NewInMemory creates an empty in-memory reporter.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Report implements veltrace.Reporter.
func (r *InMemory) Report(span *veltrace.Span) {
	r.mu.Lock()
	r.spans = append(r.spans, span)
	r.mu.Unlock()
}

// GetSpans returns a snapshot of the reported spans.
func (r *InMemory) GetSpans() []*veltrace.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	spans := make([]*veltrace.Span, len(r.spans))
	copy(spans, r.spans)
	return spans
}

// Reset discards all retained spans.
func (r *InMemory) Reset() {
	r.mu.Lock()
	r.spans = nil
	r.mu.Unlock()
}

// Close implements veltrace.Reporter.
func (r *InMemory) Close() error { return nil }

// Composite fans every span out to several reporters.
type Composite struct {
	reporters []veltrace.Reporter
}

// NewComposite creates a reporter delegating to each given reporter in
// order.
func NewComposite(reporters ...veltrace.Reporter) *Composite {
	return &Composite{reporters: reporters}
}

// Report implements veltrace.Reporter.
func (r *Composite) Report(span *veltrace.Span) {
	for _, reporter := range r.reporters {
		reporter.Report(span)
	}
}

// Close closes every delegate, attempting all of them and aggregating
// failures.
func (r *Composite) Close() error {
	var err error
	for _, reporter := range r.reporters {
		err = multierr.Append(err, reporter.Close())
	}
	return err
}
