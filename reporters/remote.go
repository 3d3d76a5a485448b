package reporters

import (
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/metrics"
)

const (
	defaultQueueSize     = 1000
	defaultFlushInterval = time.Second
)

// Sender ships batches of spans over the wire. Append buffers one span
// and returns how many were flushed as a side effect; Flush forces the
// current buffer out. Senders are used from a single goroutine.
type Sender interface {
	Append(span *veltrace.Span) (flushed int, err error)
	Flush() (flushed int, err error)
	Close() error
}

// Remote buffers finished spans in a bounded queue and drains them to a
// Sender on a background goroutine, so Report never blocks the
// finishing span. When the queue is full spans are dropped and counted.
type Remote struct {
	sender  Sender
	logger  *zap.Logger
	metrics *metrics.TracerMetrics

	queue         chan *veltrace.Span
	flushInterval time.Duration
	done          chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// RemoteOption configures a Remote reporter.
type RemoteOption func(*Remote)

// WithQueueSize bounds the in-flight span queue.
func WithQueueSize(size int) RemoteOption {
	return func(r *Remote) {
		if size > 0 {
			r.queue = make(chan *veltrace.Span, size)
		}
	}
}

// WithFlushInterval sets how often a partial batch is forced out.
func WithFlushInterval(interval time.Duration) RemoteOption {
	return func(r *Remote) {
		if interval > 0 {
			r.flushInterval = interval
		}
	}
}

// WithLogger sets the logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) RemoteOption {
	return func(r *Remote) { r.logger = logger }
}

// WithMetrics sets the metrics bundle used to count reporter outcomes.
func WithMetrics(tm *metrics.TracerMetrics) RemoteOption {
	return func(r *Remote) { r.metrics = tm }
}

// NewRemote creates a buffered reporter draining into the sender and
// starts its flush loop.
func NewRemote(sender Sender, opts ...RemoteOption) *Remote {
	r := &Remote{
		sender:        sender,
		logger:        zap.NewNop(),
		metrics:       metrics.NewTracerMetrics(metrics.NullFactory),
		queue:         make(chan *veltrace.Span, defaultQueueSize),
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.drainLoop()
	return r
}

// Report implements veltrace.Reporter. A full queue drops the span
// rather than block the caller.
func (r *Remote) Report(span *veltrace.Span) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.ReporterDropped.Inc(1)
		return
	}
	select {
	case r.queue <- span:
		r.metrics.ReporterQueueLength.Update(int64(len(r.queue)))
	default:
		r.metrics.ReporterDropped.Inc(1)
		r.logger.Warn("span queue full, dropping span",
			zap.Stringer("trace_id", span.Context().TraceID()),
			zap.String("operation", span.OperationName()),
		)
	}
}

// Close drains the queue, flushes the sender, and closes it. Called
// exactly once by the tracer.
func (r *Remote) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done

		_, flushErr := r.sender.Flush()
		r.closeErr = multierr.Append(flushErr, r.sender.Close())
	})
	return r.closeErr
}

func (r *Remote) drainLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case span, ok := <-r.queue:
			if !ok {
				return
			}
			r.metrics.ReporterQueueLength.Update(int64(len(r.queue)))
			if flushed, err := r.sender.Append(span); err != nil {
				r.metrics.ReporterFailure.Inc(int64(flushed))
				r.logger.Error("failed to submit spans", zap.Error(err))
			} else if flushed > 0 {
				r.metrics.ReporterSuccess.Inc(int64(flushed))
			}
		case <-ticker.C:
			if flushed, err := r.sender.Flush(); err != nil {
				r.metrics.ReporterFailure.Inc(int64(flushed))
				r.logger.Error("failed to flush spans", zap.Error(err))
			} else if flushed > 0 {
				r.metrics.ReporterSuccess.Inc(int64(flushed))
			}
		}
	}
}
