package reporters

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/metrics"
	"github.com/veltrace/veltrace-go/metrics/metricstest"
)

// fakeSender batches spans in memory, flushing every batchSize appends.
// An optional gate blocks Append so tests can fill the reporter queue.
type fakeSender struct {
	mu        sync.Mutex
	batchSize int
	buffer    []*veltrace.Span
	flushed   [][]*veltrace.Span
	closed    bool
	gate      chan struct{}
}

func (s *fakeSender) Append(span *veltrace.Span) (int, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, span)
	if s.batchSize > 0 && len(s.buffer) >= s.batchSize {
		return s.flushLocked(), nil
	}
	return 0, nil
}

func (s *fakeSender) Flush() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(), nil
}

func (s *fakeSender) flushLocked() int {
	if len(s.buffer) == 0 {
		return 0
	}
	batch := s.buffer
	s.buffer = nil
	s.flushed = append(s.flushed, batch)
	return len(batch)
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSender) flushedSpans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, batch := range s.flushed {
		total += len(batch)
	}
	return total
}

func TestRemoteReporterFlushesOnClose(t *testing.T) {
	sender := &fakeSender{}
	factory := metricstest.NewFactory()
	reporter := NewRemote(sender,
		WithFlushInterval(time.Hour), // only the close flush applies
		WithMetrics(metrics.NewTracerMetrics(factory)),
	)

	span := startSpan(t, reporter)
	reporter.Report(span)
	reporter.Report(span)
	reporter.Report(span)

	require.NoError(t, reporter.Close())
	assert.Equal(t, 3, sender.flushedSpans())
	assert.True(t, sender.closed)
}

func TestRemoteReporterBatchFlush(t *testing.T) {
	sender := &fakeSender{batchSize: 2}
	factory := metricstest.NewFactory()
	reporter := NewRemote(sender,
		WithFlushInterval(time.Hour),
		WithMetrics(metrics.NewTracerMetrics(factory)),
	)
	defer reporter.Close()

	span := startSpan(t, reporter)
	reporter.Report(span)
	reporter.Report(span)

	require.Eventually(t, func() bool {
		return sender.flushedSpans() == 2
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, factory.GetCounter("reporter_spans", map[string]string{"result": "ok"}))
}

func TestRemoteReporterPeriodicFlush(t *testing.T) {
	sender := &fakeSender{}
	reporter := NewRemote(sender, WithFlushInterval(10*time.Millisecond))
	defer reporter.Close()

	span := startSpan(t, reporter)
	reporter.Report(span)

	require.Eventually(t, func() bool {
		return sender.flushedSpans() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRemoteReporterDropsWhenQueueFull(t *testing.T) {
	gate := make(chan struct{})
	sender := &fakeSender{gate: gate}
	factory := metricstest.NewFactory()
	reporter := NewRemote(sender,
		WithQueueSize(1),
		WithFlushInterval(time.Hour),
		WithMetrics(metrics.NewTracerMetrics(factory)),
	)

	span := startSpan(t, reporter)

	// First span is picked up by the drain loop and parks on the gate.
	reporter.Report(span)
	require.Eventually(t, func() bool {
		return factory.GetGauge("reporter_queue_length", nil) == 0
	}, time.Second, time.Millisecond)

	// Second fills the queue, third has nowhere to go.
	reporter.Report(span)
	reporter.Report(span)
	assert.EqualValues(t, 1, factory.GetCounter("reporter_spans", map[string]string{"result": "dropped"}))

	close(gate)
	require.NoError(t, reporter.Close())
}

func TestRemoteReporterReportAfterClose(t *testing.T) {
	sender := &fakeSender{}
	factory := metricstest.NewFactory()
	reporter := NewRemote(sender, WithMetrics(metrics.NewTracerMetrics(factory)))

	span := startSpan(t, reporter)
	require.NoError(t, reporter.Close())
	require.NoError(t, reporter.Close())

	reporter.Report(span)
	assert.EqualValues(t, 1, factory.GetCounter("reporter_spans", map[string]string{"result": "dropped"}))
	assert.Equal(t, 0, sender.flushedSpans())
}
