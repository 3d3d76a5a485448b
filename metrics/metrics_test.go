package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veltrace/veltrace-go/metrics"
	"github.com/veltrace/veltrace-go/metrics/metricstest"
)

func TestNewTracerMetrics(t *testing.T) {
	factory := metricstest.NewFactory()
	tm := metrics.NewTracerMetrics(factory)

	tm.SpansStartedSampled.Inc(1)
	tm.SpansStartedSampled.Inc(2)
	tm.TracesStartedNotSampled.Inc(1)
	tm.ReporterQueueLength.Update(7)

	assert.EqualValues(t, 3, factory.GetCounter("started_spans", map[string]string{"sampled": "y"}))
	assert.EqualValues(t, 0, factory.GetCounter("started_spans", map[string]string{"sampled": "n"}))
	assert.EqualValues(t, 1, factory.GetCounter("traces", map[string]string{"sampled": "n", "state": "started"}))
	assert.EqualValues(t, 7, factory.GetGauge("reporter_queue_length", nil))

	factory.Reset()
	assert.EqualValues(t, 0, factory.GetCounter("started_spans", map[string]string{"sampled": "y"}))
}

func TestNewTracerMetricsNilFactory(t *testing.T) {
	tm := metrics.NewTracerMetrics(nil)
	assert.NotNil(t, tm.SpansStartedSampled)
	tm.SpansStartedSampled.Inc(1) // discards without panicking
}
