package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterSharesVectorAcrossTagValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	f := New(WithRegisterer(registry))

	sampled := f.Counter("started_spans", map[string]string{"sampled": "y"})
	notSampled := f.Counter("started_spans", map[string]string{"sampled": "n"})

	sampled.Inc(2)
	notSampled.Inc(1)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "veltrace_tracer_started_spans", families[0].GetName())
	assert.Len(t, families[0].GetMetric(), 2)
}

func TestGaugeUpdate(t *testing.T) {
	registry := prometheus.NewRegistry()
	f := New(WithRegisterer(registry))

	g := f.Gauge("reporter_queue_length", nil)
	g.Update(42)
	g.Update(7)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, float64(7), families[0].GetMetric()[0].GetGauge().GetValue())
}
