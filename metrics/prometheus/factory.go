// Package prometheus exposes tracer metrics through a prometheus
// registry.
package prometheus

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veltrace/veltrace-go/metrics"
)

const namespace = "veltrace_tracer"

// Factory creates prometheus-backed counters and gauges. Vectors are
// lazily registered per metric name and cached, so repeated requests
// for the same name with different tag values share one vector.
type Factory struct {
	registerer prometheus.Registerer

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// Option configures a Factory.
type Option func(*Factory)

// WithRegisterer overrides the default prometheus registerer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(f *Factory) { f.registerer = r }
}

// New creates a Factory registering against prometheus.DefaultRegisterer
// unless overridden.
func New(opts ...Option) *Factory {
	f := &Factory{
		registerer: prometheus.DefaultRegisterer,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Counter implements metrics.Factory.
func (f *Factory) Counter(name string, tags map[string]string) metrics.Counter {
	labels, values := split(tags)

	f.mu.Lock()
	vec, ok := f.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      name,
		}, labels)
		if err := f.registerer.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
		f.counters[name] = vec
	}
	f.mu.Unlock()

	return promCounter{vec.WithLabelValues(values...)}
}

// Gauge implements metrics.Factory.
func (f *Factory) Gauge(name string, tags map[string]string) metrics.Gauge {
	labels, values := split(tags)

	f.mu.Lock()
	vec, ok := f.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      name,
		}, labels)
		if err := f.registerer.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prometheus.GaugeVec)
			}
		}
		f.gauges[name] = vec
	}
	f.mu.Unlock()

	return promGauge{vec.WithLabelValues(values...)}
}

type promCounter struct {
	counter prometheus.Counter
}

func (c promCounter) Inc(delta int64) { c.counter.Add(float64(delta)) }

type promGauge struct {
	gauge prometheus.Gauge
}

func (g promGauge) Update(value int64) { g.gauge.Set(float64(value)) }

// split orders tag keys deterministically so all series of one metric
// declare the same label set.
func split(tags map[string]string) (labels, values []string) {
	labels = make([]string, 0, len(tags))
	for k := range tags {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	values = make([]string, len(labels))
	for i, k := range labels {
		values[i] = tags[k]
	}
	return labels, values
}
