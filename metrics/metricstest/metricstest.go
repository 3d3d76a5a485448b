// Package metricstest provides an in-memory metrics factory for
// asserting on counter and gauge values in tests.
package metricstest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/veltrace/veltrace-go/metrics"
)

// Factory records every increment in memory. Safe for concurrent use.
type Factory struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]int64
}

// NewFactory creates an empty in-memory factory.
func NewFactory() *Factory {
	return &Factory{
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
	}
}

// Counter implements metrics.Factory.
func (f *Factory) Counter(name string, tags map[string]string) metrics.Counter {
	return &counter{factory: f, key: key(name, tags)}
}

// Gauge implements metrics.Factory.
func (f *Factory) Gauge(name string, tags map[string]string) metrics.Gauge {
	return &gauge{factory: f, key: key(name, tags)}
}

// GetCounter returns the current value of a counter, zero if it was
// never incremented.
func (f *Factory) GetCounter(name string, tags map[string]string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[key(name, tags)]
}

// GetGauge returns the last value written to a gauge.
func (f *Factory) GetGauge(name string, tags map[string]string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gauges[key(name, tags)]
}

// Reset clears all recorded values.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = make(map[string]int64)
	f.gauges = make(map[string]int64)
}

type counter struct {
	factory *Factory
	key     string
}

func (c *counter) Inc(delta int64) {
	c.factory.mu.Lock()
	c.factory.counters[c.key] += delta
	c.factory.mu.Unlock()
}

type gauge struct {
	factory *Factory
	key     string
}

func (g *gauge) Update(value int64) {
	g.factory.mu.Lock()
	g.factory.gauges[g.key] = value
	g.factory.mu.Unlock()
}

// key flattens name+tags into a stable map key, e.g.
// "traces|sampled=y,state=started".
func key(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(pairs)
	return name + "|" + strings.Join(pairs, ",")
}
