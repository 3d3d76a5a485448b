/*
Package metrics defines the counter and gauge sinks the tracer emits into.

# Overview

The tracer never talks to a metrics backend directly. It asks a Factory
for named counters and gauges once, at construction time, and increments
them on the hot path. Swapping the Factory swaps the backend:

  - metrics/prometheus exposes everything through a prometheus registry
  - metrics/metricstest keeps values in memory for test assertions
  - NullFactory discards everything (the default)

# Metric surface

	started_spans{sampled=y|n}           spans started, by final sampling bit
	finished_spans{sampled=y|n}          spans finished
	traces{sampled=y|n,state=started}    new traces only, never child spans
	baggage_updates{result=ok|denied|truncated}
	reporter_spans{result=ok|err|dropped}
	reporter_queue_length                gauge
	sampler_queries{result=ok|err}       remote sampler polling
	sampler_updates{result=ok|err}
	baggage_restrictions_updates{result=ok|err}
*/
package metrics
