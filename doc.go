/*
Package veltrace is an in-process distributed-tracing client: it
creates, propagates, and finishes spans so the causal graph of an
end-to-end request can be reconstructed later.

# Overview

A Tracer is created once at bootstrap with a service name, a Sampler,
and a Reporter, then shared by the whole process:

	reporter := reporters.NewLogging(logger)
	tracer, err := veltrace.NewTracer("checkout", samplers.NewConst(true), reporter)
	if err != nil {
		return err
	}
	defer tracer.Close()

Spans are accumulated through a builder and started in one call that
resolves identity, parentage, sampling, and baggage atomically:

	span := tracer.BuildSpan("charge-card").
		AsChildOf(parent.Context()).
		WithTag("payment.provider", "stripe").
		Start()
	defer span.Finish()

# Trace identity

Every span context carries a trace id, span id, parent id, a flag
bitmask, and immutable baggage. Sampling is decided once when a trace
starts and the flags are copied verbatim to every descendant; the
sampler is never re-consulted for child spans. A context with flags but
no trace id is a sampling-only context: it forces the decision for the
next new trace without becoming anyone's parent.

# Propagation

Tracer.Inject and Tracer.Extract serialize contexts across process
boundaries through per-format codecs. Text-map, HTTP-header, and binary
codecs are built in; additional formats can be registered and the last
registration for a format wins. Unknown formats degrade to no-ops so a
propagation misconfiguration never breaks request handling.

# Subpackages

	samplers     const, probabilistic, rate-limiting, remotely controlled
	reporters    logging, in-memory, composite, buffered remote
	baggage      baggage write policies, local and remote
	propagation  format tokens and carrier types
	metrics      counter/gauge sinks (prometheus and test factories)
	config       env/YAML bootstrap
	middleware   gin and gRPC instrumentation adapters
*/
package veltrace
