// Package samplers provides the built-in sampling strategies consulted
// when a new trace starts.
//
// A sampler sees each trace exactly once, at the root span. Child spans
// inherit the decision through their context flags and never reach the
// sampler. All samplers here are safe for concurrent use.
package samplers

import (
	"fmt"

	"golang.org/x/time/rate"

	veltrace "github.com/veltrace/veltrace-go"
)

// Strategy type names reported in the sampler.type tag.
const (
	TypeConst         = "const"
	TypeProbabilistic = "probabilistic"
	TypeRateLimiting  = "ratelimiting"
	TypeRemote        = "remote"
)

// Const always answers with the same decision.
type Const struct {
	decision bool
	tags     []veltrace.Tag
}

// NewConst creates a sampler that samples everything or nothing.
func NewConst(decision bool) *Const {
	return &Const{
		decision: decision,
		tags: []veltrace.Tag{
			{Key: veltrace.TagSamplerType, Value: TypeConst},
			{Key: veltrace.TagSamplerParam, Value: decision},
		},
	}
}

// IsSampled implements veltrace.Sampler.
func (s *Const) IsSampled(id veltrace.TraceID, operation string) (bool, []veltrace.Tag) {
	return s.decision, s.tags
}

// Close implements veltrace.Sampler.
func (s *Const) Close() error { return nil }

// Probabilistic samples a fixed fraction of traces by comparing the
// random trace id against a precomputed boundary, so the decision is a
// pure function of the id.
type Probabilistic struct {
	rate     float64
	boundary uint64
	tags     []veltrace.Tag
}

// maxRandom masks the trace id to 63 bits so the boundary multiply
// stays exact in a float64.
const maxRandom = uint64(1)<<63 - 1

// NewProbabilistic creates a sampler keeping the given fraction of
// traces; the rate must be within [0, 1].
func NewProbabilistic(samplingRate float64) (*Probabilistic, error) {
	if samplingRate < 0 || samplingRate > 1 {
		return nil, fmt.Errorf("sampling rate must be between 0 and 1, got %v", samplingRate)
	}
	return &Probabilistic{
		rate:     samplingRate,
		boundary: uint64(samplingRate * float64(maxRandom)),
		tags: []veltrace.Tag{
			{Key: veltrace.TagSamplerType, Value: TypeProbabilistic},
			{Key: veltrace.TagSamplerParam, Value: samplingRate},
		},
	}, nil
}

// SamplingRate returns the configured fraction.
func (s *Probabilistic) SamplingRate() float64 { return s.rate }

// IsSampled implements veltrace.Sampler.
func (s *Probabilistic) IsSampled(id veltrace.TraceID, operation string) (bool, []veltrace.Tag) {
	return id.Low&maxRandom < s.boundary, s.tags
}

// Close implements veltrace.Sampler.
func (s *Probabilistic) Close() error { return nil }

// RateLimiting caps sampled traces per second with a token bucket.
type RateLimiting struct {
	limiter *rate.Limiter
	max     float64
	tags    []veltrace.Tag
}

// NewRateLimiting creates a sampler admitting at most maxTracesPerSecond
// sampled traces, with a burst of one full second's worth.
func NewRateLimiting(maxTracesPerSecond float64) *RateLimiting {
	burst := int(maxTracesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimiting{
		limiter: rate.NewLimiter(rate.Limit(maxTracesPerSecond), burst),
		max:     maxTracesPerSecond,
		tags: []veltrace.Tag{
			{Key: veltrace.TagSamplerType, Value: TypeRateLimiting},
			{Key: veltrace.TagSamplerParam, Value: maxTracesPerSecond},
		},
	}
}

// IsSampled implements veltrace.Sampler.
func (s *RateLimiting) IsSampled(id veltrace.TraceID, operation string) (bool, []veltrace.Tag) {
	return s.limiter.Allow(), s.tags
}

// Close implements veltrace.Sampler.
func (s *RateLimiting) Close() error { return nil }
