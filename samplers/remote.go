package samplers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/metrics"
)

const defaultPollInterval = time.Minute

// Strategy type tokens returned by the sampling endpoint.
const (
	strategyProbabilistic = "PROBABILISTIC"
	strategyRateLimiting  = "RATE_LIMITING"
)

// strategyResponse is the wire shape of one strategy fetch.
type strategyResponse struct {
	StrategyType          string `json:"strategyType"`
	ProbabilisticSampling *struct {
		SamplingRate float64 `json:"samplingRate"`
	} `json:"probabilisticSampling"`
	RateLimitingSampling *struct {
		MaxTracesPerSecond float64 `json:"maxTracesPerSecond"`
	} `json:"rateLimitingSampling"`
}

// Remote periodically fetches the sampling strategy for a service from
// a central endpoint and delegates decisions to the fetched strategy.
// Until the first successful fetch it uses a local fallback sampler.
type Remote struct {
	serviceName string
	endpoint    string
	interval    time.Duration
	client      *retryablehttp.Client
	logger      *zap.Logger
	metrics     *metrics.TracerMetrics

	mu       sync.RWMutex
	delegate veltrace.Sampler

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// RemoteOption configures a Remote sampler.
type RemoteOption func(*Remote)

// WithPollInterval sets how often the strategy is re-fetched.
func WithPollInterval(interval time.Duration) RemoteOption {
	return func(s *Remote) { s.interval = interval }
}

// WithInitialSampler sets the sampler used until the first successful
// fetch; defaults to probabilistic at 0.001.
func WithInitialSampler(sampler veltrace.Sampler) RemoteOption {
	return func(s *Remote) { s.delegate = sampler }
}

// WithLogger sets the logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) RemoteOption {
	return func(s *Remote) { s.logger = logger }
}

// WithMetrics sets the metrics bundle used to count fetch outcomes.
func WithMetrics(tm *metrics.TracerMetrics) RemoteOption {
	return func(s *Remote) { s.metrics = tm }
}

// NewRemote creates a remotely controlled sampler polling
// endpoint/sampling?service=<serviceName> and starts its poll loop.
func NewRemote(serviceName, endpoint string, opts ...RemoteOption) *Remote {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2

	initial, _ := NewProbabilistic(0.001)
	s := &Remote{
		serviceName: serviceName,
		endpoint:    endpoint,
		interval:    defaultPollInterval,
		client:      client,
		logger:      zap.NewNop(),
		metrics:     metrics.NewTracerMetrics(metrics.NullFactory),
		delegate:    initial,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.pollLoop()
	return s
}

// IsSampled implements veltrace.Sampler by delegating to the currently
// fetched strategy.
func (s *Remote) IsSampled(id veltrace.TraceID, operation string) (bool, []veltrace.Tag) {
	s.mu.RLock()
	delegate := s.delegate
	s.mu.RUnlock()
	return delegate.IsSampled(id, operation)
}

// Close stops the poll loop and waits for it to exit. Called exactly
// once by the tracer.
func (s *Remote) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}

func (s *Remote) pollLoop() {
	defer close(s.done)

	s.refresh()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refresh()
		case <-s.stop:
			return
		}
	}
}

func (s *Remote) refresh() {
	strategy, err := s.fetch()
	if err != nil {
		s.metrics.SamplerQueryFailure.Inc(1)
		s.logger.Warn("failed to fetch sampling strategy",
			zap.String("service", s.serviceName),
			zap.Error(err),
		)
		return
	}
	s.metrics.SamplerQuerySuccess.Inc(1)

	delegate, err := buildSampler(strategy)
	if err != nil {
		s.metrics.SamplerUpdateFailure.Inc(1)
		s.logger.Warn("rejected sampling strategy",
			zap.String("service", s.serviceName),
			zap.Error(err),
		)
		return
	}

	s.mu.Lock()
	s.delegate = delegate
	s.mu.Unlock()
	s.metrics.SamplerUpdateSuccess.Inc(1)
}

func (s *Remote) fetch() (*strategyResponse, error) {
	u := fmt.Sprintf("%s/sampling?service=%s", s.endpoint, url.QueryEscape(s.serviceName))
	resp, err := s.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sampling endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var strategy strategyResponse
	if err := json.Unmarshal(body, &strategy); err != nil {
		return nil, fmt.Errorf("failed to parse sampling strategy: %w", err)
	}
	return &strategy, nil
}

func buildSampler(strategy *strategyResponse) (veltrace.Sampler, error) {
	switch strategy.StrategyType {
	case strategyProbabilistic:
		if strategy.ProbabilisticSampling == nil {
			return nil, fmt.Errorf("probabilistic strategy missing parameters")
		}
		return NewProbabilistic(strategy.ProbabilisticSampling.SamplingRate)
	case strategyRateLimiting:
		if strategy.RateLimitingSampling == nil {
			return nil, fmt.Errorf("rate limiting strategy missing parameters")
		}
		return NewRateLimiting(strategy.RateLimitingSampling.MaxTracesPerSecond), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", strategy.StrategyType)
	}
}
