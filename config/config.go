// Package config bootstraps a fully wired tracer from environment
// variables or a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/baggage"
	"github.com/veltrace/veltrace-go/metrics"
	"github.com/veltrace/veltrace-go/reporters"
	"github.com/veltrace/veltrace-go/reporters/transport"
	"github.com/veltrace/veltrace-go/samplers"
)

// Sampler type names accepted in SamplerConfig.Type.
const (
	SamplerConst         = "const"
	SamplerProbabilistic = "probabilistic"
	SamplerRateLimiting  = "ratelimiting"
	SamplerRemote        = "remote"
)

// Reporter type names accepted in ReporterConfig.Type.
const (
	ReporterLogging = "logging"
	ReporterHTTP    = "http"
)

// Configuration describes a tracer to build.
type Configuration struct {
	ServiceName   string            `yaml:"serviceName" envconfig:"SERVICE_NAME"`
	TraceID128Bit bool              `yaml:"traceId128Bit" envconfig:"TRACEID_128BIT" default:"false"`
	Tags          map[string]string `yaml:"tags" envconfig:"TAGS"`
	Sampler       SamplerConfig     `yaml:"sampler"`
	Reporter      ReporterConfig    `yaml:"reporter"`
	Baggage       BaggageConfig     `yaml:"baggage"`
}

// SamplerConfig selects and parameterizes the sampling strategy.
type SamplerConfig struct {
	Type         string        `yaml:"type" envconfig:"SAMPLER_TYPE" default:"const"`
	Param        float64       `yaml:"param" envconfig:"SAMPLER_PARAM" default:"1"`
	Endpoint     string        `yaml:"endpoint" envconfig:"SAMPLER_ENDPOINT"`
	PollInterval time.Duration `yaml:"pollInterval" envconfig:"SAMPLER_POLL_INTERVAL" default:"1m"`
}

// ReporterConfig selects the span destination.
type ReporterConfig struct {
	Type          string        `yaml:"type" envconfig:"REPORTER_TYPE" default:"logging"`
	Endpoint      string        `yaml:"endpoint" envconfig:"REPORTER_ENDPOINT"`
	QueueSize     int           `yaml:"queueSize" envconfig:"REPORTER_QUEUE_SIZE" default:"1000"`
	FlushInterval time.Duration `yaml:"flushInterval" envconfig:"REPORTER_FLUSH_INTERVAL" default:"1s"`
	LogSpans      bool          `yaml:"logSpans" envconfig:"REPORTER_LOG_SPANS" default:"false"`
}

// BaggageConfig enables the remote baggage restriction manager when an
// endpoint is set; otherwise all baggage keys are allowed.
type BaggageConfig struct {
	RestrictionsEndpoint string        `yaml:"restrictionsEndpoint" envconfig:"BAGGAGE_RESTRICTIONS_ENDPOINT"`
	FailClosed           bool          `yaml:"failClosed" envconfig:"BAGGAGE_FAIL_CLOSED" default:"false"`
	RefreshInterval      time.Duration `yaml:"refreshInterval" envconfig:"BAGGAGE_REFRESH_INTERVAL" default:"1m"`
}

// FromEnv loads configuration from VELTRACE_-prefixed environment
// variables.
func FromEnv() (*Configuration, error) {
	var cfg Configuration
	if err := envconfig.Process("VELTRACE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	return &cfg, nil
}

// Load reads a YAML configuration file.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (*Configuration, error) {
	var cfg Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Option adjusts tracer construction beyond what the declarative
// configuration expresses.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	metricsFactory metrics.Factory
}

// WithLogger sets the logger used by the tracer and every remote
// component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetricsFactory wires tracer metrics into the given sink.
func WithMetricsFactory(factory metrics.Factory) Option {
	return func(o *options) { o.metricsFactory = factory }
}

// NewTracer builds the sampler, reporter, and baggage manager this
// configuration describes and assembles the tracer. Closing the tracer
// closes everything built here.
func (c *Configuration) NewTracer(opts ...Option) (*veltrace.Tracer, error) {
	o := &options{logger: zap.NewNop(), metricsFactory: metrics.NullFactory}
	for _, opt := range opts {
		opt(o)
	}
	tracerMetrics := metrics.NewTracerMetrics(o.metricsFactory)

	sampler, err := c.buildSampler(o, tracerMetrics)
	if err != nil {
		return nil, err
	}
	reporter, err := c.buildReporter(o, tracerMetrics)
	if err != nil {
		return nil, err
	}

	tracerOpts := []veltrace.TracerOption{
		veltrace.WithLogger(o.logger),
		veltrace.WithMetricsFactory(o.metricsFactory),
	}
	if c.TraceID128Bit {
		tracerOpts = append(tracerOpts, veltrace.WithTraceID128Bit())
	}
	for key, value := range c.Tags {
		tracerOpts = append(tracerOpts, veltrace.WithTag(key, value))
	}
	if c.Baggage.RestrictionsEndpoint != "" {
		managerOpts := []baggage.RemoteOption{
			baggage.WithLogger(o.logger),
			baggage.WithMetrics(tracerMetrics),
			baggage.WithRefreshInterval(c.Baggage.RefreshInterval),
		}
		if c.Baggage.FailClosed {
			managerOpts = append(managerOpts, baggage.WithFailClosed())
		}
		manager := baggage.NewRemoteRestrictionManager(c.ServiceName, c.Baggage.RestrictionsEndpoint, managerOpts...)
		tracerOpts = append(tracerOpts, veltrace.WithBaggageRestrictionManager(manager))
	}

	return veltrace.NewTracer(c.ServiceName, sampler, reporter, tracerOpts...)
}

func (c *Configuration) buildSampler(o *options, tm *metrics.TracerMetrics) (veltrace.Sampler, error) {
	switch c.Sampler.Type {
	case SamplerConst, "":
		return samplers.NewConst(c.Sampler.Param > 0), nil
	case SamplerProbabilistic:
		return samplers.NewProbabilistic(c.Sampler.Param)
	case SamplerRateLimiting:
		return samplers.NewRateLimiting(c.Sampler.Param), nil
	case SamplerRemote:
		if c.Sampler.Endpoint == "" {
			return nil, fmt.Errorf("remote sampler requires an endpoint")
		}
		return samplers.NewRemote(c.ServiceName, c.Sampler.Endpoint,
			samplers.WithPollInterval(c.Sampler.PollInterval),
			samplers.WithLogger(o.logger),
			samplers.WithMetrics(tm),
		), nil
	default:
		return nil, fmt.Errorf("unknown sampler type %q", c.Sampler.Type)
	}
}

func (c *Configuration) buildReporter(o *options, tm *metrics.TracerMetrics) (veltrace.Reporter, error) {
	switch c.Reporter.Type {
	case ReporterLogging, "":
		return reporters.NewLogging(o.logger), nil
	case ReporterHTTP:
		if c.Reporter.Endpoint == "" {
			return nil, fmt.Errorf("http reporter requires an endpoint")
		}
		remote := reporters.NewRemote(
			transport.NewHTTPSender(c.Reporter.Endpoint),
			reporters.WithQueueSize(c.Reporter.QueueSize),
			reporters.WithFlushInterval(c.Reporter.FlushInterval),
			reporters.WithLogger(o.logger),
			reporters.WithMetrics(tm),
		)
		if c.Reporter.LogSpans {
			return reporters.NewComposite(reporters.NewLogging(o.logger), remote), nil
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("unknown reporter type %q", c.Reporter.Type)
	}
}
