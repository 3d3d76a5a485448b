package baggage

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

	"github.com/veltrace/veltrace-go/metrics"
)

const defaultRefreshInterval = time.Minute

// restrictionEntry is the wire shape of one key policy returned by the
// restriction endpoint.
type restrictionEntry struct {
	BaggageKey     string `json:"baggageKey"`
	MaxValueLength int    `json:"maxValueLength"`
}

// RemoteRestrictionManager polls a restriction service for per-key
// baggage policies. Keys missing from the fetched set are denied.
// Until the first successful fetch the manager either allows everything
// (default) or denies everything (fail-closed).
type RemoteRestrictionManager struct {
	serviceName string
	endpoint    string
	interval    time.Duration
	failClosed  bool
	client      *retryablehttp.Client
	logger      *zap.Logger
	metrics     *metrics.TracerMetrics

	mu           sync.RWMutex
	initialized  bool
	restrictions map[string]Restriction

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// RemoteOption configures a RemoteRestrictionManager.
type RemoteOption func(*RemoteRestrictionManager)

// WithRefreshInterval sets how often policies are re-fetched.
func WithRefreshInterval(interval time.Duration) RemoteOption {
	return func(m *RemoteRestrictionManager) { m.interval = interval }
}

// WithFailClosed denies all baggage writes until the first successful
// fetch.
func WithFailClosed() RemoteOption {
	return func(m *RemoteRestrictionManager) { m.failClosed = true }
}

// WithLogger sets the logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) RemoteOption {
	return func(m *RemoteRestrictionManager) { m.logger = logger }
}

// WithMetrics sets the metrics bundle used to count fetch outcomes.
func WithMetrics(tm *metrics.TracerMetrics) RemoteOption {
	return func(m *RemoteRestrictionManager) { m.metrics = tm }
}

// NewRemoteRestrictionManager creates a manager polling
// endpoint/baggageRestrictions?service=<serviceName> and starts its
// refresh loop.
func NewRemoteRestrictionManager(serviceName, endpoint string, opts ...RemoteOption) *RemoteRestrictionManager {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2

	m := &RemoteRestrictionManager{
		serviceName:  serviceName,
		endpoint:     endpoint,
		interval:     defaultRefreshInterval,
		client:       client,
		logger:       zap.NewNop(),
		metrics:      metrics.NewTracerMetrics(metrics.NullFactory),
		restrictions: make(map[string]Restriction),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.pollLoop()
	return m
}

// GetRestriction implements RestrictionManager.
func (m *RemoteRestrictionManager) GetRestriction(service, key string) Restriction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		if m.failClosed {
			return Restriction{KeyAllowed: false}
		}
		return Restriction{KeyAllowed: true, MaxValueLength: DefaultMaxValueLength}
	}
	if r, ok := m.restrictions[key]; ok {
		return r
	}
	return Restriction{KeyAllowed: false}
}

// Close stops the refresh loop and waits for it to exit.
func (m *RemoteRestrictionManager) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
	return nil
}

func (m *RemoteRestrictionManager) pollLoop() {
	defer close(m.done)

	m.refresh()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stop:
			return
		}
	}
}

func (m *RemoteRestrictionManager) refresh() {
	entries, err := m.fetch()
	if err != nil {
		m.metrics.BaggageRestrictionsUpdateFailure.Inc(1)
		m.logger.Warn("failed to fetch baggage restrictions",
			zap.String("service", m.serviceName),
			zap.Error(err),
		)
		return
	}

	fetched := make(map[string]Restriction, len(entries))
	for _, e := range entries {
		fetched[e.BaggageKey] = Restriction{KeyAllowed: true, MaxValueLength: e.MaxValueLength}
	}

	m.mu.Lock()
	m.restrictions = fetched
	m.initialized = true
	m.mu.Unlock()

	m.metrics.BaggageRestrictionsUpdateSuccess.Inc(1)
}

func (m *RemoteRestrictionManager) fetch() ([]restrictionEntry, error) {
	u := fmt.Sprintf("%s/baggageRestrictions?service=%s", m.endpoint, url.QueryEscape(m.serviceName))
	resp, err := m.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("restriction endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var entries []restrictionEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse restrictions: %w", err)
	}
	return entries, nil
}
