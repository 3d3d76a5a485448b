package veltrace

import (
	"sync"
	"time"
)

// Span is one timed unit of work. It is owned by its creator until
// Finish, after which it belongs to the reporter and must not be
// mutated. Concurrent tag/log/baggage writes before Finish are safe.
type Span struct {
	tracer *Tracer

	mu            sync.RWMutex
	context       SpanContext
	operationName string
	startTime     time.Time
	duration      time.Duration
	tags          map[string]interface{}
	logs          []LogRecord
	references    []Reference
	finished      bool
}

// LogRecord is one timed event attached to a span.
type LogRecord struct {
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Context returns the span's identity. The returned value is immutable;
// baggage writes on the span swap in a new context.
func (s *Span) Context() SpanContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

// Tracer returns the tracer that created this span.
func (s *Span) Tracer() *Tracer { return s.tracer }

// OperationName returns the current operation name.
func (s *Span) OperationName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operationName
}

// SetOperationName renames the span, e.g. once an RPC route is known.
func (s *Span) SetOperationName(operationName string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.operationName = operationName
	}
	return s
}

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// Duration returns the span duration; zero until Finish.
func (s *Span) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duration
}

// References returns the span's references to other spans.
func (s *Span) References() []Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.references
}

// SetTag records a tag. A sampling.priority tag additionally forces the
// sampling decision for this span's context.
func (s *Span) SetTag(key string, value interface{}) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.setTagLocked(key, value)
	}
	return s
}

func (s *Span) setTagLocked(key string, value interface{}) {
	if key == TagSamplingPriority {
		s.applySamplingPriorityLocked(value)
	}
	s.tags[key] = value
}

// applySamplingPriorityLocked upgrades or downgrades the sampled bit.
// Priority zero clears it; a positive priority sets sampled+debug when
// the throttler permits another debug trace.
func (s *Span) applySamplingPriorityLocked(value interface{}) {
	priority, ok := numericValue(value)
	if !ok {
		return
	}
	if priority == 0 {
		s.context.flags &^= FlagSampled
		return
	}
	if s.tracer.isDebugAllowed(s.operationName) {
		s.context.flags |= FlagSampled | FlagDebug
	}
}

// Tags returns a snapshot of the span's tags.
func (s *Span) Tags() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]interface{}, len(s.tags))
	for k, v := range s.tags {
		snapshot[k] = v
	}
	return snapshot
}

// LogFields records a timed event with structured fields.
func (s *Span) LogFields(fields map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.appendLogLocked(time.Now(), fields)
}

// LogKV records a timed event from alternating key/value pairs. An odd
// trailing key is dropped.
func (s *Span) LogKV(keyValues ...interface{}) {
	fields := make(map[string]interface{}, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyValues[i+1]
	}
	s.LogFields(fields)
}

// Logs returns a snapshot of the span's log records.
func (s *Span) Logs() []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := make([]LogRecord, len(s.logs))
	copy(logs, s.logs)
	return logs
}

func (s *Span) appendLogLocked(timestamp time.Time, fields map[string]interface{}) {
	s.logs = append(s.logs, LogRecord{Timestamp: timestamp, Fields: fields})
}

// SetBaggageItem writes a baggage entry through the tracer's restriction
// manager. Denied writes are dropped silently; the outcome is visible
// only in the baggage_updates counters.
func (s *Span) SetBaggageItem(key, value string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.tracer.setBaggage(s, key, value)
	}
	return s
}

// BaggageItem returns the baggage value for a key, empty if unset.
func (s *Span) BaggageItem(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context.baggage[key]
}

// Finish completes the span at the current time.
func (s *Span) Finish() {
	s.FinishWithTime(time.Now())
}

// FinishWithTime completes the span at an explicit timestamp and hands
// it to the reporter if sampled. Only the first call has any effect.
func (s *Span) FinishWithTime(finishTime time.Time) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.duration = finishTime.Sub(s.startTime)
	s.mu.Unlock()

	s.tracer.reportSpan(s)
}

func numericValue(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
