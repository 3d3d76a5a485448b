package veltrace

import "time"

// setBaggage applies one baggage write under the restriction manager's
// policy. The caller must hold span.mu. Denials and truncations are
// never surfaced as errors; they increment the baggage_updates counters
// and, on sampled spans, leave a log record for later inspection.
func (t *Tracer) setBaggage(span *Span, key, value string) {
	restriction := t.baggageManager.GetRestriction(t.serviceName, key)
	if !restriction.KeyAllowed {
		t.metrics.BaggageUpdateFailure.Inc(1)
		t.logBaggageLocked(span, key, value, false, true)
		return
	}

	truncated := false
	if restriction.MaxValueLength > 0 && len(value) > restriction.MaxValueLength {
		value = value[:restriction.MaxValueLength]
		truncated = true
		t.metrics.BaggageTruncate.Inc(1)
	}

	span.context = span.context.WithBaggageItem(key, value)
	t.metrics.BaggageUpdateSuccess.Inc(1)
	t.logBaggageLocked(span, key, value, truncated, false)
}

func (t *Tracer) logBaggageLocked(span *Span, key, value string, truncated, denied bool) {
	if !span.context.IsSampled() {
		return
	}
	fields := map[string]interface{}{
		"event": "baggage",
		"key":   key,
		"value": value,
	}
	if truncated {
		fields["truncated"] = true
	}
	if denied {
		fields["denied"] = true
	}
	span.appendLogLocked(time.Now(), fields)
}
