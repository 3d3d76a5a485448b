package veltrace

import (
	"fmt"
	"strconv"
)

// TraceID identifies a trace. Low is always populated; High is non-zero
// only when the tracer runs in 128-bit mode.
type TraceID struct {
	High uint64
	Low  uint64
}

// SpanID identifies one span within a trace.
type SpanID uint64

// IsValid reports whether the id denotes a real trace.
func (t TraceID) IsValid() bool {
	return t.High != 0 || t.Low != 0
}

// String renders the id as lowercase hex, omitting leading zeros of the
// high word when it is unset.
func (t TraceID) String() string {
	if t.High == 0 {
		return fmt.Sprintf("%016x", t.Low)
	}
	return fmt.Sprintf("%016x%016x", t.High, t.Low)
}

// TraceIDFromString parses a hex trace id of up to 32 characters.
func TraceIDFromString(s string) (TraceID, error) {
	var id TraceID
	var err error
	switch {
	case len(s) > 32:
		return id, fmt.Errorf("trace id cannot be longer than 32 hex characters: %q", s)
	case len(s) > 16:
		high := len(s) - 16
		if id.High, err = strconv.ParseUint(s[:high], 16, 64); err != nil {
			return TraceID{}, err
		}
		if id.Low, err = strconv.ParseUint(s[high:], 16, 64); err != nil {
			return TraceID{}, err
		}
	default:
		if id.Low, err = strconv.ParseUint(s, 16, 64); err != nil {
			return TraceID{}, err
		}
	}
	return id, nil
}

// String renders the id as lowercase hex.
func (s SpanID) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// SpanIDFromString parses a hex span id of up to 16 characters.
func SpanIDFromString(s string) (SpanID, error) {
	if len(s) > 16 {
		return 0, fmt.Errorf("span id cannot be longer than 16 hex characters: %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return SpanID(v), nil
}
