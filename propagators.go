package veltrace

import (
	"encoding/binary"
	"io"
	"net/url"
	"strings"

	"github.com/veltrace/veltrace-go/propagation"
)

// HeadersConfig names the keys the built-in text codecs read and write.
// Zero fields fall back to the veltrace defaults.
type HeadersConfig struct {
	// TraceContextHeaderName carries the span context itself in
	// {trace-id}:{span-id}:{parent-id}:{flags} form.
	TraceContextHeaderName string
	// BaggageHeaderPrefix prefixes one header per baggage entry.
	BaggageHeaderPrefix string
	// DebugHeaderName carries a correlation id that forces a debug
	// trace without any upstream span.
	DebugHeaderName string
	// BaggageHeaderName carries ad-hoc baggage as comma-separated k=v
	// pairs, usable without an upstream trace.
	BaggageHeaderName string
}

var defaultHeadersConfig = HeadersConfig{
	TraceContextHeaderName: "veltrace-trace-id",
	BaggageHeaderPrefix:    "veltrace-ctx-",
	DebugHeaderName:        "veltrace-debug-id",
	BaggageHeaderName:      "veltrace-baggage",
}

func (c HeadersConfig) applyDefaults() HeadersConfig {
	if c.TraceContextHeaderName == "" {
		c.TraceContextHeaderName = defaultHeadersConfig.TraceContextHeaderName
	}
	if c.BaggageHeaderPrefix == "" {
		c.BaggageHeaderPrefix = defaultHeadersConfig.BaggageHeaderPrefix
	}
	if c.DebugHeaderName == "" {
		c.DebugHeaderName = defaultHeadersConfig.DebugHeaderName
	}
	if c.BaggageHeaderName == "" {
		c.BaggageHeaderName = defaultHeadersConfig.BaggageHeaderName
	}
	// Extraction compares lowercased keys; keep the configured names in
	// the same case so custom headers match HTTP canonicalized carriers.
	c.TraceContextHeaderName = strings.ToLower(c.TraceContextHeaderName)
	c.BaggageHeaderPrefix = strings.ToLower(c.BaggageHeaderPrefix)
	c.DebugHeaderName = strings.ToLower(c.DebugHeaderName)
	c.BaggageHeaderName = strings.ToLower(c.BaggageHeaderName)
	return c
}

// textMapPropagator serializes contexts into textual carriers. With
// urlEncode set it escapes values for HTTP header transport.
type textMapPropagator struct {
	headers   HeadersConfig
	urlEncode bool
}

func (p *textMapPropagator) encode(value string) string {
	if p.urlEncode {
		return url.QueryEscape(value)
	}
	return value
}

func (p *textMapPropagator) decode(value string) string {
	if p.urlEncode {
		if decoded, err := url.QueryUnescape(value); err == nil {
			return decoded
		}
	}
	return value
}

// Inject implements Injector for text carriers.
func (p *textMapPropagator) Inject(ctx SpanContext, carrier interface{}) error {
	writer, ok := carrier.(propagation.TextMapWriter)
	if !ok {
		return propagation.ErrInvalidCarrier
	}
	writer.Set(p.headers.TraceContextHeaderName, ctx.String())
	ctx.ForeachBaggageItem(func(k, v string) bool {
		writer.Set(p.headers.BaggageHeaderPrefix+k, p.encode(v))
		return true
	})
	return nil
}

// Extract implements Extractor for text carriers. A carrier with only a
// debug header or only ad-hoc baggage yields a context with no trace,
// which influences the next root span without becoming its parent.
func (p *textMapPropagator) Extract(carrier interface{}) (SpanContext, error) {
	reader, ok := carrier.(propagation.TextMapReader)
	if !ok {
		return SpanContext{}, propagation.ErrInvalidCarrier
	}

	var ctx SpanContext
	var baggage map[string]string
	var parseErr error

	err := reader.ForeachKey(func(rawKey, value string) error {
		key := strings.ToLower(rawKey)
		switch {
		case key == p.headers.TraceContextHeaderName:
			parsed, err := ContextFromString(p.decode(value))
			if err != nil {
				parseErr = err
				return nil
			}
			baggageSnapshot := ctx.baggage
			debugID := ctx.debugID
			ctx = parsed
			ctx.baggage = baggageSnapshot
			ctx.debugID = debugID
		case key == p.headers.DebugHeaderName:
			ctx.debugID = p.decode(value)
		case key == p.headers.BaggageHeaderName:
			for _, pair := range strings.Split(p.decode(value), ",") {
				kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
				if len(kv) == 2 {
					if baggage == nil {
						baggage = make(map[string]string)
					}
					baggage[kv[0]] = kv[1]
				}
			}
		case strings.HasPrefix(key, p.headers.BaggageHeaderPrefix):
			if baggage == nil {
				baggage = make(map[string]string)
			}
			baggage[key[len(p.headers.BaggageHeaderPrefix):]] = p.decode(value)
		}
		return nil
	})
	if err != nil {
		return SpanContext{}, err
	}
	if parseErr != nil {
		return SpanContext{}, parseErr
	}

	ctx.baggage = baggage
	if !ctx.HasTrace() && ctx.debugID == "" && len(baggage) == 0 {
		return SpanContext{}, ErrSpanContextNotFound
	}
	return ctx, nil
}

// binaryPropagator serializes contexts as fixed-width big-endian ids
// followed by length-prefixed baggage.
type binaryPropagator struct{}

// Carriers are untrusted input: the baggage count and string lengths in
// a binary payload must be bounded before they size an allocation, or a
// corrupt payload could demand gigabytes up front.
const (
	maxBinaryBaggageItems = 4096
	maxBinaryStringLength = 65536
)

// Inject implements Injector for io.Writer carriers.
func (binaryPropagator) Inject(ctx SpanContext, carrier interface{}) error {
	writer, ok := carrier.(io.Writer)
	if !ok {
		return propagation.ErrInvalidCarrier
	}

	ids := []uint64{ctx.traceID.High, ctx.traceID.Low, uint64(ctx.spanID), uint64(ctx.parentID)}
	for _, id := range ids {
		if err := binary.Write(writer, binary.BigEndian, id); err != nil {
			return err
		}
	}
	if err := binary.Write(writer, binary.BigEndian, ctx.flags); err != nil {
		return err
	}

	if err := binary.Write(writer, binary.BigEndian, int32(len(ctx.baggage))); err != nil {
		return err
	}
	var err error
	ctx.ForeachBaggageItem(func(k, v string) bool {
		err = writeString(writer, k)
		if err == nil {
			err = writeString(writer, v)
		}
		return err == nil
	})
	return err
}

// Extract implements Extractor for io.Reader carriers.
func (binaryPropagator) Extract(carrier interface{}) (SpanContext, error) {
	reader, ok := carrier.(io.Reader)
	if !ok {
		return SpanContext{}, propagation.ErrInvalidCarrier
	}

	var ctx SpanContext
	if err := binary.Read(reader, binary.BigEndian, &ctx.traceID.High); err != nil {
		if err == io.EOF {
			return SpanContext{}, ErrSpanContextNotFound
		}
		return SpanContext{}, ErrMalformedSpanContext
	}
	fields := []interface{}{&ctx.traceID.Low, &ctx.spanID, &ctx.parentID, &ctx.flags}
	for _, field := range fields {
		if err := binary.Read(reader, binary.BigEndian, field); err != nil {
			return SpanContext{}, ErrMalformedSpanContext
		}
	}

	var count int32
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return SpanContext{}, ErrMalformedSpanContext
	}
	if count < 0 || count > maxBinaryBaggageItems {
		return SpanContext{}, ErrMalformedSpanContext
	}
	if count > 0 {
		ctx.baggage = make(map[string]string, count)
		for i := int32(0); i < count; i++ {
			key, err := readString(reader)
			if err != nil {
				return SpanContext{}, ErrMalformedSpanContext
			}
			value, err := readString(reader)
			if err != nil {
				return SpanContext{}, ErrMalformedSpanContext
			}
			ctx.baggage[key] = value
		}
	}
	return ctx, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if length < 0 || length > maxBinaryStringLength {
		return "", ErrMalformedSpanContext
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
