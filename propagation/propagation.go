// Package propagation defines the wire-format identifiers and carrier
// contracts used to move span contexts across process boundaries.
//
// A Format names a serialization convention; the tracer keeps a registry
// mapping each Format to an injector/extractor pair. Carriers are the
// mediums written to and read from: plain string maps, HTTP headers, or
// raw byte buffers.
package propagation

import (
	"errors"
	"net/http"
)

// Format identifies a propagation wire format. Formats are opaque
// tokens: new ones may be registered on a tracer at any time, and the
// last registration for a token wins.
type Format string

// Built-in formats. TextMap and HTTPHeaders expect a TextMapWriter /
// TextMapReader carrier; Binary expects an io.Writer / io.Reader.
const (
	TextMap     Format = "text-map"
	HTTPHeaders Format = "http-headers"
	Binary      Format = "binary"
)

// ErrInvalidCarrier is returned when a carrier does not match the
// contract of the requested format.
var ErrInvalidCarrier = errors.New("propagation: invalid carrier for format")

// TextMapWriter is the write side of a textual carrier.
type TextMapWriter interface {
	Set(key, value string)
}

// TextMapReader is the read side of a textual carrier. ForeachKey stops
// and returns the first error the handler yields.
type TextMapReader interface {
	ForeachKey(handler func(key, value string) error) error
}

// TextMapCarrier adapts a string map to the text carrier contracts.
type TextMapCarrier map[string]string

// Set implements TextMapWriter.
func (c TextMapCarrier) Set(key, value string) {
	c[key] = value
}

// ForeachKey implements TextMapReader.
func (c TextMapCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier adapts http.Header to the text carrier contracts.
type HTTPHeadersCarrier http.Header

// Set implements TextMapWriter.
func (c HTTPHeadersCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// ForeachKey implements TextMapReader.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, values := range c {
		for _, v := range values {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}
