// Package transport ships span batches to a collector over HTTP.
//
// The payload is a JSON batch: one process block describing the tracer
// instance and an array of spans. Payloads are gzip-compressed unless
// disabled.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"

	veltrace "github.com/veltrace/veltrace-go"
)

const defaultBatchSize = 100

// batchModel is the wire envelope posted to the collector.
type batchModel struct {
	Process processModel `json:"process"`
	Spans   []spanModel  `json:"spans"`
}

type processModel struct {
	ServiceName string     `json:"serviceName"`
	Tags        []tagModel `json:"tags,omitempty"`
}

type spanModel struct {
	TraceID       string     `json:"traceId"`
	SpanID        string     `json:"spanId"`
	ParentSpanID  string     `json:"parentSpanId,omitempty"`
	OperationName string     `json:"operationName"`
	Flags         byte       `json:"flags"`
	StartTimeUs   int64      `json:"startTime"`
	DurationUs    int64      `json:"duration"`
	Tags          []tagModel `json:"tags,omitempty"`
	Logs          []logModel `json:"logs,omitempty"`
}

type tagModel struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type logModel struct {
	TimestampUs int64                  `json:"timestamp"`
	Fields      map[string]interface{} `json:"fields"`
}

// HTTPSender batches spans and posts them as JSON to a collector
// endpoint. It is driven from the remote reporter's single drain
// goroutine and is not safe for concurrent use.
type HTTPSender struct {
	client    *resty.Client
	endpoint  string
	batchSize int
	compress  bool
	batch     []spanModel
	process   *processModel
}

// HTTPOption configures an HTTPSender.
type HTTPOption func(*HTTPSender)

// WithBatchSize sets how many spans accumulate before an automatic
// flush.
func WithBatchSize(size int) HTTPOption {
	return func(s *HTTPSender) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithoutCompression disables gzip encoding of payloads.
func WithoutCompression() HTTPOption {
	return func(s *HTTPSender) { s.compress = false }
}

// WithTimeout bounds each submission request.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPSender) { s.client.SetTimeout(timeout) }
}

// NewHTTPSender creates a sender posting batches to the given endpoint.
func NewHTTPSender(endpoint string, opts ...HTTPOption) *HTTPSender {
	s := &HTTPSender{
		client:    resty.New().SetTimeout(5 * time.Second),
		endpoint:  endpoint,
		batchSize: defaultBatchSize,
		compress:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append implements reporters.Sender.
func (s *HTTPSender) Append(span *veltrace.Span) (int, error) {
	if s.process == nil {
		s.process = buildProcess(span.Tracer())
	}
	s.batch = append(s.batch, buildSpan(span))
	if len(s.batch) >= s.batchSize {
		return s.Flush()
	}
	return 0, nil
}

// Flush implements reporters.Sender.
func (s *HTTPSender) Flush() (int, error) {
	count := len(s.batch)
	if count == 0 {
		return 0, nil
	}

	payload := batchModel{Spans: s.batch}
	if s.process != nil {
		payload.Process = *s.process
	}
	s.batch = nil

	body, err := json.Marshal(payload)
	if err != nil {
		return count, fmt.Errorf("failed to encode span batch: %w", err)
	}

	req := s.client.R().SetHeader("Content-Type", "application/json")
	if s.compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return count, fmt.Errorf("failed to compress span batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return count, fmt.Errorf("failed to compress span batch: %w", err)
		}
		req.SetHeader("Content-Encoding", "gzip")
		req.SetBody(buf.Bytes())
	} else {
		req.SetBody(body)
	}

	resp, err := req.Post(s.endpoint)
	if err != nil {
		return count, fmt.Errorf("failed to submit span batch: %w", err)
	}
	if resp.IsError() {
		return count, fmt.Errorf("collector returned status %d", resp.StatusCode())
	}
	return count, nil
}

// Close implements reporters.Sender.
func (s *HTTPSender) Close() error {
	_, err := s.Flush()
	return err
}

func buildProcess(tracer *veltrace.Tracer) *processModel {
	p := &processModel{ServiceName: tracer.ServiceName()}
	for _, tag := range tracer.Tags() {
		p.Tags = append(p.Tags, tagModel{Key: tag.Key, Value: tag.Value})
	}
	return p
}

func buildSpan(span *veltrace.Span) spanModel {
	ctx := span.Context()
	model := spanModel{
		TraceID:       ctx.TraceID().String(),
		SpanID:        ctx.SpanID().String(),
		OperationName: span.OperationName(),
		Flags:         ctx.Flags(),
		StartTimeUs:   span.StartTime().UnixMicro(),
		DurationUs:    span.Duration().Microseconds(),
	}
	if parent := ctx.ParentID(); parent != 0 {
		model.ParentSpanID = parent.String()
	}
	for key, value := range span.Tags() {
		model.Tags = append(model.Tags, tagModel{Key: key, Value: value})
	}
	for _, record := range span.Logs() {
		model.Logs = append(model.Logs, logModel{
			TimestampUs: record.Timestamp.UnixMicro(),
			Fields:      record.Fields,
		})
	}
	return model
}
