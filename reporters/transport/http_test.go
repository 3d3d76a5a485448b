package transport

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/reporters"
	"github.com/veltrace/veltrace-go/samplers"
)

type collector struct {
	mu      sync.Mutex
	batches []batchModel
	status  int
}

func (c *collector) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer zr.Close()
			body = zr
		}
		data, err := io.ReadAll(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var batch batchModel
		if err := json.Unmarshal(data, &batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.batches = append(c.batches, batch)
		c.mu.Unlock()
		if c.status != 0 {
			w.WriteHeader(c.status)
		}
	})
}

func (c *collector) received() []batchModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]batchModel(nil), c.batches...)
}

func finishedSpans(t *testing.T, count int) []*veltrace.Span {
	t.Helper()
	reporter := reporters.NewInMemory()
	tracer, err := veltrace.NewTracer("billing", samplers.NewConst(true), reporter)
	require.NoError(t, err)

	for i := 0; i < count; i++ {
		span := tracer.BuildSpan("charge").Start()
		span.SetTag("attempt", i)
		span.LogKV("event", "charged")
		span.Finish()
	}
	spans := reporter.GetSpans()
	require.Len(t, spans, count)
	return spans
}

func TestHTTPSenderFlushOnBatchSize(t *testing.T) {
	c := &collector{}
	server := httptest.NewServer(c.handler())
	defer server.Close()

	sender := NewHTTPSender(server.URL, WithBatchSize(2), WithoutCompression())
	spans := finishedSpans(t, 3)

	flushed, err := sender.Append(spans[0])
	require.NoError(t, err)
	assert.Equal(t, 0, flushed)

	flushed, err = sender.Append(spans[1])
	require.NoError(t, err)
	assert.Equal(t, 2, flushed)

	flushed, err = sender.Append(spans[2])
	require.NoError(t, err)
	assert.Equal(t, 0, flushed)

	require.NoError(t, sender.Close())

	batches := c.received()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Spans, 2)
	assert.Len(t, batches[1].Spans, 1)

	assert.Equal(t, "billing", batches[0].Process.ServiceName)
	assert.NotEmpty(t, batches[0].Process.Tags)

	span := batches[0].Spans[0]
	assert.Equal(t, "charge", span.OperationName)
	assert.NotEmpty(t, span.TraceID)
	assert.NotEmpty(t, span.SpanID)
	assert.Empty(t, span.ParentSpanID)
	assert.NotEmpty(t, span.Logs)
}

func TestHTTPSenderGzip(t *testing.T) {
	c := &collector{}
	server := httptest.NewServer(c.handler())
	defer server.Close()

	sender := NewHTTPSender(server.URL, WithBatchSize(1))
	spans := finishedSpans(t, 1)

	flushed, err := sender.Append(spans[0])
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)

	batches := c.received()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Spans, 1)
}

func TestHTTPSenderCollectorError(t *testing.T) {
	c := &collector{status: http.StatusInternalServerError}
	server := httptest.NewServer(c.handler())
	defer server.Close()

	sender := NewHTTPSender(server.URL, WithoutCompression())
	spans := finishedSpans(t, 1)

	_, err := sender.Append(spans[0])
	require.NoError(t, err, "append below batch size never submits")

	flushed, err := sender.Flush()
	assert.Equal(t, 1, flushed)
	assert.ErrorContains(t, err, "status 500")
}

func TestHTTPSenderEmptyFlush(t *testing.T) {
	sender := NewHTTPSender("http://127.0.0.1:0", WithoutCompression())
	flushed, err := sender.Flush()
	assert.NoError(t, err)
	assert.Equal(t, 0, flushed)
}
