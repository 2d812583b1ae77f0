package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEncode(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEncode("raw", time.Microsecond, 800, 100, nil)
	m.ObserveEncode("raw", time.Microsecond, 800, 100, nil)
	m.ObserveEncode("raw", time.Microsecond, 0, 0, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues(DirectionProduced, "raw", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues(DirectionProduced, "raw", StatusFailure)))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.Rows.WithLabelValues(DirectionProduced, "raw")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CodecLatency))
}

func TestDecodeFailure(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.DecodeFailure("ipc", ReasonFormat)
	m.DecodeFailure("raw", ReasonLengthMismatch)
	m.DecodeFailure("raw", ReasonLengthMismatch)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeFailures.WithLabelValues("ipc", ReasonFormat)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodeFailures.WithLabelValues("raw", ReasonLengthMismatch)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues(DirectionConsumed, "raw", StatusFailure)))
}

func TestHandlerServesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveDecode("ipc", time.Millisecond, 1024, 100)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `arrowbus_messages_total{codec="ipc",direction="consumed",status="success"} 1`))
	assert.True(t, strings.Contains(string(body), "arrowbus_payload_bytes_bucket"))
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	first := timer.Stop()
	assert.GreaterOrEqual(t, first, time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), first)
}
