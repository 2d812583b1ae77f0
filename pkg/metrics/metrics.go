// Package metrics exposes Prometheus collectors for the bus: message and
// row counts per direction and codec, payload sizes, codec latency and decode
// failures by reason.
//
// # Basic Usage
//
//	m := metrics.Default()
//	timer := metrics.NewTimer()
//	payload, err := c.Encode(b)
//	m.ObserveEncode("raw", timer.Stop(), len(payload), err)
//
// Collectors registered through New are scoped to the given registerer, so
// tests can use a fresh prometheus.NewRegistry per case.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arrowbus"

// Direction label values
const (
	DirectionProduced = "produced"
	DirectionConsumed = "consumed"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Decode failure reasons
const (
	ReasonFormat         = "format"
	ReasonLengthMismatch = "length_mismatch"
	ReasonContract       = "contract"
	ReasonUnknownCodec   = "unknown_codec"
	ReasonEmpty          = "empty"
	ReasonHandler        = "handler"
)

// Metrics groups the bus collectors
type Metrics struct {
	// Messages counts messages by direction, codec and status
	Messages *prometheus.CounterVec
	// Rows counts batch rows by direction and codec
	Rows *prometheus.CounterVec
	// PayloadBytes observes encoded payload sizes
	PayloadBytes *prometheus.HistogramVec
	// CodecLatency observes encode and decode durations in seconds
	CodecLatency *prometheus.HistogramVec
	// DecodeFailures counts rejected payloads by reason
	DecodeFailures *prometheus.CounterVec
}

// New registers the bus collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of bus messages",
			},
			[]string{"direction", "codec", "status"},
		),
		Rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Total number of batch rows carried",
			},
			[]string{"direction", "codec"},
		),
		PayloadBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payload_bytes",
				Help:      "Encoded payload size in bytes",
				Buckets:   prometheus.ExponentialBuckets(8, 4, 12), // 8B .. 32MiB
			},
			[]string{"direction", "codec"},
		),
		CodecLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "codec_latency_seconds",
				Help:      "Codec encode and decode latency",
				Buckets: []float64{
					1e-7, // 100ns
					1e-6,
					1e-5,
					1e-4,
					1e-3,
					1e-2,
					1e-1,
					1,
				},
			},
			[]string{"operation", "codec"},
		),
		DecodeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_failures_total",
				Help:      "Payloads rejected by the consumer",
			},
			[]string{"codec", "reason"},
		),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns collectors registered with the global Prometheus registry
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// ObserveEncode records one encode and, on success, the produced message
func (m *Metrics) ObserveEncode(codec string, d time.Duration, payloadBytes, rows int, err error) {
	m.CodecLatency.WithLabelValues("encode", codec).Observe(d.Seconds())
	if err != nil {
		m.Messages.WithLabelValues(DirectionProduced, codec, StatusFailure).Inc()
		return
	}
	m.Messages.WithLabelValues(DirectionProduced, codec, StatusSuccess).Inc()
	m.Rows.WithLabelValues(DirectionProduced, codec).Add(float64(rows))
	m.PayloadBytes.WithLabelValues(DirectionProduced, codec).Observe(float64(payloadBytes))
}

// ObserveDecode records one successful decode
func (m *Metrics) ObserveDecode(codec string, d time.Duration, payloadBytes, rows int) {
	m.CodecLatency.WithLabelValues("decode", codec).Observe(d.Seconds())
	m.Messages.WithLabelValues(DirectionConsumed, codec, StatusSuccess).Inc()
	m.Rows.WithLabelValues(DirectionConsumed, codec).Add(float64(rows))
	m.PayloadBytes.WithLabelValues(DirectionConsumed, codec).Observe(float64(payloadBytes))
}

// DecodeFailure records a rejected payload
func (m *Metrics) DecodeFailure(codec, reason string) {
	m.Messages.WithLabelValues(DirectionConsumed, codec, StatusFailure).Inc()
	m.DecodeFailures.WithLabelValues(codec, reason).Inc()
}

// Handler serves the collectors of gatherer in the Prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Timer measures an operation's duration from creation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
