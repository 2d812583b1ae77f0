package transport

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/codec"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
	"github.com/ajitpratap0/arrowbus/pkg/metrics"
	"github.com/ajitpratap0/arrowbus/pkg/observability"
)

// SendResult describes a delivered batch
type SendResult struct {
	Partition    int32
	Offset       int64
	Rows         int
	PayloadBytes int
}

// RunConfig drives Producer.Run
type RunConfig struct {
	// Rows per generated batch
	Rows int
	// Interval between sends
	Interval time.Duration
	// Count stops after this many batches; 0 runs until ctx is done
	Count int
}

// ProducerOption configures a Producer
type ProducerOption func(*Producer)

// WithProducerLogger sets the producer logger
func WithProducerLogger(l *zap.Logger) ProducerOption {
	return func(p *Producer) { p.logger = l }
}

// WithProducerMetrics sets the collectors updated on every send
func WithProducerMetrics(m *metrics.Metrics) ProducerOption {
	return func(p *Producer) { p.metrics = m }
}

// WithGenerator replaces batch.Generate in Run
func WithGenerator(gen func(rows int) *batch.Batch) ProducerOption {
	return func(p *Producer) { p.generate = gen }
}

// Producer publishes encoded batches to one topic
type Producer struct {
	producer sarama.SyncProducer
	codec    codec.Codec
	topic    string
	contract string

	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   *observability.BusTracer
	generate func(rows int) *batch.Batch

	sent atomic.Int64
}

// NewProducer wraps p. The producer owns p and closes it on Close.
func NewProducer(p sarama.SyncProducer, c codec.Codec, topic string, opts ...ProducerOption) *Producer {
	pr := &Producer{
		producer: p,
		codec:    c,
		topic:    topic,
		logger:   zap.NewNop(),
		tracer:   observability.NewBusTracer(topic, c.Name().String()),
		generate: batch.Generate,
	}
	if raw, ok := c.(*codec.RawCodec); ok {
		pr.contract = raw.Contract().FingerprintHex()
	}
	for _, opt := range opts {
		opt(pr)
	}
	pr.logger = pr.logger.With(
		zap.String("component", "producer"),
		zap.String("topic", topic),
		zap.String("codec", c.Name().String()))
	return pr
}

// Dial connects a sync producer to the brokers
func Dial(brokers []string, sc *sarama.Config) (sarama.SyncProducer, error) {
	p, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create kafka producer").
			WithDetail("brokers", brokers)
	}
	return p, nil
}

// Send encodes b and publishes it as one message
func (p *Producer) Send(ctx context.Context, b *batch.Batch) (SendResult, error) {
	ctx, span := p.tracer.StartSpan(ctx, "publish", trace.SpanKindProducer)
	defer span.End()

	timer := metrics.NewTimer()
	payload, err := p.codec.Encode(b)
	encodeTime := timer.Stop()
	if err != nil {
		p.observe(encodeTime, 0, 0, err)
		observability.EndWithError(span, err)
		return SendResult{}, err
	}

	headers := ProducerHeaders{
		{Key: []byte(HeaderContentType), Value: []byte(p.codec.ContentType())},
		{Key: []byte(HeaderCodec), Value: []byte(p.codec.Name())},
		{Key: []byte(HeaderRows), Value: []byte(strconv.Itoa(b.NumRows()))},
	}
	if p.contract != "" {
		headers.Set(HeaderContract, p.contract)
	}
	observability.Inject(ctx, &headers)

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(payload),
		Headers:   headers,
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.observe(encodeTime, len(payload), b.NumRows(), err)
		observability.EndWithError(span, err)
		return SendResult{}, errors.Wrap(err, errors.ErrorTypeConnection, "failed to deliver batch").
			WithDetail("topic", p.topic)
	}

	p.observe(encodeTime, len(payload), b.NumRows(), nil)
	span.SetAttributes(
		observability.AttrRows.Int(b.NumRows()),
		observability.AttrPayloadBytes.Int(len(payload)),
		observability.AttrPartition.Int64(int64(partition)),
		observability.AttrOffset.Int64(offset),
	)
	observability.EndWithError(span, nil)
	p.sent.Add(1)

	p.logger.Debug("batch sent",
		zap.Int("rows", b.NumRows()),
		zap.Int("bytes", len(payload)),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Duration("encode", encodeTime))

	return SendResult{
		Partition:    partition,
		Offset:       offset,
		Rows:         b.NumRows(),
		PayloadBytes: len(payload),
	}, nil
}

// Run generates and sends batches until ctx is done or cfg.Count batches
// have been sent. It returns the number of batches sent, and a nil error when
// stopped by ctx.
func (p *Producer) Run(ctx context.Context, cfg RunConfig) (int, error) {
	sent := 0
	p.logger.Info("producer started",
		zap.Int("rows", cfg.Rows),
		zap.Duration("interval", cfg.Interval),
		zap.Int("count", cfg.Count))

	for {
		if ctx.Err() != nil {
			break
		}

		b := p.generate(cfg.Rows)
		_, err := p.Send(ctx, b)
		b.Release()
		if err != nil {
			p.logger.Error("failed to send batch", zap.Error(err), zap.Int("sent", sent))
			return sent, err
		}
		sent++

		if cfg.Count > 0 && sent >= cfg.Count {
			break
		}
		if cfg.Interval > 0 {
			t := time.NewTimer(cfg.Interval)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	p.logger.Info("producer stopped", zap.Int("sent", sent))
	return sent, nil
}

func (p *Producer) observe(d time.Duration, payloadBytes, rows int, err error) {
	if p.metrics != nil {
		p.metrics.ObserveEncode(p.codec.Name().String(), d, payloadBytes, rows, err)
	}
}

// Sent returns the number of batches delivered so far
func (p *Producer) Sent() int64 {
	return p.sent.Load()
}

// Close closes the underlying sarama producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close kafka producer")
	}
	return nil
}
