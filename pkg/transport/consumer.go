package transport

import (
	"context"
	"sync"
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

// Message is a decoded batch with its delivery coordinates
type Message struct {
	Batch        *batch.Batch
	Codec        codec.Kind
	Topic        string
	Partition    int32
	Offset       int64
	Timestamp    time.Time
	PayloadBytes int
}

// Handler processes one decoded message. The batch is released after the
// handler returns; a handler that keeps it must not use it afterwards.
// A handler error stops consumption.
type Handler func(ctx context.Context, msg Message) error

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the consumer logger
func WithConsumerLogger(l *zap.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

// WithConsumerMetrics sets the collectors updated for every message
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

// WithDefaultCodec decodes messages that carry no content-type header
func WithDefaultCodec(cd codec.Codec) ConsumerOption {
	return func(c *Consumer) { c.fallback = cd }
}

// WithStopOnDecodeError ends consumption at the first rejected payload
// instead of skipping it
func WithStopOnDecodeError(stop bool) ConsumerOption {
	return func(c *Consumer) { c.stopOnDecodeError = stop }
}

// Consumer decodes batches from a consumer group claim. It implements
// sarama.ConsumerGroupHandler.
type Consumer struct {
	registry          *codec.Registry
	handler           Handler
	fallback          codec.Codec
	stopOnDecodeError bool

	logger  *zap.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	err error
}

// NewConsumer creates a consumer resolving codecs through registry
func NewConsumer(registry *codec.Registry, handler Handler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		registry: registry,
		handler:  handler,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "consumer"))
	return c
}

// Run consumes topics through group until ctx is done or a fatal error
// occurs. It returns nil when stopped by ctx.
func (c *Consumer) Run(ctx context.Context, group sarama.ConsumerGroup, topics []string) error {
	go func() {
		for err := range group.Errors() {
			c.logger.Warn("consumer group error", zap.Error(err))
		}
	}()

	c.logger.Info("consumer started", zap.Strings("topics", topics))
	for {
		if err := group.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return errors.Wrap(err, errors.ErrorTypeConnection, "consumer group session failed")
		}
		if err := c.Err(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}
	}
}

// Err returns the error that stopped consumption, if any
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Consumer) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Setup implements sarama.ConsumerGroupHandler
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Debug("session started",
		zap.String("member", session.MemberID()),
		zap.Int32("generation", session.GenerationID()))
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.processMessage(session, message); err != nil {
				c.fail(err)
				return err
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage decodes one message and hands it to the handler. Rejected
// payloads are marked and skipped unless stopOnDecodeError is set, in which
// case the error is returned and the message is left unmarked.
func (c *Consumer) processMessage(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) error {
	headers := ConsumerHeaders(message.Headers)
	ctx := observability.Extract(session.Context(), headers)

	log := c.logger.With(
		zap.String("topic", message.Topic),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset))

	cd, err := c.resolve(headers)
	if err != nil {
		return c.reject(session, message, log, "unknown", metrics.ReasonUnknownCodec, err)
	}
	codecName := cd.Name().String()

	tracer := observability.NewBusTracer(message.Topic, codecName)
	ctx, span := tracer.StartSpan(ctx, "process", trace.SpanKindConsumer,
		observability.AttrPartition.Int64(int64(message.Partition)),
		observability.AttrOffset.Int64(message.Offset),
		observability.AttrPayloadBytes.Int(len(message.Value)))
	defer span.End()

	if err := c.checkContract(cd, headers); err != nil {
		observability.EndWithError(span, err)
		return c.reject(session, message, log, codecName, metrics.ReasonContract, err)
	}

	timer := metrics.NewTimer()
	b, err := cd.Decode(message.Value)
	decodeTime := timer.Stop()
	if err != nil {
		observability.EndWithError(span, err)
		if errors.Is(err, codec.ErrEmptyStream) {
			log.Info("empty payload", zap.String("codec", codecName))
			if c.metrics != nil {
				c.metrics.DecodeFailure(codecName, metrics.ReasonEmpty)
			}
			session.MarkMessage(message, "")
			return nil
		}
		return c.reject(session, message, log, codecName, decodeReason(err), err)
	}
	defer b.Release()

	if c.metrics != nil {
		c.metrics.ObserveDecode(codecName, decodeTime, len(message.Value), b.NumRows())
	}
	span.SetAttributes(observability.AttrRows.Int(b.NumRows()))

	if c.handler != nil {
		err := c.handler(ctx, Message{
			Batch:        b,
			Codec:        cd.Name(),
			Topic:        message.Topic,
			Partition:    message.Partition,
			Offset:       message.Offset,
			Timestamp:    message.Timestamp,
			PayloadBytes: len(message.Value),
		})
		if err != nil {
			observability.EndWithError(span, err)
			if c.metrics != nil {
				c.metrics.DecodeFailure(codecName, metrics.ReasonHandler)
			}
			log.Error("batch handler failed", zap.Error(err))
			return errors.Wrap(err, errors.ErrorTypeData, "batch handler failed")
		}
	}
	observability.EndWithError(span, nil)

	session.MarkMessage(message, "")
	log.Debug("batch consumed",
		zap.String("codec", codecName),
		zap.Int("rows", b.NumRows()),
		zap.Int("bytes", len(message.Value)),
		zap.Duration("decode", decodeTime))

	return nil
}

func (c *Consumer) resolve(headers ConsumerHeaders) (codec.Codec, error) {
	contentType := headers.Get(HeaderContentType)
	if contentType == "" {
		if c.fallback != nil {
			return c.fallback, nil
		}
		return nil, errors.New(errors.ErrorTypeCapability, "message has no content type and no default codec is set")
	}
	cd, ok := c.registry.Lookup(contentType)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeCapability, "no codec registered for content type %q", contentType).
			WithDetail("registered", c.registry.ContentTypes())
	}
	return cd, nil
}

// checkContract compares the sender's contract fingerprint, when present,
// with the raw codec's own.
func (c *Consumer) checkContract(cd codec.Codec, headers ConsumerHeaders) error {
	raw, ok := cd.(*codec.RawCodec)
	if !ok {
		return nil
	}
	sent := headers.Get(HeaderContract)
	if sent == "" {
		return nil
	}
	fp, err := codec.ParseFingerprint(sent)
	if err != nil {
		return err
	}
	if want := raw.Contract().Fingerprint(); fp != want {
		return errors.New(errors.ErrorTypeContract, "sender contract differs from local contract").
			WithDetail("sent", sent).
			WithDetail("local", raw.Contract().FingerprintHex()).
			WithDetail("contract", raw.Contract().String())
	}
	return nil
}

func (c *Consumer) reject(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage, log *zap.Logger, codecName, reason string, err error) error {
	if c.metrics != nil {
		c.metrics.DecodeFailure(codecName, reason)
	}
	fields := []zap.Field{
		zap.String("codec", codecName),
		zap.String("reason", reason),
		zap.Int("bytes", len(message.Value)),
	}
	log.Error("payload rejected", append(fields, errors.LogFields(err)...)...)

	if c.stopOnDecodeError {
		return err
	}
	session.MarkMessage(message, "")
	return nil
}

func decodeReason(err error) string {
	switch {
	case codec.IsLengthMismatch(err):
		return metrics.ReasonLengthMismatch
	case codec.IsFormatError(err):
		return metrics.ReasonFormat
	case errors.IsType(err, errors.ErrorTypeContract):
		return metrics.ReasonContract
	default:
		return metrics.ReasonFormat
	}
}
