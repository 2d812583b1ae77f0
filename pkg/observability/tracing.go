// Package observability wires OpenTelemetry tracing into the bus: provider
// setup, spans around codec and transport operations, and trace-context
// propagation through message headers.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/arrowbus"

// Span attribute keys
const (
	AttrCodec        = attribute.Key("arrowbus.codec")
	AttrTopic        = attribute.Key("messaging.destination.name")
	AttrRows         = attribute.Key("arrowbus.batch.rows")
	AttrPayloadBytes = attribute.Key("messaging.message.body.size")
	AttrPartition    = attribute.Key("messaging.kafka.destination.partition")
	AttrOffset       = attribute.Key("messaging.kafka.message.offset")
)

// Tracer returns the bus tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// BusTracer starts spans tagged with a topic and codec
type BusTracer struct {
	topic  string
	codec  string
	tracer trace.Tracer
}

// NewBusTracer creates a tracer for one topic and codec
func NewBusTracer(topic, codec string) *BusTracer {
	return &BusTracer{topic: topic, codec: codec, tracer: Tracer()}
}

// StartSpan starts a span named "<topic> <operation>"
func (bt *BusTracer) StartSpan(ctx context.Context, operation string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrTopic.String(bt.topic), AttrCodec.String(bt.codec))
	return bt.tracer.Start(ctx, fmt.Sprintf("%s %s", bt.topic, operation),
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// TraceCodec runs fn inside an internal span and records its outcome
func (bt *BusTracer) TraceCodec(ctx context.Context, operation string, rows int, fn func() error) error {
	_, span := bt.StartSpan(ctx, operation, trace.SpanKindInternal, AttrRows.Int(rows))
	defer span.End()

	err := fn()
	EndWithError(span, err)
	return err
}

// EndWithError sets span status from err without ending the span
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Inject writes the trace context of ctx into carrier
func Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// Extract returns ctx extended with the trace context found in carrier
func Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// TracingMiddleware provides HTTP middleware for tracing
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := Tracer().Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
				attribute.String("service.name", serviceName),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
