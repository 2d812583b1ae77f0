package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Exporter names
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	ServiceName    string        `yaml:"service_name" mapstructure:"service_name" json:"service_name"`
	ServiceVersion string        `yaml:"service_version" mapstructure:"service_version" json:"service_version"`
	Environment    string        `yaml:"environment" mapstructure:"environment" json:"environment"`
	SamplingRate   float64       `yaml:"sampling_rate" mapstructure:"sampling_rate" json:"sampling_rate"`
	Exporter       string        `yaml:"exporter" mapstructure:"exporter" json:"exporter"`
	PrettyPrint    bool          `yaml:"pretty_print" mapstructure:"pretty_print" json:"pretty_print"`
	BatchTimeout   time.Duration `yaml:"batch_timeout" mapstructure:"batch_timeout" json:"batch_timeout"`
}

// DefaultTracingConfig returns tracing disabled, sampling 10% when enabled
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:        false,
		ServiceName:    "arrowbus",
		ServiceVersion: "dev",
		Environment:    getEnv("ENVIRONMENT", "development"),
		SamplingRate:   0.1,
		Exporter:       ExporterStdout,
		BatchTimeout:   5 * time.Second,
	}
}

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(ctx context.Context) error

// Init installs the global tracer provider and the W3C trace-context
// propagator. Spans from the stdout exporter are written to w, or to stderr
// when w is nil. With tracing disabled only the propagator is installed, so
// inbound trace context is still carried through.
func Init(config TracingConfig, w io.Writer) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(config.SamplingRate))),
	}

	switch config.Exporter {
	case ExporterStdout, "":
		if w == nil {
			w = os.Stderr
		}
		exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
		if config.PrettyPrint {
			exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
		}
		exporter, err := stdouttrace.New(exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(config.BatchTimeout)))
	case ExporterNone:
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %q", config.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
