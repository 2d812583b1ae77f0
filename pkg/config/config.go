// Package config defines the arrowbus configuration.
//
// The configuration is organized into sections:
//   - Broker: Kafka bootstrap servers and client identity
//   - Topic: the topic carrying batches and its naming rules
//   - Codec: payload encoding and, for the raw codec, the shared contract
//   - Producer: batch size, send interval and delivery guarantees
//   - Consumer: group membership and decode failure policy
//   - Logging, Metrics, Tracing: ambient observability
//
// Example usage:
//
//	cfg, err := config.Load("arrowbus.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Topic.FullName())
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/arrowbus/pkg/codec"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
	"github.com/ajitpratap0/arrowbus/pkg/logger"
	"github.com/ajitpratap0/arrowbus/pkg/observability"
)

// Config is the complete arrowbus configuration
type Config struct {
	Broker   BrokerConfig                `yaml:"broker" mapstructure:"broker"`
	Topic    TopicConfig                 `yaml:"topic" mapstructure:"topic"`
	Codec    CodecConfig                 `yaml:"codec" mapstructure:"codec"`
	Producer ProducerConfig              `yaml:"producer" mapstructure:"producer"`
	Consumer ConsumerConfig              `yaml:"consumer" mapstructure:"consumer"`
	Logging  logger.Config               `yaml:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig               `yaml:"metrics" mapstructure:"metrics"`
	Tracing  observability.TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// BrokerConfig identifies the Kafka cluster
type BrokerConfig struct {
	// Brokers lists bootstrap servers as host:port
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	// ClientID is reported to the brokers
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	// Version is the Kafka protocol version, e.g. "2.8.0"
	Version     string        `yaml:"version" mapstructure:"version"`
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	EnableTLS             bool `yaml:"enable_tls" mapstructure:"enable_tls"`
	TLSInsecureSkipVerify bool `yaml:"tls_insecure_skip_verify" mapstructure:"tls_insecure_skip_verify"`
	// SASLMechanism is "", "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512"
	SASLMechanism string `yaml:"sasl_mechanism" mapstructure:"sasl_mechanism"`
	SASLUsername  string `yaml:"sasl_username" mapstructure:"sasl_username"`
	SASLPassword  string `yaml:"sasl_password" mapstructure:"sasl_password"`
}

// TopicConfig names the topic carrying batches
type TopicConfig struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	Suffix string `yaml:"suffix" mapstructure:"suffix"`
}

// FullName joins prefix, name and suffix. Dots become underscores so the
// result never collides with Kafka's metric name mangling.
func (t TopicConfig) FullName() string {
	name := t.Prefix + t.Name + t.Suffix
	return strings.ReplaceAll(name, ".", "_")
}

// CodecConfig selects the payload codec
type CodecConfig struct {
	Kind     string         `yaml:"kind" mapstructure:"kind"`
	Contract codec.Contract `yaml:"contract" mapstructure:"contract"`
}

// ProducerConfig controls batch generation and delivery
type ProducerConfig struct {
	// Rows is the number of rows in each generated batch
	Rows int `yaml:"rows" mapstructure:"rows"`
	// Interval is the pause between sends
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// Count stops the producer after this many batches; 0 runs until cancelled
	Count int `yaml:"count" mapstructure:"count"`
	// Acks is one of "all", "leader" or "none"
	Acks    string `yaml:"acks" mapstructure:"acks"`
	Retries int    `yaml:"retries" mapstructure:"retries"`
	// Compression is the Kafka batch compression: none, gzip, snappy, lz4 or zstd
	Compression string `yaml:"compression" mapstructure:"compression"`
	// MaxMessageBytes bounds a single encoded batch
	MaxMessageBytes int `yaml:"max_message_bytes" mapstructure:"max_message_bytes"`
}

// ConsumerConfig controls group membership and decode failure handling
type ConsumerConfig struct {
	Group string `yaml:"group" mapstructure:"group"`
	// InitialOffset is "newest" or "oldest"
	InitialOffset string `yaml:"initial_offset" mapstructure:"initial_offset"`
	// StopOnDecodeError ends consumption at the first rejected payload
	StopOnDecodeError bool          `yaml:"stop_on_decode_error" mapstructure:"stop_on_decode_error"`
	SessionTimeout    time.Duration `yaml:"session_timeout" mapstructure:"session_timeout"`
	// Output is "table", "json" or "none"
	Output string `yaml:"output" mapstructure:"output"`
	// MaxRowsShown caps printed rows per batch; 0 prints all
	MaxRowsShown int `yaml:"max_rows_shown" mapstructure:"max_rows_shown"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Default returns a configuration for a local single-broker setup sending
// 100-row batches every 200ms through the IPC codec.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Brokers:     []string{"localhost:9092"},
			ClientID:    "arrowbus",
			Version:     "2.8.0",
			DialTimeout: 10 * time.Second,
		},
		Topic: TopicConfig{
			Name: "arrowbus-test",
		},
		Codec: CodecConfig{
			Kind:     string(codec.KindIPC),
			Contract: codec.DefaultContract(),
		},
		Producer: ProducerConfig{
			Rows:            100,
			Interval:        200 * time.Millisecond,
			Acks:            "all",
			Retries:         3,
			Compression:     "none",
			MaxMessageBytes: 16 << 20,
		},
		Consumer: ConsumerConfig{
			Group:          "arrowbus",
			InitialOffset:  "newest",
			SessionTimeout: 10 * time.Second,
			Output:         "table",
			MaxRowsShown:   20,
		},
		Logging: logger.Config{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// CodecKind returns the parsed codec kind
func (c *Config) CodecKind() (codec.Kind, error) {
	return codec.ParseKind(c.Codec.Kind)
}

// Validate checks that the configuration is complete and consistent
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Broker.Brokers) == 0 {
		add("broker.brokers must list at least one broker")
	}
	for _, b := range c.Broker.Brokers {
		if !strings.Contains(b, ":") {
			add("broker %q must be host:port", b)
		}
	}
	if c.Topic.FullName() == "" {
		add("topic.name is required")
	}

	kind, err := c.CodecKind()
	if err != nil {
		add("codec.kind: %v", err)
	}
	if kind == codec.KindRaw {
		if err := c.Codec.Contract.Validate(); err != nil {
			add("codec.contract: %v", err)
		} else if c.Producer.Rows != c.Codec.Contract.RowCount {
			add("producer.rows (%d) must equal codec.contract.row_count (%d) for the raw codec",
				c.Producer.Rows, c.Codec.Contract.RowCount)
		}
	}

	if c.Producer.Rows < 0 {
		add("producer.rows must not be negative")
	}
	if c.Producer.Interval < 0 {
		add("producer.interval must not be negative")
	}
	if c.Producer.Count < 0 {
		add("producer.count must not be negative")
	}
	switch c.Producer.Acks {
	case "all", "leader", "none":
	default:
		add("producer.acks must be all, leader or none, got %q", c.Producer.Acks)
	}
	switch c.Producer.Compression {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		add("producer.compression %q is not supported", c.Producer.Compression)
	}
	switch c.Broker.SASLMechanism {
	case "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
	default:
		add("broker.sasl_mechanism %q is not supported", c.Broker.SASLMechanism)
	}

	switch c.Consumer.InitialOffset {
	case "newest", "oldest":
	default:
		add("consumer.initial_offset must be newest or oldest, got %q", c.Consumer.InitialOffset)
	}
	switch c.Consumer.Output {
	case "table", "json", "none":
	default:
		add("consumer.output must be table, json or none, got %q", c.Consumer.Output)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		add("metrics.address is required when metrics are enabled")
	}

	if len(problems) > 0 {
		return errors.New(errors.ErrorTypeConfig, "invalid configuration: "+strings.Join(problems, "; ")).
			WithDetail("problems", problems)
	}
	return nil
}
