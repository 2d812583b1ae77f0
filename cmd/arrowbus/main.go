// Command arrowbus moves columnar batches over Kafka with a pluggable codec
// and benchmarks the codecs against each other.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowbus/pkg/codec"
	"github.com/ajitpratap0/arrowbus/pkg/config"
	"github.com/ajitpratap0/arrowbus/pkg/logger"
	"github.com/ajitpratap0/arrowbus/pkg/observability"
)

var version = "0.1.0"

// app holds the state shared by every subcommand
type app struct {
	configPath string
	logLevel   string
	brokers    []string
	topic      string
	codecKind  string
	rows       int

	cfg      *config.Config
	log      *zap.Logger
	shutdown observability.ShutdownFunc
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "arrowbus",
		Short: "arrowbus - columnar batches over Kafka",
		Long: `arrowbus publishes and consumes columnar record batches through Kafka.
Batches are encoded either as self-describing Arrow IPC streams or as bare
uint64 element bytes bound to a shared contract.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Path to YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringSliceVar(&a.brokers, "brokers", nil, "Kafka brokers, host:port")
	pf.StringVarP(&a.topic, "topic", "t", "", "Topic name")
	pf.StringVar(&a.codecKind, "codec", "", "Codec: ipc or raw")
	pf.IntVar(&a.rows, "rows", 0, "Rows per batch; also the raw contract row count")

	root.AddCommand(
		newProduceCmd(a),
		newConsumeCmd(a),
		newRunCmd(a),
		newBenchCmd(),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration, applies flag overrides and initializes
// logging and tracing. override runs after the persistent flags are applied
// and before validation.
func (a *app) setup(cmd *cobra.Command, override func(*config.Config)) error {
	cfg, err := a.load(cmd)
	if err != nil {
		return err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = logger.Get().With(zap.String("component", "arrowbus-cli"))

	shutdown, err := observability.Init(cfg.Tracing, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.shutdown = shutdown
	a.cfg = cfg
	return nil
}

// load reads the configuration and applies the persistent flags without
// validating
func (a *app) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("brokers") {
		cfg.Broker.Brokers = a.brokers
	}
	if flags.Changed("topic") {
		cfg.Topic.Name = a.topic
	}
	if flags.Changed("codec") {
		cfg.Codec.Kind = a.codecKind
	}
	if flags.Changed("rows") {
		cfg.Producer.Rows = a.rows
		cfg.Codec.Contract.RowCount = a.rows
	}
	return cfg, nil
}

// teardown flushes the logger and tracer
func (a *app) teardown() {
	if a.shutdown != nil {
		timeout := a.cfg.Tracing.BatchTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.log.Warn("failed to shut down tracing", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

// codec builds the configured codec
func (a *app) codec() (codec.Codec, error) {
	kind, err := a.cfg.CodecKind()
	if err != nil {
		return nil, err
	}
	return codec.New(kind, a.cfg.Codec.Contract)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
