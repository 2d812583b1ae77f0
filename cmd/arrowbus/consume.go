package main

import (
	"context"
	"io"
	"os"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/arrowbus/pkg/codec"
	"github.com/ajitpratap0/arrowbus/pkg/config"
	"github.com/ajitpratap0/arrowbus/pkg/errors"
	"github.com/ajitpratap0/arrowbus/pkg/metrics"
	"github.com/ajitpratap0/arrowbus/pkg/printer"
	"github.com/ajitpratap0/arrowbus/pkg/transport"
)

type consumeFlags struct {
	group       string
	format      string
	maxRows     int
	stopOnError bool
	fromOldest  bool
}

func (f *consumeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.group, "group", "g", "", "Consumer group")
	cmd.Flags().StringVarP(&f.format, "format", "o", "table", "Output format: table, json or none")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 20, "Rows printed per batch (0 prints all)")
	cmd.Flags().BoolVar(&f.stopOnError, "stop-on-error", false, "Stop at the first undecodable message")
	cmd.Flags().BoolVar(&f.fromOldest, "from-beginning", false, "Start from the oldest offset when the group has none")
}

func (f *consumeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("group") {
		cfg.Consumer.Group = f.group
	}
	if flags.Changed("format") {
		cfg.Consumer.Output = f.format
	}
	if flags.Changed("max-rows") {
		cfg.Consumer.MaxRowsShown = f.maxRows
	}
	if flags.Changed("stop-on-error") {
		cfg.Consumer.StopOnDecodeError = f.stopOnError
	}
	if flags.Changed("from-beginning") && f.fromOldest {
		cfg.Consumer.InitialOffset = "oldest"
	}
}

func newConsumeCmd(a *app) *cobra.Command {
	var flags consumeFlags

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume and print batches",
		Long: `Join a consumer group, decode every message and print the batches.

The codec is chosen per message from its content-type header. Messages
without one are decoded with the configured codec.

Example:
  arrowbus consume --brokers localhost:9092 --topic arrowbus-test --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, func(cfg *config.Config) { flags.apply(cmd, cfg) }); err != nil {
				return err
			}
			defer a.teardown()

			ctx, stop := signalContext()
			defer stop()

			consumer, group, err := a.newConsumer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer group.Close()

			g, gctx := errgroup.WithContext(ctx)
			srv := newMetricsServer(a.cfg.Metrics, a.cfg.Tracing.ServiceName)
			g.Go(func() error { return serveMetrics(gctx, srv, a.log) })
			g.Go(func() error {
				defer stop()
				return consumer.Run(gctx, group, []string{a.cfg.Topic.FullName()})
			})
			return g.Wait()
		},
	}
	flags.register(cmd)
	return cmd
}

// newConsumer builds a consumer that prints every batch to out, joined to
// the configured group
func (a *app) newConsumer(out io.Writer) (*transport.Consumer, sarama.ConsumerGroup, error) {
	handler, err := a.printHandler(out)
	if err != nil {
		return nil, nil, err
	}
	registry, fallback, err := a.registry()
	if err != nil {
		return nil, nil, err
	}

	sc, err := transport.NewSaramaConfig(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	group, err := sarama.NewConsumerGroup(a.cfg.Broker.Brokers, a.cfg.Consumer.Group, sc)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create consumer group").
			WithDetail("group", a.cfg.Consumer.Group)
	}

	consumer := transport.NewConsumer(registry, handler,
		transport.WithConsumerLogger(a.log),
		transport.WithConsumerMetrics(metrics.Default()),
		transport.WithDefaultCodec(fallback),
		transport.WithStopOnDecodeError(a.cfg.Consumer.StopOnDecodeError))
	return consumer, group, nil
}

// registry holds the IPC codec and, when the configured contract is valid,
// the raw codec bound to it
func (a *app) registry() (*codec.Registry, codec.Codec, error) {
	registry := codec.NewRegistry(codec.NewIPCCodec())
	if raw, err := codec.NewRawCodec(a.cfg.Codec.Contract); err == nil {
		registry.Register(raw)
	} else {
		a.log.Warn("raw payloads will be rejected", zap.Error(err))
	}

	fallback, err := a.codec()
	if err != nil {
		return nil, nil, err
	}
	return registry, fallback, nil
}

func (a *app) printHandler(out io.Writer) (transport.Handler, error) {
	if out == nil {
		out = os.Stdout
	}
	p, err := printer.New(out, printer.Format(a.cfg.Consumer.Output), printer.Options{MaxRows: a.cfg.Consumer.MaxRowsShown})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, msg transport.Message) error {
		a.log.Debug("batch received",
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("rows", msg.Batch.NumRows()),
			zap.Int("payload_bytes", msg.PayloadBytes))
		return p.Print(msg.Batch)
	}, nil
}
