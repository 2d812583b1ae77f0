package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/arrowbus/pkg/config"
	"github.com/ajitpratap0/arrowbus/pkg/metrics"
	"github.com/ajitpratap0/arrowbus/pkg/transport"
)

type produceFlags struct {
	interval time.Duration
	count    int
}

func (f *produceFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", 200*time.Millisecond, "Delay between batches")
	cmd.Flags().IntVar(&f.count, "count", 0, "Stop after this many batches (0 runs until interrupted)")
}

func (f *produceFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("interval") {
		cfg.Producer.Interval = f.interval
	}
	if cmd.Flags().Changed("count") {
		cfg.Producer.Count = f.count
	}
}

func newProduceCmd(a *app) *cobra.Command {
	var flags produceFlags

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publish generated batches",
		Long: `Generate batches of random uint64 values and publish one message per batch.

Example:
  arrowbus produce --brokers localhost:9092 --topic arrowbus-test --codec raw --rows 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, func(cfg *config.Config) { flags.apply(cmd, cfg) }); err != nil {
				return err
			}
			defer a.teardown()

			ctx, stop := signalContext()
			defer stop()

			producer, err := a.newProducer()
			if err != nil {
				return err
			}
			defer producer.Close()

			g, gctx := errgroup.WithContext(ctx)
			srv := newMetricsServer(a.cfg.Metrics, a.cfg.Tracing.ServiceName)
			g.Go(func() error { return serveMetrics(gctx, srv, a.log) })
			g.Go(func() error {
				defer stop()
				_, err := producer.Run(gctx, a.runConfig())
				return err
			})
			return g.Wait()
		},
	}
	flags.register(cmd)
	return cmd
}

// newProducer dials the brokers and wraps the sync producer
func (a *app) newProducer() (*transport.Producer, error) {
	cd, err := a.codec()
	if err != nil {
		return nil, err
	}
	sc, err := transport.NewSaramaConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	sp, err := transport.Dial(a.cfg.Broker.Brokers, sc)
	if err != nil {
		return nil, err
	}

	topic := a.cfg.Topic.FullName()
	a.log.Info("producer connected",
		zap.Strings("brokers", a.cfg.Broker.Brokers),
		zap.String("topic", topic),
		zap.Stringer("codec", cd.Name()))
	return transport.NewProducer(sp, cd, topic,
		transport.WithProducerLogger(a.log),
		transport.WithProducerMetrics(metrics.Default())), nil
}

func (a *app) runConfig() transport.RunConfig {
	return transport.RunConfig{
		Rows:     a.cfg.Producer.Rows,
		Interval: a.cfg.Producer.Interval,
		Count:    a.cfg.Producer.Count,
	}
}
