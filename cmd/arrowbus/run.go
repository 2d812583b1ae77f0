package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/arrowbus/pkg/config"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		pflags produceFlags
		cflags consumeFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Produce and consume in one process",
		Long: `Start a producer and a consumer on the same topic. The producer publishes
generated batches while the consumer prints what it decodes. The consumer
keeps running after the producer reaches --count, until interrupted or until
a fatal error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.setup(cmd, func(cfg *config.Config) {
				pflags.apply(cmd, cfg)
				cflags.apply(cmd, cfg)
			})
			if err != nil {
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
				return consumer.Run(gctx, group, []string{a.cfg.Topic.FullName()})
			})
			g.Go(func() error {
				_, err := producer.Run(gctx, a.runConfig())
				return err
			})
			return g.Wait()
		},
	}
	pflags.register(cmd)
	cflags.register(cmd)
	return cmd
}
