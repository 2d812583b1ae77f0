package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowbus/pkg/config"
	"github.com/ajitpratap0/arrowbus/pkg/metrics"
	"github.com/ajitpratap0/arrowbus/pkg/observability"
)

// newMetricsServer returns the /metrics server, or nil when metrics are disabled
func newMetricsServer(cfg config.MetricsConfig, serviceName string) *http.Server {
	if !cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, observability.TracingMiddleware(serviceName)(metrics.Handler(prometheus.DefaultGatherer)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveMetrics runs srv until ctx is done. A nil srv blocks until ctx is done.
func serveMetrics(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	if srv == nil {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.String("address", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
