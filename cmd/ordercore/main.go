// Command ordercore runs the order persistence core as a long-lived process:
// it wires the configured backends into the facade, starts the auto-complete
// scheduler, and serves Prometheus metrics until interrupted.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ordercore/internal/blob"
	"ordercore/internal/config"
	"ordercore/internal/core"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fallback, err := core.OpenFallbackStore(core.FallbackDriver(cfg.FallbackDriver))
	if err != nil {
		return err
	}

	var durable core.DurableStore
	if !cfg.DisableDurable {
		durable, err = core.OpenDurableStore(ctx, core.DurableDriver(cfg.DurableDriver))
		if err != nil {
			// Construction failure is the same class of event as a failed
			// probe: log it and run on the fallback store.
			logger.Warn("durable backend construction failed, using fallback store", "error", err)
			durable = nil
		}
	}

	evidence, err := blob.Open(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	facade := core.Initialize(ctx, core.Options{
		Durable:        durable,
		Fallback:       fallback,
		DisableDurable: cfg.DisableDurable,
		ForceFallback:  cfg.ForceFallback,
		Logger:         logger,
		Metrics:        core.NewMetrics(registry),
		Evidence:       evidence,
	})
	logger.Info("ordercore started", "mode", facade.Mode(),
		"scan_interval", cfg.ScanInterval, "complete_after", cfg.CompleteAfter)

	scheduler := facade.StartScheduler(ctx, cfg.ScanInterval, cfg.CompleteAfter)
	defer scheduler.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
