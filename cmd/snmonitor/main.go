// snmonitor runs scheduled synthetic probes against the SolarNetwork API
// and exposes the results as Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethanadams/solarnet-synthetics/internal/archive"
	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/executor"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
	"github.com/ethanadams/solarnet-synthetics/internal/metrics"
	"github.com/ethanadams/solarnet-synthetics/internal/scheduler"
	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Fatal("Failed to load config: %v", err)
	}

	logging.SetFormat(cfg.Logging.Format)
	logging.SetLevel(cfg.Logging.Level)
	defer logging.Sync()

	logging.Info("Starting SolarNetwork Synthetics Monitor")
	logging.Info("Config: host=%s, tests=%d, archive=%s", cfg.SolarNetwork.Host, len(cfg.Tests), archiveLabel(cfg.Archive))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewCollector(prometheus.DefaultRegisterer)

	client, err := solarnet.NewClient(cfg.SolarNetwork.Credentials(),
		solarnet.WithScheme(cfg.SolarNetwork.Scheme),
		solarnet.WithTimeout(cfg.SolarNetwork.TimeoutDuration()),
	)
	if err != nil {
		logging.Fatal("Failed to create SolarNetwork client: %v", err)
	}
	defer client.Close()

	sink, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		logging.Fatal("Failed to open archive: %v", err)
	}
	if sink != nil {
		defer sink.Close()
		logging.Info("Archiving responses to %s bucket %s", sink.Name(), cfg.Archive.Bucket)
	}

	executors := buildExecutors(cfg, client, metricsCollector, sink)

	sched := scheduler.New(cfg, executors)
	if err := sched.Start(ctx); err != nil {
		logging.Fatal("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:      newMux(cfg, sched),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info("Starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to start HTTP server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logging.Info("Received shutdown signal, shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("HTTP server shutdown error: %v", err)
	}

	logging.Info("Shutdown complete")
}

// buildExecutors initializes every executor that can run here. The curl
// executor is skipped when curl is not installed.
func buildExecutors(cfg *config.Config, client *solarnet.Client, mc *metrics.Collector, sink archive.Sink) map[string]executor.TestExecutor {
	executors := make(map[string]executor.TestExecutor)

	executors[config.ExecutorHTTP] = executor.NewHTTP(client, mc, sink, cfg.Archive.Prefix)
	logging.Info("Initialized HTTP executor")

	curlExec, err := executor.NewCurl(client, mc, sink, cfg.Archive.Prefix)
	if err != nil {
		logging.Warn("Curl executor disabled: %v", err)
	} else {
		executors[config.ExecutorCurl] = curlExec
		logging.Info("Initialized curl executor")
	}

	executors[config.ExecutorK6] = executor.NewK6(cfg, mc)
	logging.Info("Initialized k6 executor (binary: %s)", cfg.K6.BinaryPath)

	return executors
}

func newMux(cfg *config.Config, sched *scheduler.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint for Prometheus
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())

	mux.HandleFunc("/health", healthHandler)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "SolarNetwork Synthetics Monitor\n\n")
		fmt.Fprintf(w, "Endpoints:\n")
		fmt.Fprintf(w, "  %s - Prometheus metrics\n", cfg.Metrics.Path)
		fmt.Fprintf(w, "  /health - Health check\n")
		fmt.Fprintf(w, "\nScheduled tests:\n")
		for _, name := range sched.Scheduled() {
			if next, ok := sched.Next(name); ok {
				fmt.Fprintf(w, "  %s (next run %s)\n", name, next.UTC().Format(time.RFC3339))
			}
		}
	})

	return mux
}

func archiveLabel(a config.ArchiveConfig) string {
	if !a.Enabled() {
		return "disabled"
	}
	return a.Backend
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK\n")
}
