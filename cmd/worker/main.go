package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"code-runner/internal/config"
	"code-runner/internal/monitor"
	"code-runner/internal/queue"
	"code-runner/internal/runtime"
	"code-runner/internal/storage"
	"code-runner/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitor.NewMetrics()
	runtimes := runtime.NewRegistry()

	db, err := storage.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	q, err := queue.New(ctx, cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("queue unavailable")
	}
	defer q.Close()

	w, err := worker.New(db, q, runtimes, metrics, cfg.Executor)
	if err != nil {
		log.Fatal().Err(err).Msg("worker init failed")
	}

	// Expose worker metrics on a separate port when configured. The worker
	// has no API surface of its own, so this listener is best effort.
	var metricsServer *http.Server
	if cfg.Worker.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("GET /health", func(rw http.ResponseWriter, r *http.Request) {
			if !db.Healthy(r.Context()) || !q.Healthy(r.Context()) {
				rw.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			rw.WriteHeader(http.StatusOK)
		})
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler: mux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	log.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Dur("timeout", cfg.Executor.Timeout).
		Strs("languages", runtimes.Languages()).
		Msg("worker starting")

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log.Debug().Int("worker", id).Msg("worker loop started")
			w.Run(ctx)
		}(i)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	log.Info().Msg("worker stopped")
}
