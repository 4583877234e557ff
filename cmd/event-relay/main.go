package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "dev")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "event-relay").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.RelayInterval).
		Str("queue", cfg.EventsQueue).
		Str("metrics_port", cfg.MetricsPort).
		Msg("event-relay starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	publisher, err := events.DialPublisher(cfg.RabbitMQURL, cfg.EventsQueue)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing rabbitmq publisher")
		}
	}()
	logger.Info().Str("queue", cfg.EventsQueue).Msg("connected to RabbitMQ")

	reg := prometheus.NewRegistry()
	relay := events.NewRelay(
		events.NewOutboxStore(pgPool),
		publisher,
		metrics.NewSchedulingMetrics(reg),
		logger,
		cfg.RelayBatchSize,
	)

	// the relay only exposes its own metrics
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server failed")
		}
	}()

	scheduler, err := relay.Schedule(rootCtx, cfg.RelayInterval, 20*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("schedule relay")
	}

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping event relay")

	if err := scheduler.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
