package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service  SchedulingService
	Metrics  *metrics.SchedulingMetrics
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Postgres Pinger
	Redis    RedisPinger // nil when slot locks are disabled
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSMiddleware)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	scheduling := NewSchedulingHandler(cfg.Service, cfg.Metrics, cfg.Logger)
	r.Post("/v1/scheduling", scheduling.ServeHTTP)

	return r
}
