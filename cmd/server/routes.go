package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-marketplace/pkg/marketplace/api"
	"github.com/tendant/simple-marketplace/pkg/marketplace/config"
	"github.com/tendant/simple-marketplace/pkg/marketplace/entities"
)

type routeConfig struct {
	components     *config.Components
	metrics        *api.Metrics
	gatherer       prometheus.Gatherer
	metricsGuard   func(http.Handler) http.Handler
	requestTimeout time.Duration
	logger         *slog.Logger
}

// mountRoutes adds the API under /api/v1, stored files for the filesystem
// backend and the guarded /metrics endpoint.
func mountRoutes(r chi.Router, cfg routeConfig) {
	timeout := cfg.requestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(timeout))

		r.Mount("/", api.Routes(api.Config{
			Service:  cfg.components.Service,
			Entities: entities.Catalogue(),
			Auth:     cfg.components.Auth,
			OTP:      cfg.components.OTP,
			Metrics:  cfg.metrics,
			Logger:   cfg.logger,
		}))
	})

	if cfg.components.Files != nil {
		path := cfg.components.FilesPath
		r.Mount(path, http.StripPrefix(path, cfg.components.Files))
	}

	r.Group(func(r chi.Router) {
		if cfg.metricsGuard != nil {
			r.Use(cfg.metricsGuard)
		}
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	})
}
