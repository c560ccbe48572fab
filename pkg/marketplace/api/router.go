// Package api exposes the marketplace service over HTTP.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// Config wires the API router.
type Config struct {
	Service  marketplace.Service
	Entities []*marketplace.Schema
	// Auth verifies bearer tokens. Without it every request is anonymous.
	Auth    *jwtauth.JWTAuth
	OTP     CodeService
	Metrics *Metrics
	Logger  *slog.Logger
}

// Routes returns the /api/v1 router: one sub-router per entity route plus
// the one-time code endpoints when an OTP service is configured.
func Routes(cfg Config) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if cfg.Auth != nil {
		r.Use(jwtauth.Verifier(cfg.Auth))
		r.Use(Authenticate)
	}

	for _, schema := range cfg.Entities {
		r.Mount("/"+schema.Route, NewEntityHandler(cfg.Service, schema, logger).Routes())
		logger.Debug("mounted entity routes", "entity", schema.Name, "route", schema.Route)
	}
	if cfg.OTP != nil {
		r.Mount("/otp", NewOTPHandler(cfg.OTP, logger).Routes())
	}
	return r
}
