package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/api"
	"github.com/tendant/simple-marketplace/pkg/marketplace/config"
)

// Config holds the settings owned by the executable. Service settings are
// read by config.WithEnv.
type Config struct {
	LogLevel       string        `env:"LOG_LEVEL" env-default:"info"`
	LogFormat      string        `env:"LOG_FORMAT" env-default:"json"`
	ApiKeySHA256   string        `env:"API_KEY_SHA256" env-default:"1"`
	EnvPrefix      string        `env:"MARKETPLACE_ENV_PREFIX" env-default:""`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"60s"`
}

func main() {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	serverConfig, err := config.Load(config.WithEnv(cfg.EnvPrefix))
	if err != nil {
		logger.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := api.NewMetrics(registry)

	ctx := context.Background()
	components, err := serverConfig.Build(ctx, logger, marketplace.WithUploadObserver(metrics.ObserveUpload))
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer components.Close()

	apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
		APIKeys: map[string]string{
			"key1": cfg.ApiKeySHA256,
		},
	})
	if err != nil {
		logger.Error("Failed initialize API Key middleware", "err", err)
		return
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	mountRoutes(server.R, routeConfig{
		components:     components,
		metrics:        metrics,
		gatherer:       registry,
		metricsGuard:   apiKeyMiddleware,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	})

	logger.Info("Marketplace server starting",
		"environment", serverConfig.Environment,
		"database", serverConfig.DatabaseType,
		"storage", serverConfig.Storage.Type,
		"smtp", serverConfig.SMTP.Host != "",
		"redis", serverConfig.RedisURL != "",
	)

	server.Run()
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
