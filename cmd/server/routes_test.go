package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/api"
	"github.com/tendant/simple-marketplace/pkg/marketplace/config"
)

func newTestRouter(t *testing.T, guard func(http.Handler) http.Handler, opts ...config.Option) (http.Handler, *config.Components) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := config.Load(append([]config.Option{config.WithJWTSecret("test-secret")}, opts...)...)
	if err != nil {
		t.Fatalf("config load error: %v", err)
	}
	registry := prometheus.NewRegistry()
	metrics := api.NewMetrics(registry)
	comp, err := cfg.Build(context.Background(), logger, marketplace.WithUploadObserver(metrics.ObserveUpload))
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	t.Cleanup(comp.Close)

	r := chi.NewRouter()
	mountRoutes(r, routeConfig{
		components:     comp,
		metrics:        metrics,
		gatherer:       registry,
		metricsGuard:   guard,
		requestTimeout: 5 * time.Second,
		logger:         logger,
	})
	return r, comp
}

func TestRoutes_CreateAndList(t *testing.T) {
	router, comp := newTestRouter(t, nil)
	token, err := api.IssueToken(comp.Auth, marketplace.Actor{AdminID: "admin-1"}, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"title": "Launch Event", "start_date": "2025-10-01"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") == "" {
		t.Error("expected a content type")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var page struct {
		Items      []map[string]any `json:"items"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Pagination.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one event, got %+v", page)
	}
}

func TestRoutes_Metrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/awards", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "marketplace_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}

func TestRoutes_MetricsGuard(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-KEY") != "secret" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	router, _ := newTestRouter(t, deny)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	// the guard does not apply to the API
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/awards", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRoutes_FilesystemAttachments(t *testing.T) {
	router, comp := newTestRouter(t, nil, config.WithStorageURL("file://"+t.TempDir()))
	if comp.FilesPath != "/files" {
		t.Fatalf("expected files path /files, got %q", comp.FilesPath)
	}

	obj, err := comp.Storage.Upload(context.Background(), []byte("hello"), "awards/logo-1.txt", "text/plain", "logo.txt")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if obj.URL != "/files/awards/logo-1.txt" {
		t.Fatalf("unexpected url %s", obj.URL)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, obj.URL, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "hello" {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}

func TestNewLogger(t *testing.T) {
	if !newLogger("debug", "text").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug logging enabled")
	}
	if newLogger("bogus", "json").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected invalid level to fall back to info")
	}
}
