package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/crediario/internal/installments"
	"github.com/odyssey-erp/crediario/internal/inventory"
	"github.com/odyssey-erp/crediario/internal/observability"
	"github.com/odyssey-erp/crediario/internal/sales"
	"github.com/odyssey-erp/crediario/internal/shared"
	"github.com/odyssey-erp/crediario/jobs"
)

func newTestRouter(checks map[string]HealthCheck) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:              logger,
		Config:              &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		InventoryHandler:    inventory.NewHandler(logger, nil),
		InstallmentsHandler: installments.NewHandler(logger, nil, nil),
		SalesHandler:        sales.NewHandler(logger, nil, nil),
		JobHandler:          jobs.NewHandler(nil, logger),
		Metrics:             observability.NewMetrics(),
		Checks:              checks,
	})
}

func TestRouterHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Frame-Options"))
}

func TestRouterJobsHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"queue":"maintenance"`)
}

func TestRouterReadiness(t *testing.T) {
	router := newTestRouter(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"postgres": "up", "redis": "down"}, body)
}

func TestRouterRequiresTenantOnAPIRoutes(t *testing.T) {
	router := newTestRouter(nil)
	for _, path := range []string{"/sales", "/sales/1", "/sales/1/installments", "/installments/1", "/inventory/products/1/movements"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestRouterRejectsMalformedIDBeforeService(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/sales/abc/installments", nil)
	req.Header.Set(shared.HeaderCompanyID, "1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterExposesMetrics(t *testing.T) {
	router := newTestRouter(nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "crediario_http_requests_total")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ADDR", ":9090")
	t.Setenv("IDEMPOTENCY_TTL", "2h")
	t.Setenv("OVERDUE_CRON", "@hourly")
	t.Setenv("MIGRATE_ON_START", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.AppAddr)
	assert.Equal(t, "2h0m0s", cfg.IdempotencyTTL.String())
	assert.Equal(t, "@hourly", cfg.OverdueCron)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())

	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", AppEnv: "staging"}, &buf)
	logger.Info("sale created", slog.Int64("sale_id", 7))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sale created", entry["msg"])
	assert.Equal(t, "staging", entry["env"])
	assert.EqualValues(t, 7, entry["sale_id"])
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("dropped")
	assert.Empty(t, buf.String())
	logger.Warn("kept")
	assert.Contains(t, buf.String(), `"msg":"kept"`)

	assert.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "loud"}))
	assert.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "DEBUG"}))
	assert.Equal(t, slog.LevelInfo, logLevel(nil))
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "true")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
