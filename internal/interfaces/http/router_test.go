package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesim/reactor/internal/application/runservice"
	"github.com/sitesim/reactor/internal/infrastructure/monitoring/logging"
	"github.com/sitesim/reactor/internal/interfaces/http/handlers"
	"github.com/sitesim/reactor/internal/interfaces/http/middleware"
)

func newTestManager(t *testing.T) *runservice.Manager {
	t.Helper()
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            "error",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	require.NoError(t, err)
	return runservice.NewManager(nil, nil, nil, nil, logger)
}

func TestNewRouter_HealthEndpoints_NoAuth(t *testing.T) {
	cfg := RouterConfig{HealthHandler: handlers.NewHealthHandler("test")}
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRouter_ReadinessEndpoint(t *testing.T) {
	cfg := RouterConfig{HealthHandler: handlers.NewHealthHandler("test")}
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRouter_RunRoutes_Registered(t *testing.T) {
	cfg := RouterConfig{RunHandler: handlers.NewRunHandler(newTestManager(t))}
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestNewRouter_CreateRun_InvalidBody(t *testing.T) {
	cfg := RouterConfig{RunHandler: handlers.NewRunHandler(newTestManager(t))}
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewRouter_NilHandlers_NoPanic(t *testing.T) {
	cfg := RouterConfig{}

	assert.NotPanics(t, func() {
		router := NewRouter(cfg)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
	})
}

func TestNewRouter_GlobalMiddleware_Applied(t *testing.T) {
	cfg := RouterConfig{
		HealthHandler:  handlers.NewHealthHandler("test"),
		CORSMiddleware: middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()),
	}
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
