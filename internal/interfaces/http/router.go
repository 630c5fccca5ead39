// Package http implements the sitesim REST surface: submitting a signature
// and parameter set, starting/stopping/querying a run, and fetching its
// latest observable report, plus the liveness/readiness probes every
// deployment needs regardless of domain.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitesim/reactor/internal/interfaces/http/handlers"
	"github.com/sitesim/reactor/internal/interfaces/http/middleware"
	"github.com/sitesim/reactor/internal/infrastructure/monitoring/logging"
)

// RouterConfig aggregates the handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	RunHandler    *handlers.RunHandler
	HealthHandler *handlers.HealthHandler

	CORSMiddleware      *middleware.CORSMiddleware
	LoggingMiddleware    *middleware.LoggingMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware

	Logger logging.Logger
}

// NewRouter constructs the complete HTTP route tree: a gin engine carrying
// the health probes and the /api/v1/runs resource, wrapped in the stdlib
// middleware chain (CORS → Logging → RateLimit) so those concerns apply
// uniformly regardless of how gin dispatches internally.
func NewRouter(cfg RouterConfig) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	if cfg.HealthHandler != nil {
		engine.GET("/healthz", gin.WrapF(cfg.HealthHandler.Liveness))
		engine.GET("/readyz", gin.WrapF(cfg.HealthHandler.Readiness))
		engine.GET("/healthz/detail", gin.WrapF(cfg.HealthHandler.Detailed))
	}

	api := engine.Group("/api/v1")
	registerRunRoutes(api, cfg.RunHandler)

	var h http.Handler = engine
	if cfg.RateLimitMiddleware != nil {
		h = cfg.RateLimitMiddleware.Handler(h)
	}
	if cfg.LoggingMiddleware != nil {
		h = cfg.LoggingMiddleware.Handler(h)
	}
	if cfg.CORSMiddleware != nil {
		h = cfg.CORSMiddleware.Handler(h)
	}
	return h
}

// registerRunRoutes mounts the run-management endpoints under /runs.
func registerRunRoutes(r *gin.RouterGroup, h *handlers.RunHandler) {
	if h == nil {
		return
	}
	runs := r.Group("/runs")
	runs.POST("", h.Create)
	runs.GET("/:id", h.Get)
	runs.POST("/:id/stop", h.Stop)
	runs.GET("/:id/report", h.Report)
}
