// Package api assembles the HTTP surface: the global middleware chain
// and the flat route table spec.md §6 enumerates.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/sitepulse/sitepulse/internal/api/handlers"
	"github.com/sitepulse/sitepulse/internal/api/middleware"
	"github.com/sitepulse/sitepulse/internal/metrics"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	EnableRateLimit   bool
	EnableCompression bool
	EnableCORS        bool
	EnableMetrics     bool

	RateLimitPerMinute int
	RateLimitBurst     int

	CORSConfig middleware.CORSConfig

	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// DefaultRouterConfig returns the default router configuration.
func DefaultRouterConfig(logger *slog.Logger, reg *metrics.Registry) RouterConfig {
	return RouterConfig{
		EnableRateLimit:    true,
		EnableCompression:  true,
		EnableCORS:         true,
		EnableMetrics:      true,
		RateLimitPerMinute: 100,
		RateLimitBurst:     20,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
		Metrics:            reg,
	}
}

// NewRouter builds the full mux.Router for the monitoring API.
//
// @title SitePulse Monitoring API
// @version 1.0.0
// @description Multi-tenant website availability monitor: scheduler, probes, stats, and session auth.
// @license.name MIT
// @BasePath /api
// @schemes http https
//
// The middleware stack is applied in order:
//  1. RequestID (always)
//  2. Logging (always)
//  3. Metrics (if enabled)
//  4. CORS (if enabled)
//  5. Compression (if enabled)
//  6. SecurityHeaders (always)
//  7. Validation (always)
//  8. Route-specific: RequireAuth, RequireSameOrigin, RateLimit
func NewRouter(h *handlers.Handlers, config RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(config.Logger))

	if config.EnableMetrics && config.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(config.Metrics.APIRequestDuration))
	}
	if config.EnableCORS {
		router.Use(middleware.CORSMiddleware(config.CORSConfig))
	}
	if config.EnableCompression {
		router.Use(middleware.CompressionMiddleware)
	}
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.ValidationMiddleware)

	var rateLimit func(http.Handler) http.Handler
	if config.EnableRateLimit {
		rateLimit = middleware.RateLimitMiddleware(config.RateLimitPerMinute, config.RateLimitBurst)
	} else {
		rateLimit = func(next http.Handler) http.Handler { return next }
	}

	requireAuth := middleware.RequireAuth(h.Auth)

	api := router.PathPrefix("/api").Subrouter()

	// --- session / auth ---
	login := api.NewRoute().Subrouter()
	login.Use(rateLimit)
	login.Use(middleware.RequireSameOrigin)
	login.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	logout := api.NewRoute().Subrouter()
	logout.Use(middleware.RequireSameOrigin)
	logout.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	api.HandleFunc("/auth/check", h.AuthCheck).Methods(http.MethodGet)

	// --- monitors ---
	monitorsRead := api.NewRoute().Subrouter()
	monitorsRead.Use(requireAuth)
	monitorsRead.HandleFunc("/monitors", h.ListMonitors).Methods(http.MethodGet)
	monitorsRead.HandleFunc("/monitors/status", h.MonitorsStatus).Methods(http.MethodGet)
	monitorsRead.HandleFunc("/monitors/{id}/history", h.MonitorHistory).Methods(http.MethodGet)
	monitorsRead.HandleFunc("/monitors/{id}/stats", h.MonitorStats).Methods(http.MethodGet)

	monitorsWrite := api.NewRoute().Subrouter()
	monitorsWrite.Use(requireAuth)
	monitorsWrite.Use(middleware.RequireSameOrigin)
	monitorsWrite.HandleFunc("/monitors", h.CreateMonitor).Methods(http.MethodPost)
	monitorsWrite.HandleFunc("/monitors/{id}", h.UpdateMonitor).Methods(http.MethodPut)
	monitorsWrite.HandleFunc("/monitors/{id}", h.DeleteMonitor).Methods(http.MethodDelete)

	// --- stats ---
	statsRoutes := api.NewRoute().Subrouter()
	statsRoutes.Use(requireAuth)
	statsRoutes.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	statsRoutes.HandleFunc("/stats/overview", h.StatsOverview).Methods(http.MethodGet)

	// --- system ---
	systemRead := api.NewRoute().Subrouter()
	systemRead.Use(requireAuth)
	systemRead.HandleFunc("/system/info", h.SystemInfo).Methods(http.MethodGet)
	systemRead.HandleFunc("/system/health", h.SystemHealth).Methods(http.MethodGet)
	systemRead.HandleFunc("/system/cache", h.SystemCache).Methods(http.MethodGet)
	systemRead.HandleFunc("/system/scheduler", h.SystemScheduler).Methods(http.MethodGet)
	systemRead.HandleFunc("/system/logs", h.SystemLogs).Methods(http.MethodGet)

	systemWrite := api.NewRoute().Subrouter()
	systemWrite.Use(requireAuth)
	systemWrite.Use(middleware.RequireSameOrigin)
	systemWrite.HandleFunc("/system/cache/clear", h.SystemCacheClear).Methods(http.MethodPost)

	// Swagger UI for the route table above; the only swag annotations
	// are the general API info on NewRouter.
	router.PathPrefix("/api/docs").Handler(httpSwagger.WrapHandler)

	return router
}
