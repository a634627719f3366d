package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"sda-commons/internal/auth"
	"sda-commons/internal/config"
	"sda-commons/internal/health"
	"sda-commons/internal/http/docs"
	"sda-commons/internal/http/handler"
	"sda-commons/internal/http/httperr"
	"sda-commons/internal/http/middleware"
	"sda-commons/internal/observability/logger"
	"sda-commons/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds what buildRouter needs to register middleware and routes.
type RouterDeps struct {
	Cfg      *config.Config
	Log      *logger.Logger
	Resolver *auth.KeyResolver
	Metrics  *telemetry.Metrics
	Registry *prometheus.Registry
	Health   *health.Registry

	// Handlers
	PeopleHandler *handler.PeopleHandler
	DebugHandler  *handler.DebugHandler
}

// buildRouter adds the server middleware and routes to r. The client bundle
// must already have registered its inbound middleware on r.
func buildRouter(r chi.Router, deps RouterDeps) {
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(telemetry.OTelMiddleware(deps.Cfg.ServiceName))
	if deps.Metrics != nil {
		r.Use(telemetry.MetricsMiddleware(deps.Metrics))
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	checks := deps.Health
	if checks == nil {
		checks = health.NewRegistry(health.DefaultTimeout, health.WithLogger(deps.Log))
	}
	r.Method(http.MethodGet, "/ready", checks.Handler())

	registry := deps.Registry
	if registry == nil {
		registry = newMetricsRegistry()
	}
	r.With(metricsGuard(deps.Cfg)).Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	// Debug routes (dev-only)
	if deps.Cfg.IsDev() && deps.DebugHandler != nil {
		r.Route("/debug", func(r chi.Router) {
			if deps.Resolver != nil {
				r.Use(auth.JWTAuthMiddleware(deps.Resolver))
			}
			r.Get("/context", deps.DebugHandler.GetContextDebug)
		})
	}

	// Protected routes
	r.Route("/v1", func(r chi.Router) {
		if deps.Resolver != nil {
			r.Use(auth.JWTAuthMiddleware(deps.Resolver))
		}

		if deps.PeopleHandler != nil {
			r.Method(http.MethodGet, "/people/{personId}", httperr.HandlerFunc(deps.PeopleHandler.GetPerson))
			r.Method(http.MethodGet, "/teams/{team}/people", httperr.HandlerFunc(deps.PeopleHandler.ListTeam))
		}
	})
}

// metricsGuard requires METRICS_TOKEN, via X-Metrics-Token or a bearer
// token, outside development. An empty token leaves /metrics open.
func metricsGuard(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MetricsToken == "" || cfg.IsDev() {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Metrics-Token")
			if provided == "" {
				if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
					provided = strings.TrimSpace(h[7:])
				}
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.MetricsToken)) != 1 {
				httperr.WriteError(w, r, httperr.Unauthorized("unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
