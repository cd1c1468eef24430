// Package httptransport assembles the HTTP surface: middleware stack, health
// and metrics endpoints, and the authenticated API routes contributed by the
// domain handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"printhub/internal/platform/middleware"
	"printhub/pkg/platform/httputil"
)

// Registrar is any domain handler that contributes routes. All registered
// routes sit behind authentication.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency. A nil return means healthy.
type HealthCheck func(ctx context.Context) error

// Config carries the router's own knobs.
type Config struct {
	JWTSigningKey string
	HealthChecks  map[string]HealthCheck
}

// NewRouter builds the full HTTP handler. Health and metrics stay outside the
// auth boundary so probes and scrapers need no tokens.
func NewRouter(cfg Config, logger *slog.Logger, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", handleHealth(cfg.HealthChecks, logger))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.RequireAuth(cfg.JWTSigningKey, logger))
		for _, reg := range registrars {
			reg.Register(api)
		}
	})

	return r
}

func handleHealth(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				deps[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		httputil.WriteJSON(w, status, body)
	}
}
