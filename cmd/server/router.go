package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"kycverify/internal/platform/metrics"
	"kycverify/internal/ratelimit"
	"kycverify/internal/verification/handler"
	"kycverify/pkg/platform/httputil"
	"kycverify/pkg/platform/middleware/auth"
	"kycverify/pkg/platform/middleware/metadata"
	"kycverify/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// newRouter mounts the public probes and the API-key protected verification
// endpoints. A nil limiter disables rate limiting.
func newRouter(h *handler.Handler, authenticator auth.APIKeyAuthenticator, limiter *ratelimit.Limiter, checks map[string]func(context.Context) error, httpMetrics *metrics.HTTP, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)

	r.Get("/healthz", healthHandler(checks, log))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(authenticator, log))
		if limiter != nil {
			r.Use(ratelimit.PerProject(limiter, log))
		}
		h.Register(r)
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]func(context.Context) error, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
