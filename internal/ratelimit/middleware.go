package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"kycverify/pkg/platform/httputil"
	"kycverify/pkg/requestcontext"
)

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}

// ClassOf puts writes in the submit budget and everything else in read.
func ClassOf(r *http.Request) Class {
	if r.Method == http.MethodPost {
		return ClassSubmit
	}
	return ClassRead
}

// PerProject limits requests by the authenticated project. Apply after API
// key authentication. Limiter errors fail open.
func PerProject(l *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			projectID := requestcontext.ProjectID(ctx)

			res, degraded, err := l.Check(ctx, projectID.String(), ClassOf(r))
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed",
					"project_id", projectID.String(),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}
			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if !res.Allowed {
				retry := res.RetryAfter(requestcontext.Now(ctx))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests for this project. Please try again later.",
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
