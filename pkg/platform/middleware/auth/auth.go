// Package auth authenticates API consumers by project API key.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	"kycverify/pkg/platform/httputil"
	"kycverify/pkg/requestcontext"
)

// HeaderAPIKey carries the project secret key.
const HeaderAPIKey = "X-API-Key"

// APIKeyAuthenticator resolves a presented key to the owning project.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (id.ProjectID, error)
}

// RequireAPIKey rejects requests without a valid key and stores the project
// id on the request context.
func RequireAPIKey(authenticator APIKeyAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := presentedKey(r)
			if key == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "API key required"))
				return
			}
			projectID, err := authenticator.Authenticate(ctx, key)
			if err != nil {
				if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					logger.ErrorContext(ctx, "api key authentication failed",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				}
				httputil.WriteError(w, err)
				return
			}
			ctx = requestcontext.WithProjectID(ctx, projectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	const bearer = "Bearer "
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearer) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearer))
	}
	return ""
}
