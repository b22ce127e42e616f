package testutil

import (
	"net/http"
	"time"

	id "kycverify/pkg/domain"
	"kycverify/pkg/requestcontext"
)

// WithProject simulates the API key middleware for an authenticated project.
func WithProject(req *http.Request, projectID id.ProjectID) *http.Request {
	return req.WithContext(requestcontext.WithProjectID(req.Context(), projectID))
}

// WithClient simulates the metadata middleware.
func WithClient(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}
